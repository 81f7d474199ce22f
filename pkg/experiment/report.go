package experiment

import (
	"context"

	"github.com/codeready-toolchain/crater/pkg/comparator"
	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// Reporter drives an experiment through the post-run report pipeline —
// needs-report/report-failed -> generating-report -> completed|report-failed
// — by pairing each package's two recorded outcomes and classifying them
// with the comparator (§3 "Lifecycle", §4.7, §2 "comparator classifies
// verdicts for the report").
type Reporter struct {
	store Store
	cfg   *config.Config
}

// NewReporter builds a Reporter over the given store and configuration
// snapshot (package overrides supply the comparator's `broken` policy).
func NewReporter(s Store, cfg *config.Config) *Reporter {
	return &Reporter{store: s, cfg: cfg}
}

// Generate runs the comparator over name's recorded outcomes and advances it
// to completed, or report-failed if generation errors. It accepts either
// needs-report or report-failed as the starting state, so the same method
// backs both the automatic post-completion trigger (§2) and the
// operator/bot `retry-report` command (§6).
func (rp *Reporter) Generate(ctx context.Context, name string) ([]model.CrateResult, error) {
	exp, err := rp.store.GetExperiment(ctx, name)
	if err != nil {
		return nil, err
	}

	applied, err := rp.store.AssignReportStateCAS(ctx, name, model.StatusNeedsReport, model.StatusGeneratingReport)
	if err != nil {
		return nil, err
	}
	if !applied {
		applied, err = rp.store.AssignReportStateCAS(ctx, name, model.StatusReportFailed, model.StatusGeneratingReport)
		if err != nil {
			return nil, err
		}
	}
	if !applied {
		return nil, crerr.NewStateConflict(name, "experiment is not awaiting report generation")
	}

	jobs, err := rp.store.AllOutcomes(ctx, name)
	if err != nil {
		rp.fail(ctx, name)
		return nil, err
	}

	results := pairOutcomes(jobs, exp.ToolchainA.Key(), exp.ToolchainB.Key(), rp.cfg)

	if _, err := rp.store.AssignReportStateCAS(ctx, name, model.StatusGeneratingReport, model.StatusCompleted); err != nil {
		rp.fail(ctx, name)
		return nil, err
	}
	return results, nil
}

func (rp *Reporter) fail(ctx context.Context, name string) {
	_, _ = rp.store.AssignReportStateCAS(ctx, name, model.StatusGeneratingReport, model.StatusReportFailed)
}

// pairOutcomes groups an experiment's recorded jobs by package and
// classifies each complete pair with the comparator; a package missing one
// side's outcome is skipped rather than misreported (§5 "ordering
// guarantees": the comparator only runs once both toolchain outcomes are
// present).
func pairOutcomes(jobs []model.Job, keyA, keyB string, cfg *config.Config) []model.CrateResult {
	type pair struct {
		pkg          model.PackageRef
		a, b         model.Outcome
		haveA, haveB bool
	}
	byPkg := make(map[string]*pair)
	for _, j := range jobs {
		p, ok := byPkg[j.Package.Key()]
		if !ok {
			p = &pair{pkg: j.Package}
			byPkg[j.Package.Key()] = p
		}
		switch j.Toolchain.Key() {
		case keyA:
			p.a, p.haveA = j.Outcome, true
		case keyB:
			p.b, p.haveB = j.Outcome, true
		}
	}

	results := make([]model.CrateResult, 0, len(byPkg))
	for _, p := range byPkg {
		if !p.haveA || !p.haveB {
			continue
		}
		broken := cfg.OverrideFor(p.pkg.Key()).Broken
		results = append(results, comparator.Result(p.pkg, p.a, p.b, broken))
	}
	return results
}
