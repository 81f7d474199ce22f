// Package comparator classifies a pair of per-toolchain job outcomes into a
// comparison verdict, per §4.7. The comparator is pure and total: every
// combination of (outcome, outcome, broken) maps to exactly one verdict.
package comparator

import "github.com/codeready-toolchain/crater/pkg/model"

// bucket groups an Outcome into one of the five rows/columns of the §4.7
// decision table.
type bucket int

const (
	bucketBuildFail bucket = iota
	bucketTestFail
	bucketTestPass
	bucketSkipped
	bucketErrorOrTimeout
)

func classify(o model.Outcome) bucket {
	switch o {
	case model.OutcomeBuildFail, model.OutcomeBuildBroken:
		return bucketBuildFail
	case model.OutcomeTestFail:
		return bucketTestFail
	case model.OutcomeTestPass, model.OutcomeTestSkipped:
		return bucketTestPass
	case model.OutcomeError, model.OutcomeTimeoutOverall, model.OutcomeTimeoutNoOutput:
		return bucketErrorOrTimeout
	default:
		// An empty/unrecognized outcome is treated as skipped: callers should
		// never invoke Compare before both sides have a recorded outcome, but
		// the comparator stays total by degrading safely.
		return bucketSkipped
	}
}

// table[a][b] is the §4.7 decision table, indexed by bucket. The "skipped"
// bucket intentionally only self-matches to "skipped"; every other skipped
// pairing is "unknown".
var table = [5][5]model.Verdict{
	bucketBuildFail: {
		bucketBuildFail:      model.VerdictSameBuildFail,
		bucketTestFail:       model.VerdictRegressed,
		bucketTestPass:       model.VerdictRegressed,
		bucketSkipped:        model.VerdictUnknown,
		bucketErrorOrTimeout: model.VerdictUnknown,
	},
	bucketTestFail: {
		bucketBuildFail:      model.VerdictFixed,
		bucketTestFail:       model.VerdictSameTestFail,
		bucketTestPass:       model.VerdictRegressed,
		bucketSkipped:        model.VerdictUnknown,
		bucketErrorOrTimeout: model.VerdictUnknown,
	},
	bucketTestPass: {
		bucketBuildFail:      model.VerdictFixed,
		bucketTestFail:       model.VerdictFixed,
		bucketTestPass:       model.VerdictSameTestPass,
		bucketSkipped:        model.VerdictUnknown,
		bucketErrorOrTimeout: model.VerdictUnknown,
	},
	bucketSkipped: {
		bucketBuildFail:      model.VerdictUnknown,
		bucketTestFail:       model.VerdictUnknown,
		bucketTestPass:       model.VerdictUnknown,
		bucketSkipped:        model.VerdictSkipped,
		bucketErrorOrTimeout: model.VerdictUnknown,
	},
	bucketErrorOrTimeout: {
		bucketBuildFail:      model.VerdictUnknown,
		bucketTestFail:       model.VerdictUnknown,
		bucketTestPass:       model.VerdictUnknown,
		bucketSkipped:        model.VerdictUnknown,
		bucketErrorOrTimeout: model.VerdictUnknown,
	},
}

// Compare classifies a pair of per-toolchain outcomes for the same package
// into a verdict, per the §4.7 decision table. candidate is the outcome
// under the toolchain being evaluated (an experiment's second/"end"
// toolchain); baseline is the outcome under the toolchain it's compared
// against (the experiment's first/"start" toolchain) — this ordering is
// what makes "candidate passed where baseline failed" read as "fixed" and
// the reverse read as "regressed", matching the literal table in §4.7.
// broken is the package policy's "broken" override: when set, any
// build-fail outcome on either side is reported as same-build-fail rather
// than regressed/fixed (§4.7 "Overrides").
func Compare(candidate, baseline model.Outcome, broken bool) model.Verdict {
	if broken && (candidate == model.OutcomeBuildFail || baseline == model.OutcomeBuildFail) {
		return model.VerdictSameBuildFail
	}
	return table[classify(candidate)][classify(baseline)]
}

// Result builds a full CrateResult for a package given its two outcomes.
// outcomeA/outcomeB follow the experiment's toolchain order (A=baseline,
// B=candidate); the stored CrateResult keeps that order for display while
// Compare internally evaluates candidate-vs-baseline.
func Result(pkg model.PackageRef, outcomeA, outcomeB model.Outcome, broken bool) model.CrateResult {
	return model.CrateResult{
		Package:  pkg,
		OutcomeA: outcomeA,
		OutcomeB: outcomeB,
		Verdict:  Compare(outcomeB, outcomeA, broken),
	}
}
