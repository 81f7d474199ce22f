// Package experiment is the registry layer over the state store: it
// validates and enforces experiment lifecycle rules (§3 "Lifecycle", §4.2)
// so callers (the HTTP API, the bot command handler, the CLI) never touch
// store.Store's raw SQL-backed methods directly.
package experiment

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/job"
	"github.com/codeready-toolchain/crater/pkg/model"
	"github.com/codeready-toolchain/crater/pkg/store"
)

// Store is the subset of *store.Store the registry depends on, narrowed
// for testability.
type Store interface {
	CreateExperiment(ctx context.Context, e model.Experiment) error
	GetExperiment(ctx context.Context, name string) (*model.Experiment, error)
	EditExperimentIfQueued(ctx context.Context, name string, mutate func(*model.Experiment)) error
	NextQueuedMatching(ctx context.Context, agentName string, capabilities []string) (*model.Experiment, error)
	Abort(ctx context.Context, name string) error
	AssignReportStateCAS(ctx context.Context, name string, from, to model.Status) (bool, error)
	EnsureJob(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef) error
	AllOutcomes(ctx context.Context, experiment string) ([]model.Job, error)
	CompletedCount(ctx context.Context, name string) (int, error)
	TotalCount(ctx context.Context, name string) (int, error)
}

var _ Store = (*store.Store)(nil)

// Registry enforces experiment lifecycle invariants on top of the store.
type Registry struct {
	store  Store
	corpus job.Corpus
}

// New builds a Registry over the given store, resolving crate selections
// against corpus when an experiment's job set is materialized at creation
// time.
func New(s Store, corpus job.Corpus) *Registry {
	return &Registry{store: s, corpus: corpus}
}

// Create validates and registers a new experiment in the queued state, then
// eagerly plans its full job set as rows with no outcome yet (§3
// "Lifecycle": queued is the only entry state, §4.2 "create_experiment",
// "computes the full job set eagerly"). This is what makes
// TotalCount/CompletedCount correct immediately after creation, before any
// agent has claimed the experiment.
func (r *Registry) Create(ctx context.Context, e model.Experiment) error {
	if err := validate(e); err != nil {
		return err
	}
	e.Status = model.StatusQueued
	if err := r.store.CreateExperiment(ctx, e); err != nil {
		return err
	}

	for _, pkg := range job.Resolve(e.Crates, r.corpus, nil) {
		if err := r.store.EnsureJob(ctx, e.Name, pkg, e.ToolchainA); err != nil {
			return err
		}
		if err := r.store.EnsureJob(ctx, e.Name, pkg, e.ToolchainB); err != nil {
			return err
		}
	}
	return nil
}

// Edit applies mutate to name's editable fields, rejecting the edit unless
// the experiment is still queued (§3 invariant 3).
func (r *Registry) Edit(ctx context.Context, name string, mutate func(*model.Experiment)) error {
	var validationErr error
	err := r.store.EditExperimentIfQueued(ctx, name, func(e *model.Experiment) {
		mutate(e)
		validationErr = validate(*e)
	})
	if err != nil {
		return err
	}
	return validationErr
}

// Abort moves name to the aborted terminal state from any non-terminal
// state (§3 "Lifecycle").
func (r *Registry) Abort(ctx context.Context, name string) error {
	exp, err := r.store.GetExperiment(ctx, name)
	if err != nil {
		return err
	}
	if exp.Status.Terminal() {
		return crerr.NewStateConflict(name, "experiment is already in a terminal state")
	}
	return r.store.Abort(ctx, name)
}

// Claim hands an eligible queued experiment to the given agent, per the
// priority/eligibility rules in model.Experiment.EligibleFor (§4.2, §4.5).
func (r *Registry) Claim(ctx context.Context, agentName string, capabilities []string) (*model.Experiment, error) {
	return r.store.NextQueuedMatching(ctx, agentName, capabilities)
}

// CheckCompletion advances name from running to needs-report once every
// planned job has a recorded outcome, returning whether this call performed
// the transition (§2 "on last job, server marks experiment complete and
// triggers report generation", §3 "Lifecycle", testable scenario S3). The
// transition is gated by compare-and-set (§4.6), so under concurrent
// progress reports only the one call that observes the last remaining job
// complete sees applied=true; callers should trigger report generation only
// when it does.
func (r *Registry) CheckCompletion(ctx context.Context, name string) (bool, error) {
	completed, total, err := r.Progress(ctx, name)
	if err != nil {
		return false, err
	}
	if total == 0 || completed < total {
		return false, nil
	}
	return r.store.AssignReportStateCAS(ctx, name, model.StatusRunning, model.StatusNeedsReport)
}

// Progress reports how many of an experiment's planned jobs have completed,
// for the dashboard/API progress surface (§4.6).
func (r *Registry) Progress(ctx context.Context, name string) (completed, total int, err error) {
	completed, err = r.store.CompletedCount(ctx, name)
	if err != nil {
		return 0, 0, err
	}
	total, err = r.store.TotalCount(ctx, name)
	if err != nil {
		return 0, 0, err
	}
	return completed, total, nil
}

// validate enforces the well-formedness invariants on an experiment's
// static fields (§3 "Invariants").
func validate(e model.Experiment) error {
	if e.Name == "" {
		return crerr.NewConfigError("name", "must not be empty")
	}
	if !e.ToolchainA.Valid() {
		return crerr.NewConfigError("toolchain_a", "invalid toolchain reference")
	}
	if !e.ToolchainB.Valid() {
		return crerr.NewConfigError("toolchain_b", "invalid toolchain reference")
	}
	if !e.Mode.Valid() {
		return crerr.NewConfigError("mode", fmt.Sprintf("unrecognized mode %q", e.Mode))
	}
	if !e.Crates.Valid() {
		return crerr.NewConfigError("crates", "invalid crate selection")
	}
	if !e.CapLints.Valid() {
		return crerr.NewConfigError("cap_lints", fmt.Sprintf("unrecognized lint cap %q", e.CapLints))
	}
	return nil
}
