package experiment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

type fakeStore struct {
	experiments map[string]model.Experiment
	jobs        []model.Job
	claimErr    error
	claimResult *model.Experiment

	completed, total int
}

func newFakeStore() *fakeStore {
	return &fakeStore{experiments: make(map[string]model.Experiment), completed: 3, total: 10}
}

type fakeCorpus struct{ pkgs []model.PackageRef }

func (c fakeCorpus) All() []model.PackageRef      { return c.pkgs }
func (c fakeCorpus) TopN(n int) []model.PackageRef { return c.pkgs }
func (c fakeCorpus) Demo() []model.PackageRef      { return c.pkgs }

func (s *fakeStore) CreateExperiment(ctx context.Context, e model.Experiment) error {
	if _, ok := s.experiments[e.Name]; ok {
		return crerr.NewStateConflict(e.Name, "experiment already exists")
	}
	s.experiments[e.Name] = e
	return nil
}

func (s *fakeStore) GetExperiment(ctx context.Context, name string) (*model.Experiment, error) {
	e, ok := s.experiments[name]
	if !ok {
		return nil, crerr.ErrNotFound
	}
	return &e, nil
}

func (s *fakeStore) EditExperimentIfQueued(ctx context.Context, name string, mutate func(*model.Experiment)) error {
	e, ok := s.experiments[name]
	if !ok {
		return crerr.ErrNotFound
	}
	if !e.Status.Editable() {
		return crerr.NewStateConflict(name, "experiment is no longer queued")
	}
	mutate(&e)
	s.experiments[name] = e
	return nil
}

func (s *fakeStore) NextQueuedMatching(ctx context.Context, agentName string, capabilities []string) (*model.Experiment, error) {
	return s.claimResult, s.claimErr
}

func (s *fakeStore) Abort(ctx context.Context, name string) error {
	e := s.experiments[name]
	e.Status = model.StatusAborted
	s.experiments[name] = e
	return nil
}

func (s *fakeStore) AssignReportStateCAS(ctx context.Context, name string, from, to model.Status) (bool, error) {
	e, ok := s.experiments[name]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	s.experiments[name] = e
	return true, nil
}

func (s *fakeStore) EnsureJob(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef) error {
	s.jobs = append(s.jobs, model.Job{Experiment: experiment, Package: pkg, Toolchain: tc})
	return nil
}

func (s *fakeStore) AllOutcomes(ctx context.Context, experiment string) ([]model.Job, error) {
	var out []model.Job
	for _, j := range s.jobs {
		if j.Experiment == experiment && j.Outcome != "" {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakeStore) CompletedCount(ctx context.Context, name string) (int, error) { return s.completed, nil }
func (s *fakeStore) TotalCount(ctx context.Context, name string) (int, error)     { return s.total, nil }

func sampleExperiment(name string) model.Experiment {
	return model.Experiment{
		Name:       name,
		ToolchainA: model.NewDistToolchain("stable"),
		ToolchainB: model.NewDistToolchain("beta"),
		Mode:       model.ModeBuildAndTest,
		Crates:     model.CrateSelection{Kind: model.SelectionFull},
		CapLints:   model.LintWarn,
	}
}

func TestRegistry_Create(t *testing.T) {
	r := New(newFakeStore(), fakeCorpus{})
	err := r.Create(context.Background(), sampleExperiment("exp-1"))
	require.NoError(t, err)

	exp, err := r.store.(*fakeStore).GetExperiment(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, exp.Status)
}

func TestRegistry_Create_RejectsInvalidMode(t *testing.T) {
	r := New(newFakeStore(), fakeCorpus{})
	e := sampleExperiment("exp-1")
	e.Mode = "bogus"
	err := r.Create(context.Background(), e)
	assert.True(t, crerr.IsConfigError(err))
}

func TestRegistry_Create_DuplicateConflicts(t *testing.T) {
	r := New(newFakeStore(), fakeCorpus{})
	require.NoError(t, r.Create(context.Background(), sampleExperiment("exp-1")))
	err := r.Create(context.Background(), sampleExperiment("exp-1"))
	assert.ErrorIs(t, err, crerr.ErrStateConflict)
}

func TestRegistry_Edit_RejectsInvalidResult(t *testing.T) {
	r := New(newFakeStore(), fakeCorpus{})
	require.NoError(t, r.Create(context.Background(), sampleExperiment("exp-1")))

	err := r.Edit(context.Background(), "exp-1", func(e *model.Experiment) {
		e.Mode = "bogus"
	})
	assert.True(t, crerr.IsConfigError(err))
}

func TestRegistry_Edit_RejectsAfterRunning(t *testing.T) {
	s := newFakeStore()
	r := New(s, fakeCorpus{})
	require.NoError(t, r.Create(context.Background(), sampleExperiment("exp-1")))
	e := s.experiments["exp-1"]
	e.Status = model.StatusRunning
	s.experiments["exp-1"] = e

	err := r.Edit(context.Background(), "exp-1", func(e *model.Experiment) {
		e.CapLints = model.LintDeny
	})
	assert.ErrorIs(t, err, crerr.ErrStateConflict)
}

func TestRegistry_Abort_RejectsTerminal(t *testing.T) {
	s := newFakeStore()
	r := New(s, fakeCorpus{})
	require.NoError(t, r.Create(context.Background(), sampleExperiment("exp-1")))
	e := s.experiments["exp-1"]
	e.Status = model.StatusCompleted
	s.experiments["exp-1"] = e

	err := r.Abort(context.Background(), "exp-1")
	assert.ErrorIs(t, err, crerr.ErrStateConflict)
}

func TestRegistry_Abort_FromQueued(t *testing.T) {
	s := newFakeStore()
	r := New(s, fakeCorpus{})
	require.NoError(t, r.Create(context.Background(), sampleExperiment("exp-1")))

	require.NoError(t, r.Abort(context.Background(), "exp-1"))
	assert.Equal(t, model.StatusAborted, s.experiments["exp-1"].Status)
}

func TestRegistry_Claim(t *testing.T) {
	s := newFakeStore()
	want := sampleExperiment("exp-1")
	s.claimResult = &want
	r := New(s, fakeCorpus{})

	got, err := r.Claim(context.Background(), "agent-1", []string{"linux"})
	require.NoError(t, err)
	assert.Equal(t, "exp-1", got.Name)
}

func TestRegistry_Claim_NoneAvailable(t *testing.T) {
	s := newFakeStore()
	s.claimErr = crerr.ErrNotFound
	r := New(s, fakeCorpus{})

	_, err := r.Claim(context.Background(), "agent-1", nil)
	assert.True(t, errors.Is(err, crerr.ErrNotFound))
}

func TestRegistry_Progress(t *testing.T) {
	r := New(newFakeStore(), fakeCorpus{})
	completed, total, err := r.Progress(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, completed)
	assert.Equal(t, 10, total)
}

func TestRegistry_Create_MaterializesJobsEagerly(t *testing.T) {
	s := newFakeStore()
	corpus := fakeCorpus{pkgs: []model.PackageRef{
		model.NewRegistryPackage("a", "1.0.0"),
		model.NewRegistryPackage("b", "1.0.0"),
	}}
	r := New(s, corpus)
	require.NoError(t, r.Create(context.Background(), sampleExperiment("exp-1")))

	// Two packages x two toolchains = four planned job rows, before any
	// agent has claimed the experiment (§4.2, testable scenario S1).
	assert.Len(t, s.jobs, 4)
}

func TestRegistry_CheckCompletion_AdvancesWhenAllJobsRecorded(t *testing.T) {
	s := newFakeStore()
	s.experiments["exp-1"] = model.Experiment{Name: "exp-1", Status: model.StatusRunning}
	s.completed, s.total = 2, 2
	r := New(s, fakeCorpus{})

	applied, err := r.CheckCompletion(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.StatusNeedsReport, s.experiments["exp-1"].Status)
}

func TestRegistry_CheckCompletion_NoopWhileJobsRemain(t *testing.T) {
	s := newFakeStore()
	s.experiments["exp-1"] = model.Experiment{Name: "exp-1", Status: model.StatusRunning}
	s.completed, s.total = 1, 2
	r := New(s, fakeCorpus{})

	applied, err := r.CheckCompletion(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, model.StatusRunning, s.experiments["exp-1"].Status)
}
