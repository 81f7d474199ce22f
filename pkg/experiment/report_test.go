package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/model"
)

func reportTestConfig(t *testing.T) *config.Config {
	cfg, err := config.Load("/nonexistent/crater.yaml")
	require.NoError(t, err)
	return cfg
}

func TestReporter_Generate_ClassifiesPairedOutcomes(t *testing.T) {
	s := newFakeStore()
	s.experiments["exp-1"] = model.Experiment{
		Name:       "exp-1",
		Status:     model.StatusNeedsReport,
		ToolchainA: model.NewDistToolchain("stable"),
		ToolchainB: model.NewDistToolchain("beta"),
	}
	pkg := model.NewRegistryPackage("a", "1.0.0")
	s.jobs = []model.Job{
		{Experiment: "exp-1", Package: pkg, Toolchain: model.NewDistToolchain("stable"), Outcome: model.OutcomeTestPass},
		{Experiment: "exp-1", Package: pkg, Toolchain: model.NewDistToolchain("beta"), Outcome: model.OutcomeTestFail},
	}

	rp := NewReporter(s, reportTestConfig(t))
	results, err := rp.Generate(context.Background(), "exp-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, pkg.Key(), results[0].Package.Key())
	assert.Equal(t, model.StatusCompleted, s.experiments["exp-1"].Status)
}

func TestReporter_Generate_SkipsIncompletePairs(t *testing.T) {
	s := newFakeStore()
	s.experiments["exp-1"] = model.Experiment{
		Name:       "exp-1",
		Status:     model.StatusNeedsReport,
		ToolchainA: model.NewDistToolchain("stable"),
		ToolchainB: model.NewDistToolchain("beta"),
	}
	s.jobs = []model.Job{
		{Experiment: "exp-1", Package: model.NewRegistryPackage("a", "1.0.0"), Toolchain: model.NewDistToolchain("stable"), Outcome: model.OutcomeTestPass},
	}

	rp := NewReporter(s, reportTestConfig(t))
	results, err := rp.Generate(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, model.StatusCompleted, s.experiments["exp-1"].Status)
}

func TestReporter_Generate_RetriesFromReportFailed(t *testing.T) {
	s := newFakeStore()
	s.experiments["exp-1"] = model.Experiment{
		Name:       "exp-1",
		Status:     model.StatusReportFailed,
		ToolchainA: model.NewDistToolchain("stable"),
		ToolchainB: model.NewDistToolchain("beta"),
	}

	rp := NewReporter(s, reportTestConfig(t))
	_, err := rp.Generate(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, s.experiments["exp-1"].Status)
}

func TestReporter_Generate_RejectsWrongState(t *testing.T) {
	s := newFakeStore()
	s.experiments["exp-1"] = model.Experiment{Name: "exp-1", Status: model.StatusRunning}

	rp := NewReporter(s, reportTestConfig(t))
	_, err := rp.Generate(context.Background(), "exp-1")
	assert.Error(t, err)
}
