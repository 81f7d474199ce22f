package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/model"
)

type scriptWorkspace struct {
	buildScript string
	testScript  string
	prepared    []model.PackageRef
	cleaned     bool
}

func (w *scriptWorkspace) Prepare(ctx context.Context, pkg model.PackageRef, tc model.ToolchainRef) (string, error) {
	w.prepared = append(w.prepared, pkg)
	return "/tmp", nil
}

func (w *scriptWorkspace) Command(ctx context.Context, dir string, phase Phase, exp model.Experiment) (*exec.Cmd, error) {
	script := w.buildScript
	if phase == PhaseTest {
		script = w.testScript
	}
	return exec.CommandContext(ctx, "sh", "-c", script), nil
}

func (w *scriptWorkspace) Cleanup(dir string) { w.cleaned = true }

func testCaps() config.SandboxCaps {
	return config.SandboxCaps{
		MemoryLimitBytes:    1 << 30,
		BuildLogMaxSize:     1 << 20,
		BuildLogMaxLines:    1000,
		OverallTimeoutSecs:  2,
		NoOutputTimeoutSecs: 0,
	}
}

func TestExecutor_BuildAndTestPass(t *testing.T) {
	ws := &scriptWorkspace{buildScript: "echo building", testScript: "echo testing"}
	ex := New(ws, testCaps())

	result := ex.Run(context.Background(), model.NewRegistryPackage("a", "1.0.0"), model.NewDistToolchain("stable"), model.Experiment{}, true, config.PackageOverride{})
	assert.Equal(t, model.OutcomeTestPass, result.Outcome)
	assert.True(t, ws.cleaned)
}

func TestExecutor_BuildFailureShortCircuitsTest(t *testing.T) {
	ws := &scriptWorkspace{buildScript: "exit 1", testScript: "echo should-not-run"}
	ex := New(ws, testCaps())

	result := ex.Run(context.Background(), model.NewRegistryPackage("a", "1.0.0"), model.NewDistToolchain("stable"), model.Experiment{}, true, config.PackageOverride{})
	assert.Equal(t, model.OutcomeBuildFail, result.Outcome)
}

func TestExecutor_TestFailure(t *testing.T) {
	ws := &scriptWorkspace{buildScript: "echo ok", testScript: "exit 1"}
	ex := New(ws, testCaps())

	result := ex.Run(context.Background(), model.NewRegistryPackage("a", "1.0.0"), model.NewDistToolchain("stable"), model.Experiment{}, true, config.PackageOverride{})
	assert.Equal(t, model.OutcomeTestFail, result.Outcome)
}

func TestExecutor_BuildOnlySkipsTestPhase(t *testing.T) {
	ws := &scriptWorkspace{buildScript: "echo ok", testScript: "exit 1"}
	ex := New(ws, testCaps())

	result := ex.Run(context.Background(), model.NewRegistryPackage("a", "1.0.0"), model.NewDistToolchain("stable"), model.Experiment{}, false, config.PackageOverride{})
	assert.Equal(t, model.OutcomeTestPass, result.Outcome)
}

func TestExecutor_OverallTimeout(t *testing.T) {
	ws := &scriptWorkspace{buildScript: "sleep 5", testScript: "echo ok"}
	caps := testCaps()
	caps.OverallTimeoutSecs = 1
	ex := New(ws, caps)

	start := time.Now()
	result := ex.Run(context.Background(), model.NewRegistryPackage("a", "1.0.0"), model.NewDistToolchain("stable"), model.Experiment{}, true, config.PackageOverride{})
	require.Equal(t, model.OutcomeTimeoutOverall, result.Outcome)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecutor_MemoryLimitKillsBuildPhase(t *testing.T) {
	ws := &scriptWorkspace{buildScript: "sleep 5", testScript: "echo ok"}
	caps := testCaps()
	caps.MemoryLimitBytes = 1
	caps.OverallTimeoutSecs = 10
	ex := New(ws, caps)

	start := time.Now()
	result := ex.Run(context.Background(), model.NewRegistryPackage("a", "1.0.0"), model.NewDistToolchain("stable"), model.Experiment{}, true, config.PackageOverride{})
	assert.Equal(t, model.OutcomeBuildFail, result.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCapture_TruncatesAtMaxSize(t *testing.T) {
	c := newCapture(5, 1000)
	n, err := c.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.True(t, c.isTruncated())
	assert.Equal(t, []byte("01234"), c.bytes())
}

func TestCapture_TruncatesAtMaxLines(t *testing.T) {
	c := newCapture(1000, 2)
	_, _ = c.Write([]byte("a\nb\nc\nd\n"))
	assert.True(t, c.isTruncated())
}
