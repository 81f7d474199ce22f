// Package sandbox runs a single planned job to completion: build, and
// (when the mode calls for it) test, capturing output under the memory,
// size, and timeout caps from §4.4. The actual compiler/cargo invocation
// and workspace checkout are delegated to a Workspace collaborator —
// out of scope here per §4.4 "workspace construction is out of scope;
// the executor is handed an already-populated directory".
package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// Phase names a stage of job execution (§4.4 phases 1-3).
type Phase string

const (
	PhaseFetch Phase = "fetch"
	PhaseBuild Phase = "build"
	PhaseTest  Phase = "test"
)

// Workspace builds the on-disk checkout for a job and returns the command
// to run for a given phase (§4.4's workspace-builder collaborator,
// grounded on the file-based agent protocol in the retrieval pack's
// other_examples directory).
type Workspace interface {
	// Prepare fetches the package source and pins the toolchain, returning
	// the working directory the phase commands should run in.
	Prepare(ctx context.Context, pkg model.PackageRef, tc model.ToolchainRef) (dir string, err error)
	// Command returns the *exec.Cmd for the given phase, already rooted at
	// dir and configured with the toolchain's environment (RUSTFLAGS,
	// cap-lints, patches).
	Command(ctx context.Context, dir string, phase Phase, exp model.Experiment) (*exec.Cmd, error)
	// Cleanup removes the working directory.
	Cleanup(dir string)
}

// Result is a single job's raw execution result, before comparator
// classification.
type Result struct {
	Outcome   model.Outcome
	Log       []byte // zstd-compressed
	Truncated bool
}

// Executor runs planned jobs inside resource caps (§4.4, §5).
type Executor struct {
	workspace Workspace
	caps      config.SandboxCaps
}

// New builds an Executor bound to a workspace collaborator and the
// process-wide sandbox caps.
func New(workspace Workspace, caps config.SandboxCaps) *Executor {
	return &Executor{workspace: workspace, caps: caps}
}

// Run executes a single plan entry: build, then test if runTests is set,
// under the overall and no-output timeouts (doubled/disabled respectively
// by the package's slow/quiet overrides, §4.3), capturing combined
// stdout+stderr up to the configured size/line caps and compressing it
// with zstd for storage (§4.4, §6).
func (e *Executor) Run(ctx context.Context, pkg model.PackageRef, tc model.ToolchainRef, exp model.Experiment, runTests bool, override config.PackageOverride) Result {
	dir, err := e.workspace.Prepare(ctx, pkg, tc)
	if err != nil {
		return e.finish(model.OutcomeError, []byte(err.Error()), false)
	}
	defer e.workspace.Cleanup(dir)

	overall := e.caps.OverallTimeout(override.Slow)
	noOutput := e.caps.NoOutputTimeout(override.Quiet)

	runCtx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	capture := newCapture(e.caps.BuildLogMaxSize, e.caps.BuildLogMaxLines)

	buildOutcome, err := e.runPhase(runCtx, dir, PhaseBuild, exp, capture, noOutput)
	if err != nil {
		if isMemoryExceeded(err) {
			return e.finish(model.OutcomeBuildFail, capture.bytes(), capture.isTruncated())
		}
		return e.finish(classifyPhaseError(err), capture.bytes(), capture.isTruncated())
	}
	if buildOutcome != model.OutcomeTestPass {
		// A non-zero build exit is a build failure regardless of mode.
		return e.finish(model.OutcomeBuildFail, capture.bytes(), capture.isTruncated())
	}
	if !runTests {
		return e.finish(model.OutcomeTestPass, capture.bytes(), capture.isTruncated())
	}

	testOutcome, err := e.runPhase(runCtx, dir, PhaseTest, exp, capture, noOutput)
	if err != nil {
		if isMemoryExceeded(err) {
			return e.finish(model.OutcomeTestFail, capture.bytes(), capture.isTruncated())
		}
		return e.finish(classifyPhaseError(err), capture.bytes(), capture.isTruncated())
	}
	return e.finish(testOutcome, capture.bytes(), capture.isTruncated())
}

// runPhase runs a single phase's command, enforcing the no-output timeout
// by watching capture's last-write time on a ticker and the memory cap by
// polling the process tree's RSS on the same cadence, and returns
// model.OutcomeTestPass for success or model.OutcomeTestFail/model.OutcomeBuildFail
// for a clean non-zero exit (the caller maps build-phase failures to
// build-fail regardless of what's returned here, and a memory-cap kill to
// build-fail/test-fail by phase rather than to a timeout outcome, per §4.4
// "overshoot yields build-fail/test-fail, never a host OOM").
func (e *Executor) runPhase(ctx context.Context, dir string, phase Phase, exp model.Experiment, capture *capture, noOutput time.Duration) (model.Outcome, error) {
	cmd, err := e.workspace.Command(ctx, dir, phase, exp)
	if err != nil {
		return "", err
	}
	cmd.Stdout = capture
	cmd.Stderr = capture

	if err := cmd.Start(); err != nil {
		return "", err
	}

	memExceeded := make(chan struct{}, 1)
	memCtx, stopMem := context.WithCancel(ctx)
	defer stopMem()
	if e.caps.MemoryLimitBytes > 0 {
		go monitorMemory(memCtx, cmd, e.caps.MemoryLimitBytes, noOutput, memExceeded)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if noOutput > 0 {
		return e.waitWithNoOutputTimeout(ctx, cmd, capture, noOutput, done, memExceeded)
	}

	select {
	case <-ctx.Done():
		killTree(cmd)
		return "", crerr.NewSandboxFailure(string(phase), "overall timeout exceeded", ctx.Err())
	case <-memExceeded:
		killTree(cmd)
		return "", crerr.NewSandboxFailure(string(phase), "memory limit exceeded", nil)
	case err := <-done:
		if err != nil {
			if phase == PhaseTest {
				return model.OutcomeTestFail, nil
			}
			return model.OutcomeBuildFail, nil
		}
		return model.OutcomeTestPass, nil
	}
}

func (e *Executor) waitWithNoOutputTimeout(ctx context.Context, cmd *exec.Cmd, capture *capture, noOutput time.Duration, done chan error, memExceeded chan struct{}) (model.Outcome, error) {
	ticker := time.NewTicker(noOutput / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			killTree(cmd)
			return "", crerr.NewSandboxFailure("run", "overall timeout exceeded", ctx.Err())
		case <-memExceeded:
			killTree(cmd)
			return "", crerr.NewSandboxFailure("run", "memory limit exceeded", nil)
		case err := <-done:
			if err != nil {
				return model.OutcomeTestFail, nil
			}
			return model.OutcomeTestPass, nil
		case <-ticker.C:
			if time.Since(capture.lastWrite()) > noOutput {
				killTree(cmd)
				return "", crerr.NewSandboxFailure("run", "no output for longer than the configured timeout", nil)
			}
		}
	}
}

// monitorMemory polls cmd's process-tree RSS at a quarter of the no-output
// interval (or one second, if no-output enforcement is disabled) and signals
// exceeded once the sum crosses limitBytes (§4.4 "a hard limit ... enforced
// via the OS"). It exits once ctx is cancelled by the caller tearing down
// the phase.
func monitorMemory(ctx context.Context, cmd *exec.Cmd, limitBytes int64, noOutput time.Duration, exceeded chan<- struct{}) {
	interval := time.Second
	if noOutput > 0 {
		interval = noOutput / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cmd.Process == nil {
				continue
			}
			if processTreeRSS(cmd.Process.Pid) > limitBytes {
				select {
				case exceeded <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

// processTreeRSS sums resident set size across pid and its direct children,
// the same scope killTree kills, so the memory cap covers helper processes
// the command spawns itself (e.g. rustc invoked by cargo); grandchildren
// are not counted.
func processTreeRSS(pid int) int64 {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	var total int64
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		total += int64(mem.RSS)
	}
	children, _ := proc.Children()
	for _, child := range children {
		if mem, err := child.MemoryInfo(); err == nil && mem != nil {
			total += int64(mem.RSS)
		}
	}
	return total
}

// isMemoryExceeded reports whether err is the sandbox failure monitorMemory
// raised, so the caller can classify it as build-fail/test-fail instead of
// a timeout outcome.
func isMemoryExceeded(err error) bool {
	sf, ok := err.(*crerr.SandboxFailure)
	return ok && sf.Reason == "memory limit exceeded"
}

func (e *Executor) finish(outcome model.Outcome, log []byte, truncated bool) Result {
	compressed, err := compressLog(log)
	if err != nil {
		// Compression failure never hides a real outcome; store uncompressed.
		return Result{Outcome: outcome, Log: log, Truncated: truncated}
	}
	return Result{Outcome: outcome, Log: compressed, Truncated: truncated}
}

func compressLog(log []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(log); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func classifyPhaseError(err error) model.Outcome {
	var sf *crerr.SandboxFailure
	if as, ok := err.(*crerr.SandboxFailure); ok {
		sf = as
	}
	if sf != nil && sf.Reason == "no output for longer than the configured timeout" {
		return model.OutcomeTimeoutNoOutput
	}
	return model.OutcomeTimeoutOverall
}

// killTree kills the command's direct children (as enumerated by gopsutil)
// and then the command itself; if gopsutil can't enumerate children (e.g. on
// a platform without /proc), only the command is killed.
func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if proc, err := process.NewProcess(int32(cmd.Process.Pid)); err == nil {
		children, _ := proc.Children()
		for _, child := range children {
			_ = child.Kill()
		}
	}
	_ = cmd.Process.Kill()
}
