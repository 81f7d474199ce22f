// Package workspace is the reference implementation of sandbox.Workspace:
// it checks out a package's source, pins a toolchain, and builds the
// cargo/rustup commands for each execution phase. The spec treats
// workspace construction as a pluggable collaborator; this is the
// in-tree implementation used outside of tests.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/crater/pkg/model"
	"github.com/codeready-toolchain/crater/pkg/sandbox"
)

// Builder implements sandbox.Workspace over a local cargo/rustup toolchain
// and git checkout.
type Builder struct {
	root string // parent directory jobs are checked out under
}

// NewBuilder creates a Builder rooted at root (typically a scratch volume
// dedicated to the agent process).
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Prepare checks out the package's source into a fresh per-job directory
// and installs the toolchain via rustup.
func (b *Builder) Prepare(ctx context.Context, pkg model.PackageRef, tc model.ToolchainRef) (string, error) {
	dir := filepath.Join(b.root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}

	if err := fetchSource(ctx, dir, pkg); err != nil {
		return "", err
	}
	if err := installToolchain(ctx, tc); err != nil {
		return "", err
	}
	for _, patch := range tc.Patches {
		if err := applyPatch(ctx, dir, patch); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// Command builds the cargo invocation for a phase, pinned to the
// experiment's toolchain via rustup's `+<toolchain>` override and carrying
// RUSTFLAGS/cap-lints from the toolchain and experiment (§4.3, §6).
func (b *Builder) Command(ctx context.Context, dir string, phase sandbox.Phase, exp model.Experiment) (*exec.Cmd, error) {
	args, err := cargoArgs(phase, exp)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), toolchainEnv(exp.ToolchainB)...)
	return cmd, nil
}

// Cleanup removes the job's checkout.
func (b *Builder) Cleanup(dir string) {
	_ = os.RemoveAll(dir)
}

func cargoArgs(phase sandbox.Phase, exp model.Experiment) ([]string, error) {
	switch phase {
	case sandbox.PhaseBuild:
		switch exp.Mode {
		case model.ModeCheckOnly:
			return []string{"check", "--all-targets"}, nil
		case model.ModeClippy:
			return clippyArgs(exp.CapLints), nil
		case model.ModeDoc:
			return []string{"doc", "--no-deps"}, nil
		default:
			return []string{"build", "--all-targets"}, nil
		}
	case sandbox.PhaseTest:
		return []string{"test", "--all-targets"}, nil
	default:
		return nil, fmt.Errorf("unsupported phase %q", phase)
	}
}

func clippyArgs(cap model.LintCap) []string {
	args := []string{"clippy", "--all-targets"}
	if cap != "" {
		args = append(args, "--", "-Wclippy::all", "-"+clippyCapFlag(cap))
	}
	return args
}

func clippyCapFlag(cap model.LintCap) string {
	switch cap {
	case model.LintForbid:
		return "F warnings"
	case model.LintDeny:
		return "D warnings"
	case model.LintWarn:
		return "W warnings"
	default:
		return "A warnings"
	}
}

func toolchainEnv(tc model.ToolchainRef) []string {
	if tc.RustFlags == "" {
		return nil
	}
	return []string{"RUSTFLAGS=" + tc.RustFlags}
}

func fetchSource(ctx context.Context, dir string, pkg model.PackageRef) error {
	switch pkg.Kind {
	case model.PackageGit:
		cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", pkg.URL, dir)
		return cmd.Run()
	case model.PackageRegistry:
		cmd := exec.CommandContext(ctx, "cargo", "download", "-x", "-o", dir,
			fmt.Sprintf("%s==%s", pkg.Name, pkg.Version))
		return cmd.Run()
	default:
		return fmt.Errorf("unsupported package kind %q", pkg.Kind)
	}
}

func installToolchain(ctx context.Context, tc model.ToolchainRef) error {
	var name string
	switch tc.Kind {
	case model.ToolchainDist:
		name = tc.Channel
	case model.ToolchainCI:
		name = "ci-" + tc.SHA
	default:
		return fmt.Errorf("unsupported toolchain kind %q", tc.Kind)
	}
	cmd := exec.CommandContext(ctx, "rustup", "toolchain", "install", name)
	return cmd.Run()
}

func applyPatch(ctx context.Context, dir string, patch model.SourcePatch) error {
	cargoToml := filepath.Join(dir, "Cargo.toml")
	patchLine := fmt.Sprintf("\n[patch.crates-io]\n%s = { git = %q, branch = %q }\n", patch.Name, patch.URL, patch.Branch)
	f, err := os.OpenFile(cargoToml, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open Cargo.toml for patch: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(patchLine)
	return err
}
