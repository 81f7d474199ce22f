// Package job plans the set of jobs an experiment runs: the cartesian
// product of its package selection and its two toolchains, filtered and
// annotated by package-level policy overrides (§4.3).
package job

import (
	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// Plan is a single planned job paired with the policy that governs its
// execution (§4.3, consumed by the sandbox executor for timeout/quiet
// overrides; the report pass looks up the broken override itself via
// config.OverrideFor).
type Plan struct {
	Package   model.PackageRef
	Toolchain model.ToolchainRef
	Override  config.PackageOverride
}

// Build expands an experiment's package selection against both of its
// toolchains, dropping packages whose override sets skip (§4.3 "skip
// excludes the package from the plan entirely") and skipping the test
// phase's jobs — by annotation, not by omission — when skip-tests is set
// and the mode otherwise runs tests (§4.3 "skip-tests still builds but
// short-circuits the test phase").
func Build(exp model.Experiment, packages []model.PackageRef, cfg *config.Config) []Plan {
	var plans []Plan
	for _, pkg := range packages {
		override := cfg.OverrideFor(pkg.Key())
		if override.Skip {
			continue
		}
		plans = append(plans, Plan{Package: pkg, Toolchain: exp.ToolchainA, Override: override})
		plans = append(plans, Plan{Package: pkg, Toolchain: exp.ToolchainB, Override: override})
	}
	return plans
}

// RunsTests reports whether the test phase applies to this plan entry,
// combining the experiment's mode with the package's skip-tests override
// (§4.3 "skip-tests" and §4.4 phase 3).
func RunsTests(exp model.Experiment, p Plan) bool {
	return exp.Mode.RunsTests() && !p.Override.SkipTests
}
