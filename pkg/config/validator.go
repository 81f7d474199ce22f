package config

import (
	"fmt"

	"github.com/codeready-toolchain/crater/pkg/crerr"
)

// Validator runs the deeper checks behind the `check-config` CLI verb
// (§4.8, §6): it needs the current package corpus to validate overrides,
// which Config.Validate alone does not have at construction time.
type Validator struct {
	cfg           *Config
	knownPackages map[string]bool
}

// NewValidator creates a validator for the given configuration, checking
// package overrides against knownPackages (the current corpus, e.g. from
// corpus.Corpus.KnownPackages).
func NewValidator(cfg *Config, knownPackages map[string]bool) *Validator {
	return &Validator{cfg: cfg, knownPackages: knownPackages}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error).
func (v *Validator) ValidateAll() error {
	if err := v.cfg.Validate(v.knownPackages); err != nil {
		return crerr.NewConfigError("overrides", err.Error())
	}
	if err := v.validateACL(); err != nil {
		return crerr.NewConfigError("acl", err.Error())
	}
	if err := v.validateLabels(); err != nil {
		return crerr.NewConfigError("labels", err.Error())
	}
	if err := v.validateSandbox(); err != nil {
		return crerr.NewConfigError("sandbox", err.Error())
	}
	return nil
}

func (v *Validator) validateACL() error {
	acl := v.cfg.ACL()
	seen := make(map[string]bool, len(acl.Users))
	for _, u := range acl.Users {
		if u == "" {
			return fmt.Errorf("acl.users contains an empty entry")
		}
		if seen[u] {
			return fmt.Errorf("acl.users: duplicate entry %q", u)
		}
		seen[u] = true
	}
	seenTeams := make(map[string]bool, len(acl.Teams))
	for _, team := range acl.Teams {
		if team == "" {
			return fmt.Errorf("acl.rust-teams contains an empty entry")
		}
		if seenTeams[team] {
			return fmt.Errorf("acl.rust-teams: duplicate entry %q", team)
		}
		seenTeams[team] = true
	}
	return nil
}

func (v *Validator) validateLabels() error {
	if v.cfg.Labels.Queued == "" {
		return fmt.Errorf("labels.queued must not be empty")
	}
	if v.cfg.Labels.Running == "" {
		return fmt.Errorf("labels.running must not be empty")
	}
	return nil
}

func (v *Validator) validateSandbox() error {
	s := v.cfg.Sandbox
	if s.MemoryLimitBytes <= 0 {
		return fmt.Errorf("sandbox.memory-limit must be positive, got %d", s.MemoryLimitBytes)
	}
	if s.BuildLogMaxSize <= 0 {
		return fmt.Errorf("sandbox.build-log-max-size must be positive, got %d", s.BuildLogMaxSize)
	}
	if s.BuildLogMaxLines <= 0 {
		return fmt.Errorf("sandbox.build-log-max-lines must be positive, got %d", s.BuildLogMaxLines)
	}
	if s.OverallTimeoutSecs <= 0 {
		return fmt.Errorf("sandbox.overall-timeout-secs must be positive, got %d", s.OverallTimeoutSecs)
	}
	if s.NoOutputTimeoutSecs < 0 {
		return fmt.Errorf("sandbox.no-output-timeout-secs must be non-negative, got %d", s.NoOutputTimeoutSecs)
	}
	if s.NoOutputTimeoutSecs > 0 && s.NoOutputTimeoutSecs >= s.OverallTimeoutSecs {
		return fmt.Errorf("sandbox.no-output-timeout-secs must be less than overall-timeout-secs, got no-output=%d overall=%d", s.NoOutputTimeoutSecs, s.OverallTimeoutSecs)
	}
	return nil
}
