package model

import "time"

// Mode is the operation an experiment runs per job (§3 "mode").
type Mode string

const (
	ModeBuildAndTest Mode = "build-and-test"
	ModeBuildOnly    Mode = "build-only"
	ModeCheckOnly    Mode = "check-only"
	ModeClippy       Mode = "clippy"
	ModeDoc          Mode = "doc"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeBuildAndTest, ModeBuildOnly, ModeCheckOnly, ModeClippy, ModeDoc:
		return true
	default:
		return false
	}
}

// RunsTests reports whether phase 3 (test) applies to this mode (§4.4).
func (m Mode) RunsTests() bool {
	return m == ModeBuildAndTest
}

// CrateSelectionKind discriminates how an experiment's package set is chosen.
type CrateSelectionKind string

const (
	SelectionFull     CrateSelectionKind = "full"
	SelectionTopN     CrateSelectionKind = "top-n"
	SelectionRandomN  CrateSelectionKind = "random-n"
	SelectionExplicit CrateSelectionKind = "explicit"
	SelectionDemo     CrateSelectionKind = "demo"
)

// CrateSelection describes which packages an experiment covers (§3
// "crate-selection").
type CrateSelection struct {
	Kind     CrateSelectionKind `json:"kind"`
	N        int                `json:"n,omitempty"`
	Explicit []PackageRef       `json:"explicit,omitempty"`
}

// Valid reports whether the selection is well-formed given its kind.
func (c CrateSelection) Valid() bool {
	switch c.Kind {
	case SelectionFull, SelectionDemo:
		return true
	case SelectionTopN, SelectionRandomN:
		return c.N > 0
	case SelectionExplicit:
		return len(c.Explicit) > 0
	default:
		return false
	}
}

// LintCap is the maximum severity a lint diagnostic is capped at (§3 "lint cap").
type LintCap string

const (
	LintForbid LintCap = "forbid"
	LintDeny   LintCap = "deny"
	LintWarn   LintCap = "warn"
	LintAllow  LintCap = "allow"
)

// Valid reports whether l is a recognized lint cap.
func (l LintCap) Valid() bool {
	switch l {
	case LintForbid, LintDeny, LintWarn, LintAllow, "":
		return true
	default:
		return false
	}
}

// Status is an experiment's lifecycle state (§3 "Lifecycle").
type Status string

const (
	StatusQueued            Status = "queued"
	StatusRunning           Status = "running"
	StatusNeedsReport       Status = "needs-report"
	StatusGeneratingReport  Status = "generating-report"
	StatusReportFailed      Status = "report-failed"
	StatusCompleted         Status = "completed"
	StatusAborted           Status = "aborted"
)

// Editable reports whether toolchains/mode/crates may still be edited
// (§3 invariant 3: "permitted only while queued").
func (s Status) Editable() bool {
	return s == StatusQueued
}

// Terminal reports whether s is a final state that releases any agent
// assignment and removes the experiment from dispatch consideration.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusReportFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// Experiment is a named unit of work comparing two toolchains over a fixed
// package set (§3 "Experiment").
type Experiment struct {
	Name string `json:"name"`

	ToolchainA ToolchainRef `json:"toolchain_a"`
	ToolchainB ToolchainRef `json:"toolchain_b"`

	Mode            Mode           `json:"mode"`
	Crates          CrateSelection `json:"crates"`
	CapLints        LintCap        `json:"cap_lints"`
	IgnoreBlacklist bool           `json:"ignore_blacklist"`

	Requirement []string `json:"requirement"` // capability tags, e.g. "linux"
	Priority    int      `json:"priority"`
	Assign      string   `json:"assign,omitempty"` // pinned agent name, if any

	Requester string `json:"requester"`
	GitHubURL string `json:"github_url,omitempty"`

	AssignedAgent string `json:"assigned_agent,omitempty"`
	Status        Status `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RequirementSubsetOf reports whether this experiment's requirement tags
// are all present in the given agent capability set (§4.2 "assigning ...
// requirement is a subset of the requesting agent's capabilities").
func (e Experiment) RequirementSubsetOf(capabilities []string) bool {
	have := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		have[c] = struct{}{}
	}
	for _, need := range e.Requirement {
		if _, ok := have[need]; !ok {
			return false
		}
	}
	return true
}

// EligibleFor reports whether the given agent (name + capabilities) may
// pick up this experiment: either it isn't pinned to a specific agent, or
// it's pinned to exactly this one, and in both cases capabilities must be
// a superset of the requirement (§4.2 "if an assign is set, only that
// agent may pick it up").
func (e Experiment) EligibleFor(agentName string, capabilities []string) bool {
	if e.Assign != "" && e.Assign != agentName {
		return false
	}
	return e.RequirementSubsetOf(capabilities)
}
