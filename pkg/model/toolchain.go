package model

import "fmt"

// ToolchainKind discriminates the two ToolchainRef variants.
type ToolchainKind string

const (
	ToolchainDist ToolchainKind = "dist"
	ToolchainCI   ToolchainKind = "ci"
)

// ToolchainRef is a tagged reference to a compiler build: either a named
// release channel, or a CI build pinned at a commit sha (§3 "Toolchain
// reference").
type ToolchainRef struct {
	Kind ToolchainKind `json:"kind"`

	// Dist variant, e.g. "stable", "beta", "nightly".
	Channel string `json:"channel,omitempty"`

	// CI variant.
	SHA string `json:"sha,omitempty"`
	Try bool   `json:"try,omitempty"`

	// Shared optional modifiers.
	RustFlags string        `json:"rustflags,omitempty"`
	Patches   []SourcePatch `json:"patches,omitempty"`
}

// SourcePatch overrides a dependency's source for the duration of a single
// experiment, as produced by the `+patch=name=url=branch` toolchain suffix
// grammar (§6).
type SourcePatch struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Branch string `json:"branch"`
}

// NewDistToolchain builds a {dist: channel} reference.
func NewDistToolchain(channel string) ToolchainRef {
	return ToolchainRef{Kind: ToolchainDist, Channel: channel}
}

// NewCIToolchain builds a {ci: sha, try?} reference.
func NewCIToolchain(sha string, try bool) ToolchainRef {
	return ToolchainRef{Kind: ToolchainCI, SHA: sha, Try: try}
}

// Key returns a stable string identifying the toolchain for the results
// tree ("results tree partitioned by toolchain then by package", §6).
func (t ToolchainRef) Key() string {
	switch t.Kind {
	case ToolchainDist:
		return "dist-" + t.Channel
	case ToolchainCI:
		if t.Try {
			return "ci-try-" + t.SHA
		}
		return "ci-" + t.SHA
	default:
		return "invalid-toolchain"
	}
}

// Valid reports whether the tagged variant is well-formed.
func (t ToolchainRef) Valid() bool {
	switch t.Kind {
	case ToolchainDist:
		return t.Channel == "stable" || t.Channel == "beta" || t.Channel == "nightly"
	case ToolchainCI:
		return t.SHA != ""
	default:
		return false
	}
}

func (t ToolchainRef) String() string {
	base := t.Key()
	if t.RustFlags != "" {
		base += "+rustflags=" + t.RustFlags
	}
	for _, p := range t.Patches {
		base += fmt.Sprintf("+patch=%s=%s=%s", p.Name, p.URL, p.Branch)
	}
	return base
}
