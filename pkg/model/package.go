// Package model defines Crater's core data model: packages, toolchains,
// experiments, jobs, and agents, as tagged variants matched by a Kind field
// rather than by an inheritance hierarchy (§9 "Package/toolchain
// polymorphism").
package model

import "fmt"

// PackageKind discriminates the two PackageRef variants.
type PackageKind string

const (
	PackageRegistry PackageKind = "registry"
	PackageGit      PackageKind = "git"
)

// PackageRef is a tagged reference to a source package: either a published
// registry crate at a version, or a git repository pinned at a sha.
// Equality is structural (§3 "Package reference").
type PackageRef struct {
	Kind PackageKind `json:"kind"`

	// Registry variant.
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`

	// Git variant.
	URL string `json:"url,omitempty"`
	SHA string `json:"sha,omitempty"`
}

// NewRegistryPackage builds a {registry: name, version} reference.
func NewRegistryPackage(name, version string) PackageRef {
	return PackageRef{Kind: PackageRegistry, Name: name, Version: version}
}

// NewGitPackage builds a {git: url, sha} reference.
func NewGitPackage(url, sha string) PackageRef {
	return PackageRef{Kind: PackageGit, URL: url, SHA: sha}
}

// Key returns a stable string uniquely identifying this package, suitable
// as a map key and as the path-safe component of the results tree (§6
// "results tree partitioned by toolchain then by package").
func (p PackageRef) Key() string {
	switch p.Kind {
	case PackageRegistry:
		return fmt.Sprintf("registry/%s-%s", p.Name, p.Version)
	case PackageGit:
		return fmt.Sprintf("git/%s@%s", p.URL, p.SHA)
	default:
		return "invalid-package"
	}
}

// Equal reports structural equality between two package references.
func (p PackageRef) Equal(other PackageRef) bool {
	return p == other
}

// Valid reports whether the tagged variant is well-formed.
func (p PackageRef) Valid() bool {
	switch p.Kind {
	case PackageRegistry:
		return p.Name != "" && p.Version != ""
	case PackageGit:
		return p.URL != "" && p.SHA != ""
	default:
		return false
	}
}

func (p PackageRef) String() string {
	switch p.Kind {
	case PackageRegistry:
		return fmt.Sprintf("%s@%s", p.Name, p.Version)
	case PackageGit:
		return fmt.Sprintf("%s#%s", p.URL, p.SHA)
	default:
		return "<invalid package>"
	}
}
