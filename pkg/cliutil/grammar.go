// Package cliutil implements the operator command grammar named in §6:
// "one command per line ... with key=value arguments; recognized options
// {name, start, end, mode, crates, cap-lints, ignore-blacklist,
// requirement, assign, p(riority)} ... toolchain values support `channel`,
// `branch#sha`, and suffixes `+rustflags=…`, `+patch=name=url=branch`."
// It is consumed by both the operator CLI verbs and (in spirit) the bot
// collaborator mentioned in §4.7, which speaks the same grammar over chat.
package cliutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/crater/pkg/model"
)

// Args is a parsed key=value argument set from one command-grammar line.
type Args map[string]string

// ParseArgs splits a slice of "key=value" tokens (as cobra hands them off
// after flag parsing, or as split from a single chat line) into Args.
func ParseArgs(tokens []string) (Args, error) {
	out := make(Args, len(tokens))
	for _, tok := range tokens {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			return nil, fmt.Errorf("malformed argument %q: expected key=value", tok)
		}
		out[key] = value
	}
	return out, nil
}

// ParseToolchain parses a toolchain value: a bare channel name
// (stable/beta/nightly), or `branch#sha` for a CI build, followed by any
// number of `+rustflags=...` / `+patch=name=url=branch` suffixes.
func ParseToolchain(value string) (model.ToolchainRef, error) {
	parts := strings.Split(value, "+")
	base := parts[0]

	var tc model.ToolchainRef
	if sha, ok := strings.CutPrefix(base, "try#"); ok {
		tc = model.NewCIToolchain(sha, true)
	} else if _, sha, found := strings.Cut(base, "#"); found {
		tc = model.NewCIToolchain(sha, false)
	} else {
		tc = model.NewDistToolchain(base)
	}

	for _, suffix := range parts[1:] {
		switch {
		case strings.HasPrefix(suffix, "rustflags="):
			tc.RustFlags = strings.TrimPrefix(suffix, "rustflags=")
		case strings.HasPrefix(suffix, "patch="):
			patch, err := parsePatch(strings.TrimPrefix(suffix, "patch="))
			if err != nil {
				return model.ToolchainRef{}, err
			}
			tc.Patches = append(tc.Patches, patch)
		default:
			return model.ToolchainRef{}, fmt.Errorf("unrecognized toolchain suffix %q", suffix)
		}
	}

	if !tc.Valid() {
		return model.ToolchainRef{}, fmt.Errorf("invalid toolchain value %q", value)
	}
	return tc, nil
}

func parsePatch(spec string) (model.SourcePatch, error) {
	fields := strings.SplitN(spec, "=", 3)
	if len(fields) != 3 {
		return model.SourcePatch{}, fmt.Errorf("malformed patch spec %q: expected name=url=branch", spec)
	}
	return model.SourcePatch{Name: fields[0], URL: fields[1], Branch: fields[2]}, nil
}

// ParseCrateSelection parses a crates= value: "full", "demo", "top-N",
// "random-N", or "explicit:pkg1,pkg2,..." where each pkg is a registry
// "name@version" or git "url#sha" reference (§3 "crate-selection").
func ParseCrateSelection(value string) (model.CrateSelection, error) {
	switch {
	case value == "full":
		return model.CrateSelection{Kind: model.SelectionFull}, nil
	case value == "demo":
		return model.CrateSelection{Kind: model.SelectionDemo}, nil
	case strings.HasPrefix(value, "top-"):
		n, err := strconv.Atoi(strings.TrimPrefix(value, "top-"))
		if err != nil {
			return model.CrateSelection{}, fmt.Errorf("invalid top-N crate selection %q: %w", value, err)
		}
		return model.CrateSelection{Kind: model.SelectionTopN, N: n}, nil
	case strings.HasPrefix(value, "random-"):
		n, err := strconv.Atoi(strings.TrimPrefix(value, "random-"))
		if err != nil {
			return model.CrateSelection{}, fmt.Errorf("invalid random-N crate selection %q: %w", value, err)
		}
		return model.CrateSelection{Kind: model.SelectionRandomN, N: n}, nil
	case strings.HasPrefix(value, "explicit:"):
		list := strings.TrimPrefix(value, "explicit:")
		refs, err := parsePackageList(list)
		if err != nil {
			return model.CrateSelection{}, err
		}
		return model.CrateSelection{Kind: model.SelectionExplicit, Explicit: refs}, nil
	default:
		return model.CrateSelection{}, fmt.Errorf("unrecognized crate selection %q", value)
	}
}

func parsePackageList(list string) ([]model.PackageRef, error) {
	var refs []model.PackageRef
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ref, err := parsePackage(item)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("explicit crate selection requires at least one package")
	}
	return refs, nil
}

func parsePackage(item string) (model.PackageRef, error) {
	if url, sha, found := strings.Cut(item, "#"); found {
		return model.NewGitPackage(url, sha), nil
	}
	if name, version, found := strings.Cut(item, "@"); found {
		return model.NewRegistryPackage(name, version), nil
	}
	return model.PackageRef{}, fmt.Errorf("malformed package reference %q: expected name@version or url#sha", item)
}

// ParseLintCap parses a cap-lints= value.
func ParseLintCap(value string) (model.LintCap, error) {
	lc := model.LintCap(value)
	if !lc.Valid() {
		return "", fmt.Errorf("unrecognized lint cap %q", value)
	}
	return lc, nil
}

// ParseBool parses an ignore-blacklist= value, defaulting to false on an
// empty string.
func ParseBool(value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

// ParseRequirement splits a comma-separated requirement= value into
// capability tags.
func ParseRequirement(value string) []string {
	if value == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(value, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
