package cliutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/crater/pkg/model"
)

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs([]string{"name=pr-1", "mode=build-and-test"})
	require.NoError(t, err)
	assert.Equal(t, "pr-1", args["name"])
	assert.Equal(t, "build-and-test", args["mode"])
}

func TestParseArgs_RejectsMalformed(t *testing.T) {
	_, err := ParseArgs([]string{"nope"})
	assert.Error(t, err)
}

func TestParseToolchain_Channel(t *testing.T) {
	tc, err := ParseToolchain("stable")
	require.NoError(t, err)
	assert.Equal(t, model.NewDistToolchain("stable"), tc)
}

func TestParseToolchain_CIBranchSHA(t *testing.T) {
	tc, err := ParseToolchain("master#abc123")
	require.NoError(t, err)
	assert.Equal(t, model.ToolchainCI, tc.Kind)
	assert.Equal(t, "abc123", tc.SHA)
	assert.False(t, tc.Try)
}

func TestParseToolchain_TryBuild(t *testing.T) {
	tc, err := ParseToolchain("try#abc123")
	require.NoError(t, err)
	assert.True(t, tc.Try)
	assert.Equal(t, "abc123", tc.SHA)
}

func TestParseToolchain_WithRustflagsAndPatch(t *testing.T) {
	tc, err := ParseToolchain("beta+rustflags=-Zsome-flag+patch=serde=https://example.com/serde=my-branch")
	require.NoError(t, err)
	assert.Equal(t, "-Zsome-flag", tc.RustFlags)
	require.Len(t, tc.Patches, 1)
	assert.Equal(t, model.SourcePatch{Name: "serde", URL: "https://example.com/serde", Branch: "my-branch"}, tc.Patches[0])
}

func TestParseToolchain_RejectsUnknownChannel(t *testing.T) {
	_, err := ParseToolchain("made-up-channel")
	assert.Error(t, err)
}

func TestParseCrateSelection(t *testing.T) {
	cases := map[string]model.CrateSelection{
		"full":     {Kind: model.SelectionFull},
		"demo":     {Kind: model.SelectionDemo},
		"top-100":  {Kind: model.SelectionTopN, N: 100},
		"random-5": {Kind: model.SelectionRandomN, N: 5},
	}
	for input, want := range cases {
		got, err := ParseCrateSelection(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestParseCrateSelection_Explicit(t *testing.T) {
	sel, err := ParseCrateSelection("explicit:lazy_static@0.2.11,https://github.com/brson/hello-rs#deadbeef")
	require.NoError(t, err)
	assert.Equal(t, model.SelectionExplicit, sel.Kind)
	require.Len(t, sel.Explicit, 2)
	assert.Equal(t, model.NewRegistryPackage("lazy_static", "0.2.11"), sel.Explicit[0])
	assert.Equal(t, model.NewGitPackage("https://github.com/brson/hello-rs", "deadbeef"), sel.Explicit[1])
}

func TestParseCrateSelection_RejectsUnknown(t *testing.T) {
	_, err := ParseCrateSelection("whatever")
	assert.Error(t, err)
}

func TestParseLintCap(t *testing.T) {
	lc, err := ParseLintCap("forbid")
	require.NoError(t, err)
	assert.Equal(t, model.LintForbid, lc)

	_, err = ParseLintCap("bogus")
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	v, err := ParseBool("")
	require.NoError(t, err)
	assert.False(t, v)

	v, err = ParseBool("true")
	require.NoError(t, err)
	assert.True(t, v)
}

func TestParseRequirement(t *testing.T) {
	assert.Equal(t, []string{"linux", "big-disk"}, ParseRequirement("linux, big-disk"))
	assert.Nil(t, ParseRequirement(""))
}
