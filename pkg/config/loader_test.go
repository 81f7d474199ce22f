package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "crater.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSandboxCaps(), cfg.Sandbox)
	assert.Equal(t, "S-waiting-on-crater", cfg.Labels.Queued)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crater.yaml")
	doc := `
acl:
  rust-teams:
    - compiler-team
  users:
    - alice
labels:
  completed: S-crater-complete
demo-crates:
  - lazy_static
  - hello-rs
sandbox:
  memory-limit: 2147483648
overrides:
  lazy_static:
    broken: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.ACL().Allows("alice"))
	assert.True(t, cfg.ACL().Allows("team:compiler-team"))
	assert.Equal(t, "S-crater-complete", cfg.Labels.Completed)
	assert.Equal(t, "S-waiting-on-crater", cfg.Labels.Queued, "unset fields keep their default")
	assert.Equal(t, []string{"lazy_static", "hello-rs"}, cfg.DemoSet)
	assert.EqualValues(t, 2147483648, cfg.Sandbox.MemoryLimitBytes)
	assert.Equal(t, DefaultSandboxCaps().BuildLogMaxSize, cfg.Sandbox.BuildLogMaxSize, "unset sandbox fields keep their default")
	assert.True(t, cfg.OverrideFor("lazy_static").Broken)
}

func TestLoad_DirectoryResolvesToCraterYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crater.yaml"), []byte("demo-crates: [lazy_static]\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"lazy_static"}, cfg.DemoSet)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CRATER_ADMIN", "alice")
	dir := t.TempDir()
	path := filepath.Join(dir, "crater.yaml")
	require.NoError(t, os.WriteFile(path, []byte("acl:\n  users:\n    - ${CRATER_ADMIN}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.ACL().Allows("alice"))
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crater.yaml")
	require.NoError(t, os.WriteFile(path, []byte("acl: [this is not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidator_RejectsUnknownOverridePackageAfterLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crater.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overrides:\n  unknown-crate:\n    skip: true\n"), 0o644))

	// Load itself validates with knownPackages=nil (no corpus check); the
	// stricter corpus-aware check happens via Validator in check-config.
	cfg, err := Load(path)
	require.NoError(t, err)

	v := NewValidator(cfg, map[string]bool{"lazy_static": true})
	assert.Error(t, v.ValidateAll())
}
