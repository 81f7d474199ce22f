package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/crater/pkg/config"
)

func writeCorpusFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	data := `[
		{"package": {"kind": "registry", "name": "serde", "version": "1.0.0"}, "rank": 1},
		{"package": {"kind": "registry", "name": "tokio", "version": "1.0.0"}, "rank": 2},
		{"package": {"kind": "registry", "name": "rand", "version": "0.8.0"}, "rank": 3}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad_OrdersByRank(t *testing.T) {
	c, err := Load(writeCorpusFile(t))
	require.NoError(t, err)
	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "serde", all[0].Name)
	assert.Equal(t, "rand", all[2].Name)
}

func TestTopN_ClampsToSize(t *testing.T) {
	c, err := Load(writeCorpusFile(t))
	require.NoError(t, err)
	assert.Len(t, c.TopN(2), 2)
	assert.Len(t, c.TopN(100), 3)
}

func TestBound_Demo(t *testing.T) {
	c, err := Load(writeCorpusFile(t))
	require.NoError(t, err)
	cfg := &config.Config{DemoSet: []string{"registry/tokio-1.0.0"}}
	bound := c.Bind(cfg)
	demo := bound.Demo()
	require.Len(t, demo, 1)
	assert.Equal(t, "tokio", demo[0].Name)
}

func TestKnown(t *testing.T) {
	c, err := Load(writeCorpusFile(t))
	require.NoError(t, err)
	assert.True(t, c.Known("registry/serde-1.0.0"))
	assert.False(t, c.Known("registry/nonexistent-0.0.0"))
}
