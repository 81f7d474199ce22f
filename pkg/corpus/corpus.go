// Package corpus is the thin adapter over the external corpus-discovery
// pipeline (§1 "Out of scope ... the corpus discovery pipeline (producing
// crate lists)"): it reads that pipeline's output — a ranked flat package
// list — and implements job.Corpus against it so the planner and registry
// never depend on how the list was produced.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// entry is one row of the corpus file, ranked by the external pipeline's
// own popularity metric (typically registry download count).
type entry struct {
	Package model.PackageRef `json:"package"`
	Rank    int              `json:"rank"`
}

// Corpus is an in-memory snapshot of the known package universe, ranked
// for top-n selection and filterable against the config's demo-crate set
// (§3 "crate-selection", §4.8 "demo-crate set").
type Corpus struct {
	ranked []model.PackageRef // ordered best-rank-first
	byKey  map[string]bool
}

// Load reads a JSON corpus file — an array of {package, rank} entries
// produced by the external discovery pipeline — and builds an in-memory
// Corpus ordered by rank.
func Load(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus file: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })

	ranked := make([]model.PackageRef, len(entries))
	byKey := make(map[string]bool, len(entries))
	for i, e := range entries {
		ranked[i] = e.Package
		byKey[e.Package.Key()] = true
	}
	return &Corpus{ranked: ranked, byKey: byKey}, nil
}

// All returns every known package, best-ranked first.
func (c *Corpus) All() []model.PackageRef {
	out := make([]model.PackageRef, len(c.ranked))
	copy(out, c.ranked)
	return out
}

// TopN returns the n best-ranked packages, or the full corpus if n exceeds
// its size.
func (c *Corpus) TopN(n int) []model.PackageRef {
	if n > len(c.ranked) {
		n = len(c.ranked)
	}
	out := make([]model.PackageRef, n)
	copy(out, c.ranked[:n])
	return out
}

// demoSet resolves a set of demo-crate package keys against this corpus,
// skipping any key the corpus doesn't recognize (§4.8 "demo-crate set").
func (c *Corpus) demoSet(keys []string) []model.PackageRef {
	var out []model.PackageRef
	want := make(map[string]bool, len(keys))
	for _, key := range keys {
		want[key] = true
	}
	for _, pkg := range c.ranked {
		if want[pkg.Key()] {
			out = append(out, pkg)
		}
	}
	return out
}

// Bound is a job.Corpus view of this Corpus with the config's demo-crate
// set already resolved, matching the planner's no-argument Demo() method
// (§3 "crate-selection").
type Bound struct {
	corpus  *Corpus
	demoSet []string
}

// Bind pairs this corpus with a configuration snapshot, for use wherever
// job.Corpus is expected.
func (c *Corpus) Bind(cfg *config.Config) *Bound {
	return &Bound{corpus: c, demoSet: cfg.DemoSet}
}

func (b *Bound) All() []model.PackageRef       { return b.corpus.All() }
func (b *Bound) TopN(n int) []model.PackageRef { return b.corpus.TopN(n) }
func (b *Bound) Demo() []model.PackageRef      { return b.corpus.demoSet(b.demoSet) }

// Known reports whether key refers to a package in this corpus
// (check-config itself uses KnownPackages).
func (c *Corpus) Known(key string) bool {
	return c.byKey[key]
}

// KnownPackages returns the full known-key set for config.Validate's
// check-config pass (§4.8).
func (c *Corpus) KnownPackages() map[string]bool {
	out := make(map[string]bool, len(c.byKey))
	for k, v := range c.byKey {
		out[k] = true
		_ = v
	}
	return out
}
