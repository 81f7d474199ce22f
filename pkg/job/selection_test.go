package job

import (
	"math/rand"
	"testing"

	"github.com/codeready-toolchain/crater/pkg/model"
	"github.com/stretchr/testify/assert"
)

type fakeCorpus struct {
	all []model.PackageRef
}

func (c fakeCorpus) All() []model.PackageRef { return c.all }
func (c fakeCorpus) TopN(n int) []model.PackageRef {
	if n > len(c.all) {
		n = len(c.all)
	}
	return c.all[:n]
}
func (c fakeCorpus) Demo() []model.PackageRef { return c.all[:1] }

func corpusOf(names ...string) fakeCorpus {
	var pkgs []model.PackageRef
	for _, n := range names {
		pkgs = append(pkgs, model.NewRegistryPackage(n, "1.0.0"))
	}
	return fakeCorpus{all: pkgs}
}

func TestResolve_Full(t *testing.T) {
	corpus := corpusOf("a", "b", "c")
	got := Resolve(model.CrateSelection{Kind: model.SelectionFull}, corpus, nil)
	assert.Len(t, got, 3)
}

func TestResolve_TopN(t *testing.T) {
	corpus := corpusOf("a", "b", "c")
	got := Resolve(model.CrateSelection{Kind: model.SelectionTopN, N: 2}, corpus, nil)
	assert.Len(t, got, 2)
}

func TestResolve_Explicit(t *testing.T) {
	explicit := []model.PackageRef{model.NewRegistryPackage("x", "1.0.0")}
	got := Resolve(model.CrateSelection{Kind: model.SelectionExplicit, Explicit: explicit}, corpusOf("a"), nil)
	assert.Equal(t, explicit, got)
}

func TestResolve_RandomN_Deterministic(t *testing.T) {
	corpus := corpusOf("a", "b", "c", "d", "e")
	sel := model.CrateSelection{Kind: model.SelectionRandomN, N: 2}

	got1 := Resolve(sel, corpus, rand.New(rand.NewSource(42)))
	got2 := Resolve(sel, corpus, rand.New(rand.NewSource(42)))
	assert.Equal(t, got1, got2)
	assert.Len(t, got1, 2)
}

func TestResolve_RandomN_ClampsToCorpusSize(t *testing.T) {
	corpus := corpusOf("a", "b")
	got := Resolve(model.CrateSelection{Kind: model.SelectionRandomN, N: 10}, corpus, nil)
	assert.Len(t, got, 2)
}
