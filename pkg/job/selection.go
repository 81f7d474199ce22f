package job

import (
	"math/rand"

	"github.com/codeready-toolchain/crater/pkg/model"
)

// Corpus is the package universe an experiment's crate selection is
// resolved against — the registry's full crate list, ranked by download
// count for top-n (§3 "crate-selection").
type Corpus interface {
	All() []model.PackageRef
	TopN(n int) []model.PackageRef
	Demo() []model.PackageRef
}

// Resolve turns a CrateSelection into a concrete package list (§3
// "crate-selection", §4.3). random-n is seeded by the caller-supplied rng
// so planning stays deterministic in tests.
func Resolve(sel model.CrateSelection, corpus Corpus, rng *rand.Rand) []model.PackageRef {
	switch sel.Kind {
	case model.SelectionFull:
		return corpus.All()
	case model.SelectionTopN:
		return corpus.TopN(sel.N)
	case model.SelectionDemo:
		return corpus.Demo()
	case model.SelectionExplicit:
		return sel.Explicit
	case model.SelectionRandomN:
		all := corpus.All()
		if sel.N >= len(all) {
			return all
		}
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		shuffled := make([]model.PackageRef, len(all))
		copy(shuffled, all)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return shuffled[:sel.N]
	default:
		return nil
	}
}
