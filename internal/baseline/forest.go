// Package baseline trains and scores the unsupervised outlier model
// used to judge per-minute activity vectors. It is an isolation
// forest: an ensemble of random binary partition trees where short
// average path lengths mark easily-isolated, hence anomalous, points.
package baseline

import (
	"math"
	"math/rand"
	"sort"
)

type Options struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

func DefaultOptions() Options {
	return Options{Trees: 100, SampleSize: 256, Contamination: 0.05, Seed: 42}
}

// Forest is a trained model. A nil *Forest is the explicit "baseline
// absent" state and scores every vector as neutral 0.0.
type Forest struct {
	trees      []*node
	sampleSize int
	offset     float64
}

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int
}

// Train fits a forest on vectors. It returns nil when vectors is
// empty. Training is deterministic for a given Options.Seed.
func Train(vectors [][]float64, opts Options) *Forest {
	if len(vectors) == 0 {
		return nil
	}
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = 256
	}
	if opts.Contamination <= 0 || opts.Contamination >= 0.5 {
		opts.Contamination = 0.05
	}

	sample := opts.SampleSize
	if sample > len(vectors) {
		sample = len(vectors)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sample)))) + 1

	rng := rand.New(rand.NewSource(opts.Seed))
	f := &Forest{trees: make([]*node, 0, opts.Trees), sampleSize: sample}
	for i := 0; i < opts.Trees; i++ {
		sub := subsample(vectors, sample, rng)
		f.trees = append(f.trees, buildTree(sub, 0, maxDepth, rng))
	}

	// Anchor the decision function the way sklearn does: the offset is
	// the contamination-quantile of the training scores, so roughly
	// that fraction of training-like points scores below zero.
	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		scores[i] = f.rawScore(v)
	}
	sort.Float64s(scores)
	idx := int(opts.Contamination * float64(len(scores)))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	f.offset = scores[idx]
	return f
}

// Score returns the decision-function value for v: positive for
// baseline-like vectors, negative for anomalous ones. A nil forest
// returns the neutral score 0.0.
func (f *Forest) Score(v []float64) float64 {
	if f == nil || len(f.trees) == 0 {
		return 0.0
	}
	return f.rawScore(v) - f.offset
}

func (f *Forest) rawScore(v []float64) float64 {
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, v, 0)
	}
	avg := total / float64(len(f.trees))
	denom := avgPathLength(f.sampleSize)
	if denom <= 0 {
		denom = 1
	}
	// s in (0,1], near 1 for anomalies; negate so lower means more
	// anomalous.
	s := math.Pow(2, -avg/denom)
	return -s
}

func subsample(vectors [][]float64, n int, rng *rand.Rand) [][]float64 {
	if n >= len(vectors) {
		return vectors
	}
	idx := rng.Perm(len(vectors))[:n]
	out := make([][]float64, n)
	for i, j := range idx {
		out[i] = vectors[j]
	}
	return out
}

func buildTree(vectors [][]float64, depth, maxDepth int, rng *rand.Rand) *node {
	n := &node{size: len(vectors)}
	if len(vectors) <= 1 || depth >= maxDepth {
		return n
	}
	dim := len(vectors[0])
	feature, lo, hi, ok := pickSplitFeature(vectors, dim, rng)
	if !ok {
		return n
	}
	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, v := range vectors {
		if v[feature] < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return n
	}
	n.feature = feature
	n.split = split
	n.left = buildTree(left, depth+1, maxDepth, rng)
	n.right = buildTree(right, depth+1, maxDepth, rng)
	return n
}

// pickSplitFeature chooses a random feature with spread, starting from
// a random offset so ties do not always favor low indexes.
func pickSplitFeature(vectors [][]float64, dim int, rng *rand.Rand) (int, float64, float64, bool) {
	start := rng.Intn(dim)
	for i := 0; i < dim; i++ {
		feature := (start + i) % dim
		lo, hi := vectors[0][feature], vectors[0][feature]
		for _, v := range vectors[1:] {
			if v[feature] < lo {
				lo = v[feature]
			}
			if v[feature] > hi {
				hi = v[feature]
			}
		}
		if hi > lo {
			return feature, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

func pathLength(n *node, v []float64, depth int) float64 {
	if n.left == nil || n.right == nil {
		return float64(depth) + avgPathLength(n.size)
	}
	if v[n.feature] < n.split {
		return pathLength(n.left, v, depth+1)
	}
	return pathLength(n.right, v, depth+1)
}

const eulerMascheroni = 0.5772156649015329

// avgPathLength is c(n), the expected path length of an unsuccessful
// BST search over n points, used to normalize isolation depths.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
}
