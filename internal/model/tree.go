package model

import "fmt"

const leaf = -1

type tree struct {
	left      []int
	right     []int
	feature   []int
	threshold []float64
	proba     [][]float64 // normalized per node
}

// Forest is an ensemble of decision trees whose class probabilities are
// averaged. A single decision tree is a forest of one.
type Forest struct {
	meta
	trees []tree
}

func newForest(m meta, specs []TreeSpec) (*Forest, error) {
	f := &Forest{meta: m, trees: make([]tree, 0, len(specs))}
	for i, s := range specs {
		t, err := buildTree(s, m.nFeatures, len(m.classes))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		f.trees = append(f.trees, t)
	}
	return f, nil
}

// buildTree checks node arrays for consistency. Children must have a higher
// index than their parent, which rules out cycles.
func buildTree(s TreeSpec, nFeatures, nClasses int) (tree, error) {
	n := len(s.ChildrenLeft)
	if n == 0 {
		return tree{}, fmt.Errorf("%w: empty tree", ErrInvalidArtifact)
	}
	if len(s.ChildrenRight) != n || len(s.Feature) != n || len(s.Threshold) != n || len(s.Value) != n {
		return tree{}, fmt.Errorf("%w: node arrays have different lengths", ErrInvalidArtifact)
	}

	t := tree{
		left:      append([]int(nil), s.ChildrenLeft...),
		right:     append([]int(nil), s.ChildrenRight...),
		feature:   append([]int(nil), s.Feature...),
		threshold: append([]float64(nil), s.Threshold...),
		proba:     make([][]float64, n),
	}

	for i := 0; i < n; i++ {
		l, r := t.left[i], t.right[i]
		if l == leaf || r == leaf {
			if l != r {
				return tree{}, fmt.Errorf("%w: node %d has one child", ErrInvalidArtifact, i)
			}
		} else {
			if l <= i || l >= n || r <= i || r >= n {
				return tree{}, fmt.Errorf("%w: node %d has out-of-order children %d/%d", ErrInvalidArtifact, i, l, r)
			}
			if f := t.feature[i]; f < 0 || f >= nFeatures {
				return tree{}, fmt.Errorf("%w: node %d splits on feature %d", ErrInvalidArtifact, i, f)
			}
		}

		row := s.Value[i]
		if len(row) != nClasses {
			return tree{}, fmt.Errorf("%w: node %d has %d values for %d classes", ErrInvalidArtifact, i, len(row), nClasses)
		}
		var sum float64
		for _, v := range row {
			if v < 0 {
				return tree{}, fmt.Errorf("%w: node %d has a negative value", ErrInvalidArtifact, i)
			}
			sum += v
		}
		p := make([]float64, nClasses)
		if sum > 0 {
			for j, v := range row {
				p[j] = v / sum
			}
		} else if l == leaf {
			return tree{}, fmt.Errorf("%w: leaf %d has no samples", ErrInvalidArtifact, i)
		}
		t.proba[i] = p
	}
	return t, nil
}

func (t *tree) leafFor(x []float64) int {
	node := 0
	for t.left[node] != leaf {
		if x[t.feature[node]] <= t.threshold[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return node
}

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if err := f.checkWidth(x); err != nil {
		return nil, err
	}
	out := make([]float64, len(f.classes))
	for i := range f.trees {
		p := f.trees[i].proba[f.trees[i].leafFor(x)]
		for j := range out {
			out[j] += p[j]
		}
	}
	n := float64(len(f.trees))
	for j := range out {
		out[j] /= n
	}
	return out, nil
}

func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return f.label(proba), nil
}

// NTrees returns the ensemble size.
func (f *Forest) NTrees() int {
	return len(f.trees)
}
