package learn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// MiniBatchKMeans clusters samples online. Centers are seeded with k-means++
// on the first batch; every later batch moves each center towards the mean
// of the samples assigned to it, weighted by how many samples the center has
// absorbed so far.
type MiniBatchKMeans struct {
	K       int         `json:"k"`
	Seed    int64       `json:"seed"`
	Centers [][]float64 `json:"centers"`
	Counts  []float64   `json:"counts"`
}

// NewMiniBatchKMeans returns an unfitted clusterer with k centers.
func NewMiniBatchKMeans(k int, seed int64) *MiniBatchKMeans {
	return &MiniBatchKMeans{K: k, Seed: seed}
}

// Fitted reports whether the centers have been initialised.
func (m *MiniBatchKMeans) Fitted() bool { return len(m.Centers) == m.K && m.K > 0 }

// Validate checks that the restored state is usable.
func (m *MiniBatchKMeans) Validate() error {
	if !m.Fitted() || len(m.Counts) != m.K {
		return fmt.Errorf("learn: clusterer has %d centers, want %d", len(m.Centers), m.K)
	}
	dim := len(m.Centers[0])
	for _, c := range m.Centers {
		if len(c) != dim || dim == 0 {
			return fmt.Errorf("learn: clusterer centers have inconsistent dimensions")
		}
	}
	return nil
}

// PartialFit updates the centers with one batch of samples.
func (m *MiniBatchKMeans) PartialFit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	if m.K <= 0 {
		return fmt.Errorf("learn: cluster count must be positive, got %d", m.K)
	}
	if !m.Fitted() {
		if len(X) < m.K {
			return fmt.Errorf("learn: %d samples cannot seed %d clusters", len(X), m.K)
		}
		m.seed(X)
	}
	dim := len(m.Centers[0])
	for i, x := range X {
		if len(x) != dim {
			return fmt.Errorf("learn: sample %d has %d features, want %d", i, len(x), dim)
		}
	}

	sums := make([][]float64, m.K)
	hits := make([]float64, m.K)
	for _, x := range X {
		c := m.nearest(x)
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		floats.Add(sums[c], x)
		hits[c]++
	}
	for c := range m.Centers {
		if hits[c] == 0 {
			continue
		}
		total := m.Counts[c] + hits[c]
		floats.Scale(m.Counts[c], m.Centers[c])
		floats.Add(m.Centers[c], sums[c])
		floats.Scale(1/total, m.Centers[c])
		m.Counts[c] = total
	}
	return nil
}

// seed picks initial centers with k-means++.
func (m *MiniBatchKMeans) seed(X [][]float64) {
	rng := rand.New(rand.NewSource(m.Seed))
	m.Centers = make([][]float64, 0, m.K)
	m.Counts = make([]float64, m.K)

	first := rng.Intn(len(X))
	m.Centers = append(m.Centers, append([]float64(nil), X[first]...))

	d2 := make([]float64, len(X))
	for len(m.Centers) < m.K {
		for i, x := range X {
			best := -1.0
			for _, c := range m.Centers {
				d := floats.Distance(x, c, 2)
				if best < 0 || d*d < best {
					best = d * d
				}
			}
			d2[i] = best
		}
		total := floats.Sum(d2)
		idx := 0
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range d2 {
				if d <= 0 {
					continue
				}
				idx = i
				acc += d
				if acc >= target {
					break
				}
			}
		} else {
			idx = len(m.Centers) % len(X)
		}
		m.Centers = append(m.Centers, append([]float64(nil), X[idx]...))
	}
}

func (m *MiniBatchKMeans) nearest(x []float64) int {
	best, bestDist := 0, -1.0
	for c, center := range m.Centers {
		d := floats.Distance(x, center, 2)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Predict returns the index of the center closest to x. Ties resolve to the
// lowest index.
func (m *MiniBatchKMeans) Predict(x []float64) (int, error) {
	if !m.Fitted() {
		return 0, fmt.Errorf("learn: clusterer not fitted")
	}
	if len(x) != len(m.Centers[0]) {
		return 0, fmt.Errorf("learn: sample has %d features, want %d", len(x), len(m.Centers[0]))
	}
	return m.nearest(x), nil
}
