package vector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randVec(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}

func bruteForce(vectors map[uint64][]float64, query []float64, k int, metric Metric) []uint64 {
	type scored struct {
		id   uint64
		dist float64
	}
	var all []scored
	for id, v := range vectors {
		var d float64
		if metric == Cosine {
			qn, vn := l2Normalize(query), l2Normalize(v)
			var dot float64
			for i := range qn {
				dot += qn[i] * vn[i]
			}
			d = 1 - dot
		} else {
			var sum float64
			for i := range query {
				diff := query[i] - v[i]
				sum += diff * diff
			}
			d = math.Sqrt(sum)
		}
		all = append(all, scored{id, d})
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].dist < all[i].dist {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	out := make([]uint64, 0, k)
	for i := 0; i < k && i < len(all); i++ {
		out = append(out, all[i].id)
	}
	return out
}

func TestAddAndKNNReturnsNearestOnTinyIndex(t *testing.T) {
	ix := New(DefaultConfig())
	require.NoError(t, ix.Add(1, []float64{1, 0, 0}))
	require.NoError(t, ix.Add(2, []float64{0, 1, 0}))
	require.NoError(t, ix.Add(3, []float64{0.9, 0.1, 0}))

	results, err := ix.KNN([]float64{1, 0, 0}, 2, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint64(1), results[0].NodeID)
	require.Equal(t, uint64(3), results[1].NodeID)
	require.Less(t, results[0].Distance, results[1].Distance)
}

func TestAddRejectsMismatchedDimensionality(t *testing.T) {
	ix := New(DefaultConfig())
	require.NoError(t, ix.Add(1, []float64{1, 0, 0}))
	err := ix.Add(2, []float64{1, 0})
	require.Error(t, err)
}

func TestAddReplacesExistingNodeVector(t *testing.T) {
	ix := New(DefaultConfig())
	require.NoError(t, ix.Add(1, []float64{1, 0, 0}))
	require.NoError(t, ix.Add(1, []float64{0, 1, 0}))
	require.Equal(t, 1, ix.Stats().Size)

	results, err := ix.KNN([]float64{0, 1, 0}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), results[0].NodeID)
	require.InDelta(t, 0, results[0].Distance, 1e-9)
}

func TestRemoveExcludesNodeFromFutureSearches(t *testing.T) {
	ix := New(DefaultConfig())
	require.NoError(t, ix.Add(1, []float64{1, 0, 0}))
	require.NoError(t, ix.Add(2, []float64{0.9, 0.1, 0}))
	require.True(t, ix.Remove(1))

	results, err := ix.KNN([]float64{1, 0, 0}, 5, 50)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, uint64(1), r.NodeID)
	}
	require.False(t, ix.Remove(999))
}

func TestKNNOnEmptyIndexReturnsNil(t *testing.T) {
	ix := New(DefaultConfig())
	results, err := ix.KNN([]float64{1, 2, 3}, 5, 10)
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestRecallAgainstBruteForceGroundTruth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metric = Euclidean
	ix := New(cfg)

	rng := rand.New(rand.NewSource(42))
	const n, dim, k, efSearch = 200, 8, 10, 100
	vectors := make(map[uint64][]float64, n)
	for i := uint64(1); i <= n; i++ {
		v := randVec(rng, dim)
		vectors[i] = v
		require.NoError(t, ix.Add(i, v))
	}

	queries := 20
	var totalRecall float64
	for q := 0; q < queries; q++ {
		query := randVec(rng, dim)
		truth := bruteForce(vectors, query, k, Euclidean)
		got, err := ix.KNN(query, k, efSearch)
		require.NoError(t, err)

		truthSet := make(map[uint64]bool, len(truth))
		for _, id := range truth {
			truthSet[id] = true
		}
		hits := 0
		for _, r := range got {
			if truthSet[r.NodeID] {
				hits++
			}
		}
		totalRecall += float64(hits) / float64(len(truth))
	}
	avgRecall := totalRecall / float64(queries)
	require.GreaterOrEqual(t, avgRecall, 0.8, "average recall@%d too low: %f", k, avgRecall)
}
