// Package index provides an exact nearest-neighbor index over chunk
// embeddings. Brute-force cosine search is deliberate: session corpora are
// small and exactness is preferred over approximate speed.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Entry is one vector to insert, keyed by its chunk id.
type Entry struct {
	ChunkID string
	Vector  []float32
}

// Result is one search hit. Score is cosine similarity in [-1, 1].
type Result struct {
	ChunkID string
	Score   float64
}

// Index is an append-only vector index for one session. Individual entries
// are never updated or removed; the whole index is discarded with its
// session.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   []Entry
	norms     []float64
}

func New() *Index {
	return &Index{}
}

// Insert adds all entries or none. The first insert fixes the index
// dimension for its lifetime; later inserts must match it.
func (ix *Index) Insert(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dimension := ix.dimension
	for _, entry := range entries {
		if len(entry.Vector) == 0 {
			return fmt.Errorf("chunk %s: empty vector", entry.ChunkID)
		}
		if dimension == 0 {
			dimension = len(entry.Vector)
		} else if len(entry.Vector) != dimension {
			return fmt.Errorf("chunk %s: vector dimension mismatch: expected %d, got %d", entry.ChunkID, dimension, len(entry.Vector))
		}
	}

	ix.dimension = dimension
	for _, entry := range entries {
		ix.entries = append(ix.entries, entry)
		ix.norms = append(ix.norms, norm(entry.Vector))
	}

	return nil
}

// Search returns up to k entries most similar to query, by descending cosine
// similarity. Ties are broken by insertion order, earlier entry first. An
// empty index yields an empty result.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return nil, nil
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", ix.dimension, len(query))
	}

	queryNorm := norm(query)

	type scored struct {
		seq   int
		score float64
	}

	ranked := make([]scored, len(ix.entries))
	for i := range ix.entries {
		ranked[i] = scored{seq: i, score: cosine(ix.entries[i].Vector, ix.norms[i], query, queryNorm)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].seq < ranked[j].seq
	})

	if k > len(ranked) {
		k = len(ranked)
	}

	results := make([]Result, k)
	for i := 0; i < k; i++ {
		results[i] = Result{ChunkID: ix.entries[ranked[i].seq].ChunkID, Score: ranked[i].score}
	}

	return results, nil
}

// Len reports the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
