package memory

import (
	"sort"
	"sync"

	"github.com/rcliao/selfedit/internal/embedding"
)

// vectorIndex is a flat in-process similarity index: texts and their
// vectors held side by side, searched by brute-force scan. It holds at most
// a few thousand entries per run, so exactness beats cleverness here.
type vectorIndex struct {
	mu      sync.RWMutex
	texts   []string
	vectors []embedding.Vector
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{}
}

func (ix *vectorIndex) add(texts []string, vectors []embedding.Vector) {
	if len(texts) != len(vectors) {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.texts = append(ix.texts, texts...)
	ix.vectors = append(ix.vectors, vectors...)
}

func (ix *vectorIndex) len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.texts)
}

// search returns up to k entries by ascending Euclidean distance.
func (ix *vectorIndex) search(query embedding.Vector, k int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]Hit, 0, len(ix.texts))
	for i, v := range ix.vectors {
		hits = append(hits, Hit{
			Text:     ix.texts[i],
			Distance: embedding.EuclideanDistance(query, v),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
