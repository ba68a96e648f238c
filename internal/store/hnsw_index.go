package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facegate/internal/constants"
)

// GalleryIndex wraps an HNSW graph over enrolled embedding records for
// approximate nearest-neighbor search. Records removed from idToRecord are
// filtered out of search results, since HNSW has no true deletion.
type GalleryIndex struct {
	graph      *hnsw.Graph[int64]
	idToRecord map[int64]*EmbeddingRecord
	mu         sync.RWMutex
	path       string
}

// NewGalleryIndex creates a new empty index.
func NewGalleryIndex() *GalleryIndex {
	return &GalleryIndex{
		idToRecord: make(map[int64]*EmbeddingRecord),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given records.
func (h *GalleryIndex) Build(records []EmbeddingRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(records) == 0 {
		h.graph = nil
		h.idToRecord = make(map[int64]*EmbeddingRecord)
		return nil
	}

	g := newGraph()
	h.idToRecord = make(map[int64]*EmbeddingRecord, len(records))
	for i := range records {
		rec := &records[i]
		if len(rec.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
		h.idToRecord[rec.ID] = rec
	}

	h.graph = g
	return nil
}

// Add inserts a single record into the index.
func (h *GalleryIndex) Add(rec *EmbeddingRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(rec.Embedding) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
	h.idToRecord[rec.ID] = rec
}

// Search returns the nearest records to the query with their identity and
// cosine similarity, best first. Records deleted from the lookup map are
// skipped.
func (h *GalleryIndex) Search(query []float32, k int) ([]Match, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := h.idToRecord[n.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{
			Identity:   rec.Identity,
			Similarity: CosineSimilarity(query, n.Value),
		})
	}
	return matches, nil
}

// DeleteIdentity drops every record of an identity from search results.
func (h *GalleryIndex) DeleteIdentity(identity int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, rec := range h.idToRecord {
		if rec.Identity == identity {
			delete(h.idToRecord, id)
			removed++
		}
	}
	return removed
}

// Rekey relabels records in place. Only the lookup map changes; the graph
// geometry is untouched since vectors did not move.
func (h *GalleryIndex) Rekey(oldKey, newKey int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed := 0
	for _, rec := range h.idToRecord {
		if rec.Identity == oldKey {
			rec.Identity = newKey
			changed++
		}
	}
	return changed
}

// Count returns the number of searchable records.
func (h *GalleryIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToRecord)
}

// SetPath sets the path for persisting the index.
func (h *GalleryIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the graph to disk when a path is configured.
func (h *GalleryIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}
	if h.graph == nil {
		// Remove existing file if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		return nil
	}

	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}
