package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyGallery indicates a search against a gallery with no records.
var ErrEmptyGallery = errors.New("gallery is empty")

// Gallery combines the durable record store with the in-memory ANN index.
// Reads go through the index; every mutation updates both.
type Gallery struct {
	store   RecordStore
	index   *GalleryIndex
	searchK int
}

// NewGallery wraps a record store. Call Rebuild to populate the index from
// the stored records before the first search.
func NewGallery(records RecordStore, indexPath string, searchK int) *Gallery {
	idx := NewGalleryIndex()
	idx.SetPath(indexPath)
	return &Gallery{
		store:   records,
		index:   idx,
		searchK: searchK,
	}
}

// Rebuild reloads every record from the store into the index.
func (g *Gallery) Rebuild(ctx context.Context) error {
	records, err := g.store.All(ctx)
	if err != nil {
		return fmt.Errorf("loading embedding records: %w", err)
	}
	if err := g.index.Build(records); err != nil {
		return fmt.Errorf("building gallery index: %w", err)
	}
	return nil
}

// Enroll persists the records and adds them to the index incrementally.
func (g *Gallery) Enroll(ctx context.Context, records []EmbeddingRecord) error {
	if err := g.store.Insert(ctx, records); err != nil {
		return fmt.Errorf("storing embedding records: %w", err)
	}
	for i := range records {
		g.index.Add(&records[i])
	}
	return nil
}

// Best returns the identity with the highest within-identity similarity to
// the query vector. Every neighbor contributes to its identity's best
// score; the identity whose best score is highest wins.
func (g *Gallery) Best(_ context.Context, query []float32) (Match, error) {
	matches, err := g.index.Search(query, g.searchK)
	if err != nil || len(matches) == 0 {
		return Match{}, ErrEmptyGallery
	}

	best := make(map[int64]float64)
	order := make([]int64, 0, len(matches))
	for _, m := range matches {
		if cur, ok := best[m.Identity]; !ok {
			best[m.Identity] = m.Similarity
			order = append(order, m.Identity)
		} else if m.Similarity > cur {
			best[m.Identity] = m.Similarity
		}
	}

	top := Match{Similarity: -2}
	for _, id := range order {
		if best[id] > top.Similarity {
			top = Match{Identity: id, Similarity: best[id]}
		}
	}
	return top, nil
}

// DeleteIdentity purges an identity from the store and the index.
func (g *Gallery) DeleteIdentity(ctx context.Context, identity int64) (int64, error) {
	removed, err := g.store.DeleteIdentity(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("deleting embedding records: %w", err)
	}
	g.index.DeleteIdentity(identity)
	return removed, nil
}

// Rekey relabels an identity in the store and the index. The vectors do not
// change, so no re-embedding happens.
func (g *Gallery) Rekey(ctx context.Context, oldKey, newKey int64) (int64, error) {
	changed, err := g.store.Rekey(ctx, oldKey, newKey)
	if err != nil {
		return 0, fmt.Errorf("rekeying embedding records: %w", err)
	}
	g.index.Rekey(oldKey, newKey)
	return changed, nil
}

// Count returns the number of stored embedding records.
func (g *Gallery) Count(ctx context.Context) (int, error) {
	return g.store.Count(ctx)
}

// Identities returns the distinct enrolled identity keys.
func (g *Gallery) Identities(ctx context.Context) ([]int64, error) {
	return g.store.Identities(ctx)
}

// SaveIndex persists the index when a path is configured.
func (g *Gallery) SaveIndex() error {
	return g.index.Save()
}

// Close closes the underlying record store.
func (g *Gallery) Close() error {
	return g.store.Close()
}
