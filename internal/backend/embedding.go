package backend

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/kozaktomas/facegate/internal/store"
)

// EmbeddingBackend matches faces by cosine similarity between a query
// embedding and the enrolled gallery. Enrollment is incremental: only the
// new identity's records are added.
type EmbeddingBackend struct {
	embedder  Embedder
	gallery   *store.Gallery
	minEnroll int
	model     string
}

// NewEmbeddingBackend creates the embedding matcher.
func NewEmbeddingBackend(embedder Embedder, gallery *store.Gallery, minEnroll int, model string) *EmbeddingBackend {
	return &EmbeddingBackend{
		embedder:  embedder,
		gallery:   gallery,
		minEnroll: minEnroll,
		model:     model,
	}
}

func (b *EmbeddingBackend) Name() string         { return "embedding" }
func (b *EmbeddingBackend) Direction() Direction { return SimilarityHigher }

// Available probes the embedding capability.
func (b *EmbeddingBackend) Available(ctx context.Context) bool {
	return b.embedder.Healthy(ctx)
}

// Gallery exposes the underlying gallery for retrain coordination.
func (b *EmbeddingBackend) Gallery() *store.Gallery { return b.gallery }

// Enroll embeds every sample and stores the records. Nothing is persisted
// unless the batch yields at least minEnroll embeddings; an insufficient
// yield is a hard failure so the caller can roll the identity back.
func (b *EmbeddingBackend) Enroll(ctx context.Context, identity int64, samples []*image.Gray) (int, error) {
	records := make([]store.EmbeddingRecord, 0, len(samples))
	for i, sample := range samples {
		vec, err := b.embedder.Embed(ctx, sample)
		if err != nil {
			// The capability itself failing is transient; a sample the
			// service cannot embed is simply skipped.
			if errors.Is(err, ErrUnavailable) {
				return 0, fmt.Errorf("embedding sample %d: %w", i, err)
			}
			log.Printf("[ENROLL] skipping sample %d for identity %d: %v", i, identity, err)
			continue
		}
		records = append(records, store.EmbeddingRecord{
			Identity:  identity,
			Embedding: vec,
			Dim:       len(vec),
			Model:     b.model,
			CreatedAt: time.Now(),
		})
	}

	if len(records) < b.minEnroll {
		return 0, fmt.Errorf("got %d embeddings, need %d: %w", len(records), b.minEnroll, ErrInsufficientEmbeddings)
	}

	if err := b.gallery.Enroll(ctx, records); err != nil {
		return 0, fmt.Errorf("enrolling gallery records: %w", err)
	}
	return len(records), nil
}

// Predict embeds the sample and reports the best within-identity
// similarity across the gallery.
func (b *EmbeddingBackend) Predict(ctx context.Context, sample *image.Gray) (Prediction, error) {
	vec, err := b.embedder.Embed(ctx, sample)
	if err != nil {
		return Prediction{}, fmt.Errorf("embedding query sample: %w", err)
	}

	m, err := b.gallery.Best(ctx, vec)
	if err != nil {
		if errors.Is(err, store.ErrEmptyGallery) {
			return Prediction{}, ErrNoPrediction
		}
		return Prediction{}, fmt.Errorf("searching gallery: %w", err)
	}
	return Prediction{Identity: m.Identity, Score: m.Similarity}, nil
}
