// Package backend defines the match backend capability: a polymorphic
// surface over the high-accuracy embedding matcher and the classical
// feature matcher. Backends share an interface but differ in score
// semantics, captured by Direction.
package backend

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrUnavailable is a transient backend failure. It triggers a one-call
	// fallback to the other backend and is not surfaced to the caller
	// unless both backends fail.
	ErrUnavailable = errors.New("match backend unavailable")

	// ErrInsufficientEmbeddings indicates an enrollment batch produced too
	// few embeddings; the caller must roll the identity back.
	ErrInsufficientEmbeddings = errors.New("too few embeddings produced for enrollment")

	// ErrNoPrediction indicates the backend could not score the sample.
	// The frame is excluded from the vote; this is not a transient failure.
	ErrNoPrediction = errors.New("no prediction for sample")
)

// Direction describes which way a backend's score improves.
type Direction int

const (
	// DistanceLower means smaller scores are better matches (classical).
	DistanceLower Direction = iota
	// SimilarityHigher means larger scores are better matches (embedding).
	SimilarityHigher
)

// Better reports whether score a is a stronger match than score b.
func (d Direction) Better(a, b float64) bool {
	if d == DistanceLower {
		return a < b
	}
	return a > b
}

// Accepts reports whether a score passes a threshold. The boundary is
// inclusive in the accept direction.
func (d Direction) Accepts(score, threshold float64) bool {
	if d == DistanceLower {
		return score <= threshold
	}
	return score >= threshold
}

// Confidence normalizes a median score into a 0-100 percentage.
// Distance-style scores map through 100 - score; similarity-style scores
// are scaled directly.
func (d Direction) Confidence(median float64) int {
	var pct float64
	if d == DistanceLower {
		pct = 100 - median
	} else {
		pct = median * 100
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

// Prediction is one backend vote for a sample.
type Prediction struct {
	Identity int64
	Score    float64
}

// Backend is the match backend capability.
type Backend interface {
	Name() string
	Direction() Direction
	Available(ctx context.Context) bool
	// Enroll stores the identity's samples in the backend's gallery or
	// training contribution and returns how many units it accepted.
	Enroll(ctx context.Context, identity int64, samples []*image.Gray) (int, error)
	// Predict scores a single canonical sample.
	Predict(ctx context.Context, sample *image.Gray) (Prediction, error)
}

// Embedder computes a fixed-length vector for a canonical sample. It wraps
// the external embedding capability.
type Embedder interface {
	Embed(ctx context.Context, sample *image.Gray) ([]float32, error)
	Healthy(ctx context.Context) bool
}

// Recognizer is the classical matcher capability: a trainable model over
// the full labeled sample corpus with a persistable artifact.
type Recognizer interface {
	Train(samples []*image.Gray, labels []int64) error
	Predict(sample *image.Gray) (identity int64, distance float64, err error)
	Save(path string) error
	Load(path string) error
	Empty() bool
}
