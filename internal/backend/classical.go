package backend

import (
	"context"
	"fmt"
	"image"
)

// ClassicalBackend matches faces through the trained classical recognizer.
// Its model is not incremental: any change to the sample corpus requires a
// full retrain, coordinated by the engine's artifact store. Enroll here
// only records the batch as a training contribution.
type ClassicalBackend struct {
	rec Recognizer
}

// NewClassicalBackend wraps the classical recognizer capability.
func NewClassicalBackend(rec Recognizer) *ClassicalBackend {
	return &ClassicalBackend{rec: rec}
}

func (b *ClassicalBackend) Name() string         { return "classical" }
func (b *ClassicalBackend) Direction() Direction { return DistanceLower }

// Available reports true as long as the recognizer exists; an untrained
// model surfaces as ModelUnavailable at the engine level, not here.
func (b *ClassicalBackend) Available(_ context.Context) bool {
	return b.rec != nil
}

// Recognizer exposes the capability for retrain coordination.
func (b *ClassicalBackend) Recognizer() Recognizer { return b.rec }

// Swap replaces the active recognizer. The retrain coordinator calls
// this under its exclusive lock after a save-and-reload cycle.
func (b *ClassicalBackend) Swap(rec Recognizer) { b.rec = rec }

// Enroll acknowledges the batch. The samples are already persisted in the
// corpus; the subsequent full retrain folds them into the model.
func (b *ClassicalBackend) Enroll(_ context.Context, _ int64, samples []*image.Gray) (int, error) {
	return len(samples), nil
}

// Predict returns the trained model's label and distance for the sample.
func (b *ClassicalBackend) Predict(_ context.Context, sample *image.Gray) (Prediction, error) {
	if b.rec == nil || b.rec.Empty() {
		return Prediction{}, ErrUnavailable
	}
	identity, distance, err := b.rec.Predict(sample)
	if err != nil {
		return Prediction{}, fmt.Errorf("classical predict: %w", err)
	}
	return Prediction{Identity: identity, Score: distance}, nil
}
