package engine

import "errors"

var (
	// ErrModelUnavailable indicates no backend can serve an identification
	// attempt right now: nothing enrolled, or every backend is down.
	ErrModelUnavailable = errors.New("no trained model available")

	// ErrInsufficientQuality indicates an enrollment batch where no frame
	// passed the quality gate. The caller must roll back any speculative
	// identity record created alongside the enrollment.
	ErrInsufficientQuality = errors.New("no enrollment frame of sufficient quality")

	// ErrRetrainFailed indicates the retrained artifact could not be
	// reloaded into the active predictor; the model stays stale.
	ErrRetrainFailed = errors.New("retrain failed")
)
