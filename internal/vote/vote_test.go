package vote

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/kozaktomas/facegate/internal/backend"
)

var testConfig = Config{
	MinShare:       0.35,
	MinValidFrames: 2,
	EarlyVotes:     4,
	EarlyThreshold: 80,
	Threshold:      120,
}

// frameStream builds a fake gate/predict pair that answers frame i with
// outcomes[i]. A nil prediction means the gate rejects the frame.
type outcome struct {
	rejected bool
	err      error
	identity int64
	score    float64
}

func stream(outcomes []outcome) ([][]byte, GateFunc, PredictFunc) {
	frames := make([][]byte, len(outcomes))
	for i := range outcomes {
		frames[i] = []byte(fmt.Sprintf("%d", i))
	}
	lookup := func(frame []byte) outcome {
		var i int
		fmt.Sscanf(string(frame), "%d", &i)
		return outcomes[i]
	}
	gate := func(frame []byte) (*image.Gray, error) {
		if lookup(frame).rejected {
			return nil, errors.New("rejected")
		}
		// The engine only passes the sample through; content is irrelevant
		// because predict keys off the frame payload instead.
		return image.NewGray(image.Rect(0, 0, 1, 1)), nil
	}
	// Predict cannot see the frame, so thread it via a closure counter.
	var calls int
	accepted := make([]outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.rejected {
			accepted = append(accepted, o)
		}
	}
	predict := func(context.Context, *image.Gray) (backend.Prediction, error) {
		o := accepted[calls]
		calls++
		if o.err != nil {
			return backend.Prediction{}, o.err
		}
		return backend.Prediction{Identity: o.identity, Score: o.score}, nil
	}
	return frames, gate, predict
}

func decide(t *testing.T, outcomes []outcome, dir backend.Direction) Decision {
	t.Helper()
	frames, gate, predict := stream(outcomes)
	d, err := NewEngine(testConfig).Decide(context.Background(), frames, dir, gate, predict)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	return d
}

func TestDecideUnanimous(t *testing.T) {
	outcomes := []outcome{
		{identity: 42, score: 55},
		{identity: 42, score: 60},
		{identity: 42, score: 52},
	}
	d := decide(t, outcomes, backend.DistanceLower)
	if !d.Found || d.Identity != 42 {
		t.Fatalf("expected Found(42), got %+v", d)
	}
	if d.Processed != 3 || d.Votes != 3 || d.Share != 1.0 {
		t.Errorf("unexpected tallies %+v", d)
	}
	if d.Median != 55 {
		t.Errorf("expected median 55, got %f", d.Median)
	}
	if d.Confidence != 45 {
		t.Errorf("expected confidence 45, got %d", d.Confidence)
	}
}

func TestDecideEarlyStop(t *testing.T) {
	// Four strong votes satisfy the early condition; the trailing frames
	// must never be consumed.
	strong := []outcome{
		{identity: 7, score: 30},
		{identity: 7, score: 32},
		{identity: 7, score: 28},
		{identity: 7, score: 31},
	}
	trailing := append(append([]outcome{}, strong...),
		outcome{identity: 9, score: 20},
		outcome{identity: 9, score: 20},
	)

	frames, gate, predict := stream(trailing)
	var consumed int
	countingPredict := func(ctx context.Context, s *image.Gray) (backend.Prediction, error) {
		consumed++
		return predict(ctx, s)
	}
	d, err := NewEngine(testConfig).Decide(context.Background(), frames, backend.DistanceLower, gate, countingPredict)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 4 {
		t.Errorf("expected early stop after 4 frames, consumed %d", consumed)
	}
	if !d.Found || d.Identity != 7 {
		t.Fatalf("expected Found(7), got %+v", d)
	}

	// Consuming only the first four frames yields the same identity.
	short := decide(t, strong, backend.DistanceLower)
	if short.Identity != d.Identity {
		t.Errorf("early stop diverged: %d vs %d", short.Identity, d.Identity)
	}
}

func TestDecideBoundaryInclusive(t *testing.T) {
	cfg := testConfig
	cfg.MinShare = 0.5
	// Exactly 2 of 4 votes, median exactly at the threshold.
	outcomes := []outcome{
		{identity: 1, score: 120},
		{identity: 2, score: 200},
		{identity: 1, score: 120},
		{identity: 3, score: 200},
	}
	frames, gate, predict := stream(outcomes)
	d, err := NewEngine(cfg).Decide(context.Background(), frames, backend.DistanceLower, gate, predict)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Found || d.Identity != 1 {
		t.Fatalf("boundary values must be accepted, got %+v", d)
	}
	if d.Share != 0.5 || d.Votes != 2 {
		t.Errorf("unexpected tallies %+v", d)
	}
}

func TestDecideTieBreakFirstSeen(t *testing.T) {
	outcomes := []outcome{
		{identity: 5, score: 40},
		{identity: 6, score: 40},
		{identity: 6, score: 40},
		{identity: 5, score: 40},
	}
	d := decide(t, outcomes, backend.DistanceLower)
	if d.Identity != 5 {
		t.Errorf("tie must go to the first-seen identity, got %d", d.Identity)
	}
}

func TestDecideAllFramesRejected(t *testing.T) {
	outcomes := []outcome{
		{rejected: true},
		{rejected: true},
	}
	d := decide(t, outcomes, backend.DistanceLower)
	if d.Found || d.Processed != 0 {
		t.Fatalf("expected NotFound with zero processed, got %+v", d)
	}
}

func TestDecideRejectedFramesNotCounted(t *testing.T) {
	outcomes := []outcome{
		{identity: 42, score: 50},
		{rejected: true},
		{identity: 42, score: 50},
	}
	d := decide(t, outcomes, backend.DistanceLower)
	if d.Processed != 2 || d.Share != 1.0 {
		t.Errorf("rejected frames must not dilute the share, got %+v", d)
	}
}

func TestDecideWeakMedianRejected(t *testing.T) {
	outcomes := []outcome{
		{identity: 3, score: 150},
		{identity: 3, score: 160},
	}
	d := decide(t, outcomes, backend.DistanceLower)
	if d.Found {
		t.Fatalf("median above the distance threshold must not match, got %+v", d)
	}
	if d.Identity != 0 {
		t.Errorf("rejected decision must not leak an identity, got %d", d.Identity)
	}
}

func TestDecideSimilarityDirection(t *testing.T) {
	cfg := testConfig
	cfg.Threshold = 0.45
	cfg.EarlyThreshold = 0.60
	outcomes := []outcome{
		{identity: 8, score: 0.50},
		{identity: 8, score: 0.50},
	}
	frames, gate, predict := stream(outcomes)
	d, err := NewEngine(cfg).Decide(context.Background(), frames, backend.SimilarityHigher, gate, predict)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Found || d.Identity != 8 {
		t.Fatalf("expected Found(8), got %+v", d)
	}
	if d.Confidence != 50 {
		t.Errorf("expected confidence 50, got %d", d.Confidence)
	}
}

func TestDecideUnavailableAborts(t *testing.T) {
	outcomes := []outcome{
		{identity: 1, score: 50},
		{err: backend.ErrUnavailable},
		{identity: 1, score: 50},
	}
	frames, gate, predict := stream(outcomes)
	_, err := NewEngine(testConfig).Decide(context.Background(), frames, backend.DistanceLower, gate, predict)
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable to abort the attempt, got %v", err)
	}
}

func TestDecidePerFrameErrorSkipped(t *testing.T) {
	outcomes := []outcome{
		{identity: 2, score: 50},
		{err: backend.ErrNoPrediction},
		{identity: 2, score: 50},
	}
	d := decide(t, outcomes, backend.DistanceLower)
	if !d.Found || d.Identity != 2 || d.Processed != 2 {
		t.Fatalf("per-frame errors must be skipped, got %+v", d)
	}
}
