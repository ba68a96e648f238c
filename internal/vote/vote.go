// Package vote aggregates per-frame backend predictions for one
// identification attempt into a single decision.
package vote

import (
	"context"
	"errors"
	"image"
	"sort"

	"github.com/kozaktomas/facegate/internal/backend"
)

// Config tunes the aggregation. All thresholds are score values in the
// active backend's native scale; Direction decides which way they cut.
type Config struct {
	// MinShare is the minimum fraction of processed frames the winning
	// identity must hold. The boundary is inclusive.
	MinShare float64
	// MinValidFrames is the minimum number of votes the winner needs.
	MinValidFrames int
	// EarlyVotes is the vote count that arms the early-stop check.
	EarlyVotes int
	// EarlyThreshold is the stricter score bound for stopping early.
	EarlyThreshold float64
	// Threshold is the terminal acceptance bound on the median score.
	Threshold float64
}

// Decision is the outcome of one identification attempt.
type Decision struct {
	Found      bool
	Identity   int64
	Confidence int
	Processed  int
	Votes      int
	Share      float64
	Median     float64
}

// Tally holds the votes of one attempt. It is not safe for concurrent
// use; each attempt owns its own tally.
type Tally struct {
	scores    map[int64][]float64
	order     []int64 // identities in first-seen order, for tie-breaks
	processed int
}

func NewTally() *Tally {
	return &Tally{scores: map[int64][]float64{}}
}

func (t *Tally) Add(identity int64, score float64) {
	if _, seen := t.scores[identity]; !seen {
		t.order = append(t.order, identity)
	}
	t.scores[identity] = append(t.scores[identity], score)
	t.processed++
}

func (t *Tally) Processed() int { return t.processed }

func (t *Tally) Votes(identity int64) int { return len(t.scores[identity]) }

// Leader returns the identity with the best mean score and that mean.
// Ties on the mean go to the earlier-seen identity.
func (t *Tally) Leader(dir backend.Direction) (int64, float64, bool) {
	if len(t.order) == 0 {
		return 0, 0, false
	}
	best := t.order[0]
	bestMean := mean(t.scores[best])
	for _, id := range t.order[1:] {
		if m := mean(t.scores[id]); dir.Better(m, bestMean) {
			best, bestMean = id, m
		}
	}
	return best, bestMean, true
}

// Major returns the identity with the most votes. Ties go to the
// earlier-seen identity.
func (t *Tally) Major() (int64, bool) {
	if len(t.order) == 0 {
		return 0, false
	}
	best := t.order[0]
	for _, id := range t.order[1:] {
		if len(t.scores[id]) > len(t.scores[best]) {
			best = id
		}
	}
	return best, true
}

// Median returns the median score recorded for identity.
func (t *Tally) Median(identity int64) float64 {
	return median(t.scores[identity])
}

// GateFunc quality-gates one raw frame. A non-nil error drops the frame
// from the attempt without counting it as processed.
type GateFunc func(frame []byte) (*image.Gray, error)

// PredictFunc runs the active backend on one gated sample.
type PredictFunc func(ctx context.Context, sample *image.Gray) (backend.Prediction, error)

// Engine drives frame consumption against a tally.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Decide consumes frames until exhaustion or early stop and renders the
// terminal decision. Frames that fail the gate are skipped silently.
// Predictions that fail with a per-frame error are skipped too, except
// backend unavailability, which aborts the whole attempt so the caller
// can retry on another backend.
func (e *Engine) Decide(ctx context.Context, frames [][]byte, dir backend.Direction, gate GateFunc, predict PredictFunc) (Decision, error) {
	tally := NewTally()

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		sample, err := gate(frame)
		if err != nil {
			continue
		}
		p, err := predict(ctx, sample)
		if errors.Is(err, backend.ErrUnavailable) {
			return Decision{}, err
		}
		if err != nil {
			continue
		}
		tally.Add(p.Identity, p.Score)

		if e.earlyStop(tally, dir) {
			break
		}
	}

	return e.decide(tally, dir), nil
}

func (e *Engine) earlyStop(t *Tally, dir backend.Direction) bool {
	leader, leaderMean, ok := t.Leader(dir)
	if !ok {
		return false
	}
	votes := t.Votes(leader)
	if votes < e.cfg.EarlyVotes {
		return false
	}
	share := float64(votes) / float64(t.Processed())
	return share >= e.cfg.MinShare && dir.Accepts(leaderMean, e.cfg.EarlyThreshold)
}

func (e *Engine) decide(t *Tally, dir backend.Direction) Decision {
	if t.Processed() == 0 {
		return Decision{}
	}
	major, ok := t.Major()
	if !ok {
		return Decision{}
	}
	votes := t.Votes(major)
	share := float64(votes) / float64(t.Processed())
	med := t.Median(major)

	d := Decision{
		Identity:  major,
		Processed: t.Processed(),
		Votes:     votes,
		Share:     share,
		Median:    med,
	}
	if share >= e.cfg.MinShare && votes >= e.cfg.MinValidFrames && dir.Accepts(med, e.cfg.Threshold) {
		d.Found = true
		d.Confidence = dir.Confidence(med)
	} else {
		d.Identity = 0
	}
	return d
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
