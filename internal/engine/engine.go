// Package engine coordinates the full decision flow: enrollment
// sampling, backend selection, multi-frame voting and the artifact
// lifecycle with its retrain region.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/kozaktomas/facegate/internal/backend"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/gate"
	"github.com/kozaktomas/facegate/internal/sampler"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/vote"
)

// Engine owns the matcher state. All corpus mutations funnel through
// the exclusive retrain region; predictions take shared access so
// concurrent identification attempts never observe a half-written
// artifact.
type Engine struct {
	tuning    config.TuningConfig
	modelPath string

	gate      *gate.Gate
	sampler   *sampler.Sampler
	samples   *store.SampleStore
	embedding *backend.EmbeddingBackend
	classical *backend.ClassicalBackend
	newRec    func() backend.Recognizer
	registry  IdentityResolver

	mu    sync.RWMutex
	state ArtifactState
}

// IdentityResolver optionally maps identity keys to person names for
// operator-facing output. A nil resolver is fine.
type IdentityResolver interface {
	ResolveName(ctx context.Context, identity int64) (string, error)
}

// New assembles an engine. newRec builds fresh recognizer instances for
// the classical retrain cycle.
func New(
	tuning config.TuningConfig,
	modelPath string,
	g *gate.Gate,
	smp *sampler.Sampler,
	samples *store.SampleStore,
	embedding *backend.EmbeddingBackend,
	classical *backend.ClassicalBackend,
	newRec func() backend.Recognizer,
) *Engine {
	return &Engine{
		tuning:    tuning,
		modelPath: modelPath,
		gate:      g,
		sampler:   smp,
		samples:   samples,
		embedding: embedding,
		classical: classical,
		newRec:    newRec,
		state:     StateEmpty,
	}
}

// SetResolver attaches an optional identity resolver.
func (e *Engine) SetResolver(r IdentityResolver) { e.registry = r }

// Init loads the persisted artifacts: the classical model from disk and
// the gallery index from the record store. Missing artifacts are normal
// on first start.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(e.modelPath); err == nil {
		rec := e.newRec()
		if err := rec.Load(e.modelPath); err != nil {
			return fmt.Errorf("loading classical model: %w", err)
		}
		e.classical.Swap(rec)
		log.Printf("[ENGINE] loaded classical model from %s", e.modelPath)
	}

	if e.embedding != nil {
		if err := e.embedding.Gallery().Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuilding gallery index: %w", err)
		}
	}

	e.state = e.deriveStateLocked(ctx)
	return nil
}

// deriveStateLocked computes the artifact state from what is loaded.
func (e *Engine) deriveStateLocked(ctx context.Context) ArtifactState {
	if rec := e.classical.Recognizer(); rec != nil && !rec.Empty() {
		return StateTrained
	}
	if e.embedding != nil {
		if n, err := e.embedding.Gallery().Count(ctx); err == nil && n > 0 {
			return StateTrained
		}
	}
	return StateEmpty
}

// State returns the current artifact state.
func (e *Engine) State() ArtifactState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// EnrollResult reports one enrollment.
type EnrollResult struct {
	Identity    int64
	Accepted    int
	Synthesized int
	Total       int
	Embeddings  int
}

// Enroll gates the frames, persists the surviving samples, enrolls
// their embeddings and retrains the classical model. A batch where no
// frame survives the gate returns ErrInsufficientQuality and leaves no
// trace, so the caller can roll back its identity record. The same
// rollback contract holds when the embedding service is healthy but
// yields too few embeddings: this batch's samples are purged and
// backend.ErrInsufficientEmbeddings surfaces.
func (e *Engine) Enroll(ctx context.Context, identity int64, frames [][]byte) (EnrollResult, error) {
	baseSeq, err := e.samples.MaxSeq(identity)
	if err != nil {
		return EnrollResult{}, fmt.Errorf("inspecting prior samples: %w", err)
	}

	collected, err := e.sampler.Collect(ctx, identity, frames)
	if errors.Is(err, sampler.ErrNoUsableFrames) {
		return EnrollResult{}, fmt.Errorf("%w: identity %d", ErrInsufficientQuality, identity)
	}
	if err != nil {
		return EnrollResult{}, fmt.Errorf("collecting samples: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	embCount, err := e.enrollEmbeddingsLocked(ctx, identity, collected.Samples)
	if err != nil {
		// Purge only the sequences this batch appended; a re-enrollment
		// keeps the identity's earlier samples.
		if _, purgeErr := e.samples.DeleteFrom(identity, baseSeq+1); purgeErr != nil {
			log.Printf("[ENROLL] failed to purge samples for identity %d: %v", identity, purgeErr)
		}
		if retrainErr := e.retrainClassicalLocked(ctx); retrainErr != nil {
			return EnrollResult{}, retrainErr
		}
		return EnrollResult{}, fmt.Errorf("identity %d: %w", identity, err)
	}

	if err := e.retrainClassicalLocked(ctx); err != nil {
		return EnrollResult{}, err
	}

	return EnrollResult{
		Identity:    identity,
		Accepted:    collected.Accepted,
		Synthesized: collected.Synthesized,
		Total:       collected.Total,
		Embeddings:  embCount,
	}, nil
}

// enrollEmbeddingsLocked feeds the batch to the embedding backend. A down
// service degrades to classical-only enrollment, but a healthy service
// yielding fewer than the minimum embeddings is a hard failure that the
// caller turns into a full rollback of the batch.
func (e *Engine) enrollEmbeddingsLocked(ctx context.Context, identity int64, samples []*image.Gray) (int, error) {
	if e.embedding == nil {
		return 0, nil
	}
	n, err := e.embedding.Enroll(ctx, identity, samples)
	if errors.Is(err, backend.ErrUnavailable) {
		log.Printf("[ENROLL] embedding service unavailable, identity %d enrolled on classical backend only", identity)
		return 0, nil
	}
	if errors.Is(err, backend.ErrInsufficientEmbeddings) {
		log.Printf("[ENROLL] too few embeddings for identity %d, rolling the batch back", identity)
		return 0, err
	}
	if err != nil {
		log.Printf("[ENROLL] embedding enrollment for identity %d failed: %v", identity, err)
		return 0, nil
	}
	if err := e.embedding.Gallery().SaveIndex(); err != nil {
		log.Printf("[ENROLL] failed to persist gallery index: %v", err)
	}
	return n, nil
}

// retrainClassicalLocked runs the full classical retrain cycle: train a
// fresh recognizer over the whole corpus, save it, reload the saved
// artifact and swap it in. Callers hold the exclusive lock.
func (e *Engine) retrainClassicalLocked(ctx context.Context) error {
	e.state = StateStale

	samples, labels, err := e.samples.ListAll()
	if err != nil {
		return fmt.Errorf("%w: listing corpus: %v", ErrRetrainFailed, err)
	}

	if len(samples) == 0 {
		// Corpus emptied out: drop the artifact entirely.
		if err := os.Remove(e.modelPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing stale model: %v", ErrRetrainFailed, err)
		}
		e.classical.Swap(e.newRec())
		e.state = e.deriveStateLocked(ctx)
		log.Printf("[RETRAIN] corpus empty, model removed")
		return nil
	}

	fresh := e.newRec()
	if err := fresh.Train(samples, labels); err != nil {
		return fmt.Errorf("%w: training: %v", ErrRetrainFailed, err)
	}
	if err := fresh.Save(e.modelPath); err != nil {
		return fmt.Errorf("%w: saving model: %v", ErrRetrainFailed, err)
	}

	// Reload from disk rather than keeping the in-memory instance: the
	// active predictor must match the persisted artifact exactly.
	reloaded := e.newRec()
	if err := reloaded.Load(e.modelPath); err != nil {
		return fmt.Errorf("%w: reloading model: %v", ErrRetrainFailed, err)
	}
	e.classical.Swap(reloaded)
	e.state = StateTrained
	log.Printf("[RETRAIN] model retrained on %d samples", len(samples))
	return nil
}

// ForceRetrain rebuilds the classical model and the gallery index from
// the stored corpus. Returns the number of corpus samples trained on.
func (e *Engine) ForceRetrain(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.embedding != nil {
		if err := e.embedding.Gallery().Rebuild(ctx); err != nil {
			return 0, fmt.Errorf("rebuilding gallery index: %w", err)
		}
		if ids, err := e.embedding.Gallery().Identities(ctx); err == nil {
			log.Printf("[RETRAIN] gallery index rebuilt for %d identities", len(ids))
		}
	}
	if err := e.retrainClassicalLocked(ctx); err != nil {
		return 0, err
	}
	n, err := e.samples.Count()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IdentifyResult is the outcome of one identification attempt.
type IdentifyResult struct {
	AttemptID string
	Backend   string
	Name      string // resolved person name, when a resolver is attached
	Decision  vote.Decision
}

// Identify gates each frame, votes with the active backend and renders
// the decision. If the embedding backend dies mid-attempt, the whole
// attempt reruns on the classical backend; scores of the two backends
// are not comparable, so votes never mix.
func (e *Engine) Identify(ctx context.Context, frames [][]byte) (IdentifyResult, error) {
	result := IdentifyResult{AttemptID: uuid.NewString()}

	if e.State() == StateEmpty {
		return result, ErrModelUnavailable
	}

	active := e.selectBackend(ctx)
	if active == nil {
		return result, ErrModelUnavailable
	}

	decision, err := e.runAttempt(ctx, frames, active)
	if errors.Is(err, backend.ErrUnavailable) && active != backend.Backend(e.classical) {
		log.Printf("[IDENTIFY] %s: backend %q became unavailable, retrying on classical", result.AttemptID, active.Name())
		active = e.classical
		decision, err = e.runAttempt(ctx, frames, active)
	}
	if errors.Is(err, backend.ErrUnavailable) {
		return result, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if err != nil {
		return result, err
	}

	result.Backend = active.Name()
	result.Decision = decision
	if decision.Found && e.registry != nil {
		if name, err := e.registry.ResolveName(ctx, decision.Identity); err == nil {
			result.Name = name
		}
	}
	return result, nil
}

// runAttempt executes one full voting pass on one backend. Each predict
// takes shared access so a concurrent retrain cannot interleave.
func (e *Engine) runAttempt(ctx context.Context, frames [][]byte, b backend.Backend) (vote.Decision, error) {
	dir := b.Direction()
	voter := vote.NewEngine(e.voteConfig(dir))

	gateFn := func(frame []byte) (*image.Gray, error) {
		res, err := e.gate.Evaluate(ctx, frame, gate.ModeIdentify)
		if err != nil {
			return nil, err
		}
		return res.Sample, nil
	}
	predictFn := func(ctx context.Context, sample *image.Gray) (backend.Prediction, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return b.Predict(ctx, sample)
	}

	return voter.Decide(ctx, frames, dir, gateFn, predictFn)
}

// voteConfig maps the tuning thresholds onto the backend's score scale.
func (e *Engine) voteConfig(dir backend.Direction) vote.Config {
	cfg := vote.Config{
		MinShare:       e.tuning.VoteMinShare,
		MinValidFrames: e.tuning.MinValidFrames,
		EarlyVotes:     e.tuning.EarlyVotesRequired,
	}
	if dir == backend.DistanceLower {
		cfg.EarlyThreshold = e.tuning.EarlyDistanceThreshold
		cfg.Threshold = e.tuning.DistanceThreshold
	} else {
		cfg.EarlyThreshold = e.tuning.EarlySimilarityThreshold
		cfg.Threshold = e.tuning.SimilarityThreshold
	}
	return cfg
}

// selectBackend prefers the embedding backend and falls back to the
// classical one when the service is down.
func (e *Engine) selectBackend(ctx context.Context) backend.Backend {
	if e.embedding != nil && e.embedding.Available(ctx) {
		return e.embedding
	}
	// Classical availability reads the recognizer pointer, which Swap
	// writes inside the retrain region.
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.classical != nil && e.classical.Available(ctx) {
		return e.classical
	}
	return nil
}

// DeleteStats reports what a removal touched.
type DeleteStats struct {
	Samples    int
	Embeddings int64
}

// Delete purges an identity from every store and retrains. An empty
// corpus afterwards removes the artifact and returns to Empty.
func (e *Engine) Delete(ctx context.Context, identity int64) (DeleteStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed, err := e.samples.Delete(identity)
	if err != nil {
		return DeleteStats{}, fmt.Errorf("deleting samples: %w", err)
	}

	var embeddings int64
	if e.embedding != nil {
		embeddings, err = e.embedding.Gallery().DeleteIdentity(ctx, identity)
		if err != nil {
			return DeleteStats{}, fmt.Errorf("deleting gallery records: %w", err)
		}
		if err := e.embedding.Gallery().SaveIndex(); err != nil {
			log.Printf("[DELETE] failed to persist gallery index: %v", err)
		}
	}

	if err := e.retrainClassicalLocked(ctx); err != nil {
		return DeleteStats{}, err
	}
	return DeleteStats{Samples: removed, Embeddings: embeddings}, nil
}

// Rekey moves every sample and embedding record from one identity key
// to another, then retrains the classical model under the new labels.
// The vectors themselves do not change.
func (e *Engine) Rekey(ctx context.Context, oldKey, newKey int64) (DeleteStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	moved, err := e.samples.Rekey(oldKey, newKey)
	if err != nil {
		return DeleteStats{}, fmt.Errorf("rekeying samples: %w", err)
	}

	var embeddings int64
	if e.embedding != nil {
		embeddings, err = e.embedding.Gallery().Rekey(ctx, oldKey, newKey)
		if err != nil {
			return DeleteStats{}, fmt.Errorf("rekeying gallery records: %w", err)
		}
		if err := e.embedding.Gallery().SaveIndex(); err != nil {
			log.Printf("[REKEY] failed to persist gallery index: %v", err)
		}
	}

	if err := e.retrainClassicalLocked(ctx); err != nil {
		return DeleteStats{}, err
	}
	return DeleteStats{Samples: moved, Embeddings: embeddings}, nil
}

// Status is a snapshot for the status endpoint and CLI.
type Status struct {
	State            string `json:"state"`
	Identities       int    `json:"identities"`
	Samples          int    `json:"samples"`
	EmbeddingRecords int    `json:"embedding_records"`
	EmbeddingOnline  bool   `json:"embedding_online"`
	ActiveBackend    string `json:"active_backend"`
}

// Status reports the engine state and corpus counts.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{State: e.State().String()}

	ids, err := e.samples.Identities()
	if err != nil {
		return st, fmt.Errorf("listing identities: %w", err)
	}
	st.Identities = len(ids)

	if st.Samples, err = e.samples.Count(); err != nil {
		return st, fmt.Errorf("counting samples: %w", err)
	}

	if e.embedding != nil {
		st.EmbeddingOnline = e.embedding.Available(ctx)
		if n, err := e.embedding.Gallery().Count(ctx); err == nil {
			st.EmbeddingRecords = n
		}
	}

	if active := e.selectBackend(ctx); active != nil {
		st.ActiveBackend = active.Name()
	}
	return st, nil
}

// Close persists the gallery index and releases the record store.
func (e *Engine) Close() error {
	if e.embedding == nil {
		return nil
	}
	if err := e.embedding.Gallery().SaveIndex(); err != nil {
		log.Printf("[ENGINE] failed to persist gallery index: %v", err)
	}
	return e.embedding.Gallery().Close()
}
