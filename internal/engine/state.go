package engine

// ArtifactState tracks the lifecycle of the trained matcher artifact.
type ArtifactState int

const (
	// StateEmpty means no usable artifact exists; identification is
	// rejected outright.
	StateEmpty ArtifactState = iota
	// StateTrained means the active artifact matches the sample corpus.
	StateTrained
	// StateStale means the corpus changed and the retrain has not
	// completed yet. The engine only exposes this state when a retrain
	// fails; during a normal mutation the retrain runs synchronously
	// under the exclusive lock.
	StateStale
)

func (s ArtifactState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateTrained:
		return "trained"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}
