// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Canonical sample constants
const (
	// CanonicalSize is the side length in pixels of a normalized face sample.
	// Both enrollment and identification must produce samples of this exact
	// size, since backends compare canonicalized samples, not raw crops.
	CanonicalSize = 200

	// MinFaceSize is the minimum side length in pixels for a detected face
	// region to be considered a candidate
	MinFaceSize = 60

	// SampleJPEGQuality is the JPEG quality used when persisting samples
	SampleJPEGQuality = 90
)

// Web constants
const (
	// MaxUploadSize limits a multipart enrollment or identification
	// request body (32 MB covers a generous frame batch)
	MaxUploadSize = 32 << 20

	// MaxFramesPerRequest caps the number of frames accepted per request
	MaxFramesPerRequest = 32
)

// Quality gate constants
const (
	// DefaultEnrollBlurThreshold is the minimum Laplacian variance for a
	// frame to be accepted during enrollment
	DefaultEnrollBlurThreshold = 40.0

	// DefaultIdentifyBlurThreshold is the minimum Laplacian variance during
	// identification. More permissive than enrollment to avoid starving the
	// vote of frames.
	DefaultIdentifyBlurThreshold = 25.0
)

// Enrollment constants
const (
	// DefaultMinSamples is the minimum number of samples stored per
	// identity; synthesis fills the gap when a batch yields fewer
	DefaultMinSamples = 20

	// DefaultMinEmbeddings is the minimum number of embeddings the
	// embedding backend must produce for an enrollment to succeed
	DefaultMinEmbeddings = 5

	// AugmentBrightnessAlpha and AugmentBrightnessBeta are the photometric
	// perturbation applied to synthesized samples (out = in*alpha + beta)
	AugmentBrightnessAlpha = 1.05
	AugmentBrightnessBeta  = 5

	// AugmentRotateDegrees is the small rotation applied to synthesized samples
	AugmentRotateDegrees = 3.0
)

// Voting constants
const (
	// DefaultVoteMinShare is the minimum fraction of processed frames that
	// must vote for the winning identity
	DefaultVoteMinShare = 0.35

	// DefaultMinValidFrames is the minimum number of votes the winning
	// identity needs for a Found decision
	DefaultMinValidFrames = 2

	// DefaultEarlyVotesRequired is the vote count at which the early-stop
	// condition may trigger
	DefaultEarlyVotesRequired = 4

	// DefaultEarlyDistanceThreshold is the stricter mean-distance bound for
	// early stopping on the classical backend
	DefaultEarlyDistanceThreshold = 80.0

	// DefaultDistanceThreshold is the maximum median distance accepted by
	// the classical backend at decision time
	DefaultDistanceThreshold = 120.0

	// DefaultSimilarityThreshold is the minimum median cosine similarity
	// accepted by the embedding backend at decision time
	DefaultSimilarityThreshold = 0.45

	// DefaultEarlySimilarityThreshold is the stricter mean-similarity bound
	// for early stopping on the embedding backend
	DefaultEarlySimilarityThreshold = 0.60
)

// Gallery constants
const (
	// DefaultGallerySearchK is the number of nearest embedding records
	// fetched per query before per-identity aggregation
	DefaultGallerySearchK = 10

	// HNSWMaxNeighbors is the M parameter for the HNSW graph
	HNSWMaxNeighbors = 16
)
