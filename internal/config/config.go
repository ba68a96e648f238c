package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	FaceService FaceServiceConfig
	Data        DataConfig
	Database    DatabaseConfig
	Registry    RegistryConfig
	Tuning      TuningConfig
}

type FaceServiceConfig struct {
	URL   string // face detection + embedding service, defaults to http://localhost:8000
	Model string // model name for reference only
	Dim   int    // embedding dimension, defaults to 512
}

type DataConfig struct {
	Dir           string // directory holding canonical face samples
	ModelPath     string // classical recognizer artifact path
	GalleryPath   string // gob file for embedding records when no database is configured
	HNSWIndexPath string // path to persist the gallery HNSW index (optional)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL for embedding records (optional)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RegistryConfig struct {
	// DatabaseURL is a MariaDB DSN for the external person-record store
	// owned by the operator console. Read-only; optional.
	DatabaseURL string
}

// TuningConfig holds the decision-engine thresholds. Defaults come from the
// embedded thresholds.yaml; each value can be overridden by environment.
type TuningConfig struct {
	EnrollBlurThreshold      float64 `yaml:"enroll_blur_threshold"`
	IdentifyBlurThreshold    float64 `yaml:"identify_blur_threshold"`
	MinSamples               int     `yaml:"min_samples"`
	MinEmbeddings            int     `yaml:"min_embeddings"`
	VoteMinShare             float64 `yaml:"vote_min_share"`
	MinValidFrames           int     `yaml:"min_valid_frames"`
	EarlyVotesRequired       int     `yaml:"early_votes_required"`
	EarlyDistanceThreshold   float64 `yaml:"early_distance_threshold"`
	DistanceThreshold        float64 `yaml:"distance_threshold"`
	SimilarityThreshold      float64 `yaml:"similarity_threshold"`
	EarlySimilarityThreshold float64 `yaml:"early_similarity_threshold"`
	GallerySearchK           int     `yaml:"gallery_search_k"`
	CenterFallback           bool    `yaml:"center_fallback"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean ("1"/"true" are true).
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	return s == "1" || s == "true"
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var tuning TuningConfig
	if err := yaml.Unmarshal(thresholdsYAML, &tuning); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	// Environment overrides for individual thresholds.
	tuning.EnrollBlurThreshold = envFloat("ENROLL_BLUR_THRESHOLD", tuning.EnrollBlurThreshold)
	tuning.IdentifyBlurThreshold = envFloat("IDENTIFY_BLUR_THRESHOLD", tuning.IdentifyBlurThreshold)
	tuning.MinSamples = envInt("MIN_SAMPLES", tuning.MinSamples)
	tuning.MinEmbeddings = envInt("MIN_EMBEDDINGS", tuning.MinEmbeddings)
	tuning.VoteMinShare = envFloat("VOTE_MIN_SHARE", tuning.VoteMinShare)
	tuning.MinValidFrames = envInt("MIN_VALID_FRAMES", tuning.MinValidFrames)
	tuning.EarlyVotesRequired = envInt("EARLY_VOTES_REQUIRED", tuning.EarlyVotesRequired)
	tuning.EarlyDistanceThreshold = envFloat("EARLY_DISTANCE_THRESHOLD", tuning.EarlyDistanceThreshold)
	tuning.DistanceThreshold = envFloat("DISTANCE_THRESHOLD", tuning.DistanceThreshold)
	tuning.SimilarityThreshold = envFloat("SIMILARITY_THRESHOLD", tuning.SimilarityThreshold)
	tuning.EarlySimilarityThreshold = envFloat("EARLY_SIMILARITY_THRESHOLD", tuning.EarlySimilarityThreshold)
	tuning.GallerySearchK = envInt("GALLERY_SEARCH_K", tuning.GallerySearchK)
	tuning.CenterFallback = envBool("CENTER_FALLBACK", tuning.CenterFallback)

	return &Config{
		FaceService: FaceServiceConfig{
			URL:   envString("FACE_SERVICE_URL", "http://localhost:8000"),
			Model: os.Getenv("FACE_SERVICE_MODEL"),
			Dim:   envInt("EMBEDDING_DIM", 512),
		},
		Data: DataConfig{
			Dir:           envString("DATA_DIR", "data/samples"),
			ModelPath:     envString("MODEL_PATH", "data/trainer.gob"),
			GalleryPath:   envString("GALLERY_PATH", "data/gallery.gob"),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Registry: RegistryConfig{
			DatabaseURL: os.Getenv("REGISTRY_DATABASE_URL"),
		},
		Tuning: tuning,
	}
}
