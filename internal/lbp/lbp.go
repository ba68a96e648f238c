// Package lbp implements a local binary pattern face recognizer: per
// region pattern histograms compared with chi-square distance against
// every trained sample.
package lbp

import (
	"encoding/gob"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
)

const (
	// gridSize splits the sample into gridSize x gridSize regions, each
	// contributing its own normalized histogram.
	gridSize = 8
	bins     = 256
)

var ErrNotTrained = errors.New("recognizer has no trained samples")

type sampleHist struct {
	Label int64
	Hist  []float64
}

// Recognizer is a nearest-neighbor classifier over LBP histograms. It
// is not safe for concurrent mutation; callers serialize Train/Load
// against Predict.
type Recognizer struct {
	samples []sampleHist
}

func New() *Recognizer {
	return &Recognizer{}
}

// Empty reports whether the recognizer holds any trained samples.
func (r *Recognizer) Empty() bool {
	return len(r.samples) == 0
}

// Train replaces the model with histograms of the given samples.
func (r *Recognizer) Train(samples []*image.Gray, labels []int64) error {
	if len(samples) != len(labels) {
		return fmt.Errorf("got %d samples but %d labels", len(samples), len(labels))
	}
	if len(samples) == 0 {
		return errors.New("cannot train on an empty corpus")
	}

	trained := make([]sampleHist, 0, len(samples))
	for i, s := range samples {
		trained = append(trained, sampleHist{
			Label: labels[i],
			Hist:  histogram(s),
		})
	}
	r.samples = trained
	return nil
}

// Predict returns the label of the closest trained sample and the
// chi-square distance to it.
func (r *Recognizer) Predict(sample *image.Gray) (int64, float64, error) {
	if r.Empty() {
		return 0, 0, ErrNotTrained
	}

	query := histogram(sample)
	best := r.samples[0]
	bestDist := chiSquare(query, best.Hist)
	for _, s := range r.samples[1:] {
		if d := chiSquare(query, s.Hist); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best.Label, bestDist, nil
}

type modelFile struct {
	Version int
	Samples []sampleHist
}

// Save writes the trained model to path atomically.
func (r *Recognizer) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(modelFile{Version: 1, Samples: r.samples}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close model file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the model with the one stored at path.
func (r *Recognizer) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	var m modelFile
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}
	r.samples = m.Samples
	return nil
}

// histogram computes the concatenated per-region LBP histogram. Each
// region's histogram is normalized by its own pixel count so that
// distances stay comparable across sample sizes.
func histogram(img *image.Gray) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	hist := make([]float64, gridSize*gridSize*bins)
	if w < 3 || h < 3 {
		return hist
	}

	counts := make([]float64, gridSize*gridSize)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			code := lbpCode(img, b.Min.X+x, b.Min.Y+y)
			region := (y*gridSize/h)*gridSize + x*gridSize/w
			hist[region*bins+int(code)]++
			counts[region]++
		}
	}
	for region, n := range counts {
		if n == 0 {
			continue
		}
		for i := region * bins; i < (region+1)*bins; i++ {
			hist[i] /= n
		}
	}
	return hist
}

// lbpCode compares the 8 neighbors of (x, y) against the center pixel,
// clockwise from the top-left.
func lbpCode(img *image.Gray, x, y int) uint8 {
	c := img.GrayAt(x, y).Y
	var code uint8
	neighbors := [8][2]int{
		{-1, -1}, {0, -1}, {1, -1},
		{1, 0}, {1, 1}, {0, 1},
		{-1, 1}, {-1, 0},
	}
	for i, n := range neighbors {
		if img.GrayAt(x+n[0], y+n[1]).Y >= c {
			code |= 1 << uint(i)
		}
	}
	return code
}

// chiSquare sums (a-b)^2/(a+b) over all bins; zero bins on both sides
// contribute nothing.
func chiSquare(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		s := a[i] + b[i]
		if s > 0 {
			sum += d * d / s
		}
	}
	return sum
}
