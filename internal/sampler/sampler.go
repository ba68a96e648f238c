// Package sampler turns a batch of raw enrollment frames into a
// persisted sample set: gated frames are stored as-is and synthetic
// variants are generated until the identity has enough samples.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/gate"
	"github.com/kozaktomas/facegate/internal/store"
)

// ErrNoUsableFrames indicates that not a single enrollment frame passed
// the quality gate. The caller must roll back any speculative identity
// record it created.
var ErrNoUsableFrames = errors.New("no enrollment frame passed the quality gate")

// Sampler collects enrollment samples for one identity at a time.
type Sampler struct {
	gate       *gate.Gate
	samples    *store.SampleStore
	minSamples int
}

func New(g *gate.Gate, samples *store.SampleStore, minSamples int) *Sampler {
	return &Sampler{
		gate:       g,
		samples:    samples,
		minSamples: minSamples,
	}
}

// Result reports what one collection run produced. Samples holds every
// sample persisted in this run, real and synthetic, so the caller can
// enroll them into other backends without re-reading the store.
type Result struct {
	Accepted    int // frames that passed the gate
	Synthesized int // augmented variants generated on top of them
	Total       int // samples the identity holds after the run
	Samples     []*image.Gray
}

// Collect quality-gates every frame, persists the accepted samples and
// synthesizes augmented variants until the identity holds at least the
// configured minimum. Frames that fail the gate are dropped silently;
// if none survive, ErrNoUsableFrames is returned and nothing is stored.
func (s *Sampler) Collect(ctx context.Context, identity int64, frames [][]byte) (Result, error) {
	var accepted []*image.Gray
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := s.gate.Evaluate(ctx, frame, gate.ModeEnroll)
		if err != nil {
			continue
		}
		accepted = append(accepted, res.Sample)
	}
	if len(accepted) == 0 {
		return Result{}, ErrNoUsableFrames
	}

	for _, sample := range accepted {
		if _, err := s.samples.Append(identity, sample); err != nil {
			return Result{}, fmt.Errorf("storing sample: %w", err)
		}
	}

	synthetic, err := s.augment(identity, accepted)
	if err != nil {
		return Result{}, err
	}

	total, err := s.samples.CountFor(identity)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Accepted:    len(accepted),
		Synthesized: len(synthetic),
		Total:       total,
		Samples:     append(accepted, synthetic...),
	}, nil
}

// augment cycles over the accepted samples, storing a brightened and
// slightly rotated variant per round, until the identity reaches the
// minimum sample count.
func (s *Sampler) augment(identity int64, bases []*image.Gray) ([]*image.Gray, error) {
	have, err := s.samples.CountFor(identity)
	if err != nil {
		return nil, err
	}

	var synthetic []*image.Gray
	for i := 0; have+len(synthetic) < s.minSamples; i++ {
		base := bases[i%len(bases)]
		angle := constants.AugmentRotateDegrees
		if i%2 == 1 {
			angle = -angle
		}
		variant := rotate(brighten(base, constants.AugmentBrightnessAlpha, constants.AugmentBrightnessBeta), angle)
		if _, err := s.samples.Append(identity, variant); err != nil {
			return nil, fmt.Errorf("storing synthetic sample: %w", err)
		}
		synthetic = append(synthetic, variant)
	}
	return synthetic, nil
}

// brighten applies out = clamp(alpha*in + beta) per pixel.
func brighten(src *image.Gray, alpha float64, beta int) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := alpha*float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y) + float64(beta)
			if v > 255 {
				v = 255
			}
			if v < 0 {
				v = 0
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return out
}

// rotate turns the sample by degrees around its center, bilinear
// interpolated. Uncovered corners stay black.
func rotate(src *image.Gray, degrees float64) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2

	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(dst, m, src, b, draw.Src, nil)
	return dst
}
