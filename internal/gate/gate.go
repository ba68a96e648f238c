// Package gate implements the frame quality gate: face presence, sharpness
// and canonical normalization. A frame either passes with a canonical sample
// or is rejected with a reason; rejection is a normal outcome during
// multi-frame flows, not a failure.
package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

var (
	// ErrNoFace indicates no locator pass found a face region.
	ErrNoFace = errors.New("no face detected")
	// ErrTooBlurry indicates the face region failed the sharpness check.
	ErrTooBlurry = errors.New("face region too blurry")
)

// Mode selects the blur threshold. Identification is more permissive than
// enrollment so that a marginal camera does not starve the vote.
type Mode int

const (
	ModeEnroll Mode = iota
	ModeIdentify
)

// Result is an accepted frame: the canonical sample and the face rectangle
// in original frame coordinates.
type Result struct {
	Sample *image.Gray
	Rect   image.Rectangle
}

// Gate evaluates raw frames against the configured quality criteria.
type Gate struct {
	locators      []Locator
	enrollBlur    float64
	identifyBlur  float64
	canonicalSize int
}

// Config holds the gate thresholds.
type Config struct {
	EnrollBlurThreshold   float64
	IdentifyBlurThreshold float64
	CanonicalSize         int
}

// New creates a Gate running the given locator passes in preference order.
func New(cfg Config, locators ...Locator) *Gate {
	return &Gate{
		locators:      locators,
		enrollBlur:    cfg.EnrollBlurThreshold,
		identifyBlur:  cfg.IdentifyBlurThreshold,
		canonicalSize: cfg.CanonicalSize,
	}
}

// Evaluate decodes a raw frame and runs the full gate. It returns the
// canonical sample or ErrNoFace / ErrTooBlurry.
func (g *Gate) Evaluate(ctx context.Context, frame []byte, mode Mode) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return g.EvaluateImage(ctx, img, mode)
}

// EvaluateImage runs the gate on an already decoded frame.
func (g *Gate) EvaluateImage(ctx context.Context, img image.Image, mode Mode) (*Result, error) {
	gray := ToGray(img)

	rect, err := g.largestFace(ctx, gray)
	if err != nil {
		return nil, err
	}

	crop := cropGray(gray, rect)

	// Sharpness is measured on the raw crop, before normalization, so that
	// equalization cannot mask blur.
	threshold := g.enrollBlur
	if mode == ModeIdentify {
		threshold = g.identifyBlur
	}
	if LaplacianVariance(crop) < threshold {
		return nil, ErrTooBlurry
	}

	return &Result{
		Sample: Normalize(crop, g.canonicalSize),
		Rect:   rect,
	}, nil
}

// largestFace runs every locator pass and keeps the candidate with the
// largest bounding-box area across all passes.
func (g *Gate) largestFace(ctx context.Context, gray *image.Gray) (image.Rectangle, error) {
	best := image.Rectangle{}
	bestArea := -1
	for _, loc := range g.locators {
		rects, err := loc.Detect(ctx, gray)
		if err != nil {
			// A failing locator pass is skipped; the remaining passes may
			// still produce a candidate.
			continue
		}
		for _, r := range rects {
			r = r.Intersect(gray.Bounds())
			area := r.Dx() * r.Dy()
			if area > bestArea && !r.Empty() {
				bestArea = area
				best = r
			}
		}
	}
	if bestArea <= 0 {
		return image.Rectangle{}, ErrNoFace
	}
	return best, nil
}

// cropGray returns a copy of the region, re-anchored at the origin.
func cropGray(img *image.Gray, rect image.Rectangle) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			out.SetGray(x, y, img.GrayAt(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return out
}
