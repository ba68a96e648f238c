package gate

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// fullFrameLocator reports the whole frame as a single face candidate.
func fullFrameLocator() Locator {
	return LocatorFunc{
		LocatorName: "full",
		Fn: func(_ context.Context, frame *image.Gray) ([]image.Rectangle, error) {
			return []image.Rectangle{frame.Bounds()}, nil
		},
	}
}

// checkerboard produces a maximally sharp grayscale image.
func checkerboard(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// flat produces a uniformly gray image with zero edge response.
func flat(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func testGate(locators ...Locator) *Gate {
	return New(Config{
		EnrollBlurThreshold:   40.0,
		IdentifyBlurThreshold: 25.0,
		CanonicalSize:         200,
	}, locators...)
}

func TestEvaluate_NoFace(t *testing.T) {
	noFace := LocatorFunc{
		LocatorName: "empty",
		Fn: func(context.Context, *image.Gray) ([]image.Rectangle, error) {
			return nil, nil
		},
	}
	g := testGate(noFace)

	_, err := g.EvaluateImage(context.Background(), checkerboard(100, 100), ModeEnroll)
	if !errors.Is(err, ErrNoFace) {
		t.Fatalf("expected ErrNoFace, got %v", err)
	}
}

func TestEvaluate_TooBlurry(t *testing.T) {
	g := testGate(fullFrameLocator())

	_, err := g.EvaluateImage(context.Background(), flat(100, 100, 128), ModeEnroll)
	if !errors.Is(err, ErrTooBlurry) {
		t.Fatalf("expected ErrTooBlurry, got %v", err)
	}
}

func TestEvaluate_AcceptsSharpFrame(t *testing.T) {
	g := testGate(fullFrameLocator())

	res, err := g.EvaluateImage(context.Background(), checkerboard(120, 90), ModeEnroll)
	if err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
	b := res.Sample.Bounds()
	if b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("expected canonical 200x200 sample, got %dx%d", b.Dx(), b.Dy())
	}
	if res.Rect != image.Rect(0, 0, 120, 90) {
		t.Errorf("unexpected face rect %v", res.Rect)
	}
}

func TestEvaluate_DecodesEncodedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, checkerboard(100, 100)); err != nil {
		t.Fatalf("encoding test frame: %v", err)
	}

	g := testGate(fullFrameLocator())
	res, err := g.Evaluate(context.Background(), buf.Bytes(), ModeIdentify)
	if err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
	if res.Sample == nil {
		t.Fatal("expected a canonical sample")
	}
}

func TestEvaluate_IdentifyMorePermissive(t *testing.T) {
	// An image with mild texture: sharp enough for identification but not
	// for enrollment.
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := range 100 {
		for x := range 100 {
			v := uint8(128)
			if (x/2+y/2)%2 == 0 {
				v = 140
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	g := New(Config{
		EnrollBlurThreshold:   1000.0,
		IdentifyBlurThreshold: 1.0,
		CanonicalSize:         200,
	}, fullFrameLocator())

	if _, err := g.EvaluateImage(context.Background(), img, ModeEnroll); !errors.Is(err, ErrTooBlurry) {
		t.Errorf("expected enrollment rejection, got %v", err)
	}
	if _, err := g.EvaluateImage(context.Background(), img, ModeIdentify); err != nil {
		t.Errorf("expected identification accept, got %v", err)
	}
}

func TestLargestFace_AcrossPasses(t *testing.T) {
	small := LocatorFunc{
		LocatorName: "small",
		Fn: func(context.Context, *image.Gray) ([]image.Rectangle, error) {
			return []image.Rectangle{image.Rect(0, 0, 30, 30)}, nil
		},
	}
	big := LocatorFunc{
		LocatorName: "big",
		Fn: func(context.Context, *image.Gray) ([]image.Rectangle, error) {
			return []image.Rectangle{image.Rect(10, 10, 90, 90)}, nil
		},
	}
	failing := LocatorFunc{
		LocatorName: "failing",
		Fn: func(context.Context, *image.Gray) ([]image.Rectangle, error) {
			return nil, errors.New("detector offline")
		},
	}

	g := testGate(failing, small, big)
	res, err := g.EvaluateImage(context.Background(), checkerboard(100, 100), ModeEnroll)
	if err != nil {
		t.Fatalf("expected accept, got %v", err)
	}
	if res.Rect != image.Rect(10, 10, 90, 90) {
		t.Errorf("expected largest candidate to win, got %v", res.Rect)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	// The gate must be a projection: normalizing an already canonical
	// sample yields a bit-identical result.
	src := image.NewGray(image.Rect(0, 0, 150, 130))
	for y := range 130 {
		for x := range 150 {
			src.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13) % 251)})
		}
	}

	once := Normalize(src, 200)
	twice := Normalize(once, 200)

	if !bytes.Equal(once.Pix, twice.Pix) {
		t.Fatal("Normalize is not idempotent on canonical input")
	}
}

func TestLaplacianVariance(t *testing.T) {
	if v := LaplacianVariance(flat(50, 50, 200)); v != 0 {
		t.Errorf("flat image should have zero variance, got %f", v)
	}
	if v := LaplacianVariance(checkerboard(50, 50)); v < 1000 {
		t.Errorf("checkerboard should have high variance, got %f", v)
	}
	if v := LaplacianVariance(flat(2, 2, 0)); v != 0 {
		t.Errorf("tiny image should report zero variance, got %f", v)
	}
}

func TestCenterLocator(t *testing.T) {
	frame := flat(200, 100, 128)
	rects, err := CenterLocator{}.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rects) != 1 {
		t.Fatalf("expected one candidate, got %d", len(rects))
	}
	r := rects[0]
	if r.Dx() != r.Dy() {
		t.Errorf("expected square crop, got %v", r)
	}
	if !r.In(frame.Bounds()) {
		t.Errorf("crop %v outside frame bounds", r)
	}
}
