package gate

import (
	"context"
	"image"
)

// Locator finds candidate face regions in a grayscale frame. Implementations
// wrap the external detection capability; the gate never inspects pixels to
// find faces itself.
type Locator interface {
	Name() string
	Detect(ctx context.Context, frame *image.Gray) ([]image.Rectangle, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc struct {
	LocatorName string
	Fn          func(ctx context.Context, frame *image.Gray) ([]image.Rectangle, error)
}

func (l LocatorFunc) Name() string { return l.LocatorName }

func (l LocatorFunc) Detect(ctx context.Context, frame *image.Gray) ([]image.Rectangle, error) {
	return l.Fn(ctx, frame)
}

// CenterLocator is a last-resort pass that proposes a square crop around the
// frame center covering 60% of the shorter side. Useful for kiosk cameras
// where the subject is known to fill the frame.
type CenterLocator struct{}

func (CenterLocator) Name() string { return "center" }

func (CenterLocator) Detect(_ context.Context, frame *image.Gray) ([]image.Rectangle, error) {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	side := min(h, w) * 6 / 10
	if side < 60 {
		side = 60
	}
	if side > w {
		side = w
	}
	if side > h {
		side = h
	}
	x := b.Min.X + (w-side)/2
	y := b.Min.Y + (h-side)/2
	return []image.Rectangle{image.Rect(x, y, x+side, y+side)}, nil
}
