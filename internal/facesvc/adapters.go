package facesvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/kozaktomas/facegate/internal/backend"
)

// Locator adapts the client's face detection to the quality gate.
type Locator struct {
	client *Client
}

func NewLocator(client *Client) *Locator {
	return &Locator{client: client}
}

func (l *Locator) Name() string { return "facesvc" }

// Detect runs the service detector and converts its boxes to rectangles.
func (l *Locator) Detect(ctx context.Context, img *image.Gray) ([]image.Rectangle, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	faces, err := l.client.DetectFaces(ctx, data)
	if err != nil {
		return nil, err
	}

	rects := make([]image.Rectangle, 0, len(faces))
	for _, f := range faces {
		if len(f.BBox) != 4 {
			continue
		}
		rects = append(rects, image.Rect(
			int(math.Floor(f.BBox[0])),
			int(math.Floor(f.BBox[1])),
			int(math.Ceil(f.BBox[2])),
			int(math.Ceil(f.BBox[3])),
		))
	}
	return rects, nil
}

// Embedder adapts the client to the embedding backend. Transport
// failures surface as backend unavailability so the caller can fall
// back to the classical backend.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, sample *image.Gray) ([]float32, error) {
	data, err := encodePNG(sample)
	if err != nil {
		return nil, err
	}

	emb, err := e.client.ComputeFaceEmbedding(ctx, data)
	if errors.Is(err, ErrServiceDown) {
		return nil, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func (e *Embedder) Healthy(ctx context.Context) bool {
	return e.client.Healthy(ctx)
}

func encodePNG(img *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
