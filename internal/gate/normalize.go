package gate

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ToGray converts any image to 8-bit grayscale.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// Normalize projects a face crop to the canonical representation: resized to
// size x size and contrast equalized. Applying Normalize to an already
// canonical sample yields a bit-identical result, which lets enrollment-time
// samples be reused verbatim at query time.
func Normalize(crop *image.Gray, size int) *image.Gray {
	resized := crop
	b := crop.Bounds()
	if b.Dx() != size || b.Dy() != size {
		resized = image.NewGray(image.Rect(0, 0, size, size))
		draw.CatmullRom.Scale(resized, resized.Bounds(), crop, b, draw.Src, nil)
	} else if b.Min != (image.Point{}) {
		// Re-anchor at the origin so outputs are comparable byte-wise.
		resized = image.NewGray(image.Rect(0, 0, size, size))
		draw.Draw(resized, resized.Bounds(), crop, b.Min, draw.Src)
	}
	return equalizeHist(resized)
}

// equalizeHist applies histogram equalization. The mapping uses the
// cumulative distribution including the current bin, which makes the
// operation exactly idempotent: counts survive the remap, so a second pass
// reproduces the same lookup table.
func equalizeHist(img *image.Gray) *image.Gray {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return img
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	// Cumulative distribution and the lowest occupied bin.
	var cdf [256]int
	running := 0
	cdfMin := 0
	seenMin := false
	for v := range 256 {
		running += hist[v]
		cdf[v] = running
		if !seenMin && hist[v] > 0 {
			cdfMin = running
			seenMin = true
		}
	}

	var lut [256]uint8
	denom := total - cdfMin
	if denom <= 0 {
		// Flat image: single gray level, nothing to stretch.
		return img
	}
	for v := range 256 {
		if cdf[v] <= cdfMin {
			lut[v] = 0
			continue
		}
		scaled := float64(cdf[v]-cdfMin) / float64(denom) * 255.0
		lut[v] = uint8(scaled + 0.5)
	}

	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: lut[img.GrayAt(x, y).Y]})
		}
	}
	return out
}

// LaplacianVariance computes the variance of a 4-neighbor Laplacian edge
// response over the interior of the image. Low values indicate blur.
func LaplacianVariance(img *image.Gray) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	n := (w - 2) * (h - 2)
	responses := make([]float64, 0, n)
	var sum float64
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			center := float64(img.GrayAt(x, y).Y)
			lap := float64(img.GrayAt(x-1, y).Y) +
				float64(img.GrayAt(x+1, y).Y) +
				float64(img.GrayAt(x, y-1).Y) +
				float64(img.GrayAt(x, y+1).Y) -
				4*center
			responses = append(responses, lap)
			sum += lap
		}
	}

	mean := sum / float64(n)
	var variance float64
	for _, r := range responses {
		d := r - mean
		variance += d * d
	}
	return variance / float64(n)
}
