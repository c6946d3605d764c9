package motion

import (
	"fmt"
	"image"
	"image/color"

	"github.com/sentryview/sentryview/internal/capture"
	"github.com/sentryview/sentryview/internal/data"
)

// Background-model algorithm names accepted in camera detection config.
const (
	AlgorithmMOG2 = "mog2"
	AlgorithmKNN  = "knn"
	AlgorithmDiff = "diff"
)

// Subtractor is one stateful background-model strategy. Apply consumes one
// frame and returns the changed regions (normalized coordinates) plus the
// changed-area percentage of the whole frame.
type Subtractor interface {
	Apply(f capture.Frame) ([]data.Region, float64)
	Close() error
}

// NewSubtractor selects the strategy configured on the camera. Unknown
// algorithms fall back to an error so misconfiguration is caught at
// session start, not silently.
func NewSubtractor(algorithm string) (Subtractor, error) {
	switch algorithm {
	case AlgorithmMOG2:
		return newMOG2Subtractor(), nil
	case AlgorithmKNN:
		return newKNNSubtractor(), nil
	case AlgorithmDiff, "":
		return newDiffSubtractor(), nil
	default:
		return nil, fmt.Errorf("unknown detection algorithm %q", algorithm)
	}
}

// diffSubtractor is simple frame differencing against the previous frame.
// Pure Go; the default when no OpenCV-backed model is configured.
type diffSubtractor struct {
	prev *image.Gray
}

const diffPixelThreshold = 25

func newDiffSubtractor() *diffSubtractor { return &diffSubtractor{} }

func (s *diffSubtractor) Apply(f capture.Frame) ([]data.Region, float64) {
	if f.Image == nil {
		return nil, 0
	}
	gray := toGray(f.Image)
	prev := s.prev
	s.prev = gray

	if prev == nil || prev.Bounds() != gray.Bounds() {
		return nil, 0
	}

	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	changed := 0
	minX, minY, maxX, maxY := w, h, -1, -1

	for y := 0; y < h; y++ {
		row := y * gray.Stride
		prow := y * prev.Stride
		for x := 0; x < w; x++ {
			d := int(gray.Pix[row+x]) - int(prev.Pix[prow+x])
			if d < 0 {
				d = -d
			}
			if d > diffPixelThreshold {
				changed++
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if changed == 0 {
		return nil, 0
	}

	areaPct := float64(changed) / float64(w*h) * 100
	region := data.Region{
		X: float64(minX) / float64(w),
		Y: float64(minY) / float64(h),
		W: float64(maxX-minX+1) / float64(w),
		H: float64(maxY-minY+1) / float64(h),
	}
	return []data.Region{region}, areaPct
}

func (s *diffSubtractor) Close() error {
	s.prev = nil
	return nil
}

func toGray(img image.Image) *image.Gray {
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
