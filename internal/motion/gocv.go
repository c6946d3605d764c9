package motion

import (
	"image"
	"log"

	"gocv.io/x/gocv"

	"github.com/sentryview/sentryview/internal/capture"
	"github.com/sentryview/sentryview/internal/data"
)

// OpenCV-backed background models. MOG2 is the accumulating Gaussian
// mixture; KNN is the k-nearest-neighbors variant. Both share the shadow
// threshold below: MOG2/KNN mark shadows at 127, and they must not count
// as motion.

const fgThreshold = 200

type cvSubtractor struct {
	apply func(src gocv.Mat, dst *gocv.Mat)
	close func() error
}

func newMOG2Subtractor() *cvSubtractor {
	bs := gocv.NewBackgroundSubtractorMOG2()
	return &cvSubtractor{
		apply: func(src gocv.Mat, dst *gocv.Mat) { bs.Apply(src, dst) },
		close: bs.Close,
	}
}

func newKNNSubtractor() *cvSubtractor {
	bs := gocv.NewBackgroundSubtractorKNN()
	return &cvSubtractor{
		apply: func(src gocv.Mat, dst *gocv.Mat) { bs.Apply(src, dst) },
		close: bs.Close,
	}
}

func (s *cvSubtractor) Apply(f capture.Frame) ([]data.Region, float64) {
	if f.Image == nil {
		return nil, 0
	}
	src, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		log.Printf("[Motion] image convert error: %v", err)
		return nil, 0
	}
	defer src.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	s.apply(src, &mask)

	// Drop shadows, keep confident foreground.
	fg := gocv.NewMat()
	defer fg.Close()
	gocv.Threshold(mask, &fg, fgThreshold, 255, gocv.ThresholdBinary)

	total := fg.Rows() * fg.Cols()
	if total == 0 {
		return nil, 0
	}
	areaPct := float64(gocv.CountNonZero(fg)) / float64(total) * 100
	if areaPct == 0 {
		return nil, 0
	}

	contours := gocv.FindContours(fg, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []data.Region
	w, h := float64(fg.Cols()), float64(fg.Rows())
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		regions = append(regions, normalizeRect(rect, w, h))
	}
	return regions, areaPct
}

func (s *cvSubtractor) Close() error { return s.close() }

func normalizeRect(r image.Rectangle, w, h float64) data.Region {
	return data.Region{
		X: float64(r.Min.X) / w,
		Y: float64(r.Min.Y) / h,
		W: float64(r.Dx()) / w,
		H: float64(r.Dy()) / h,
	}
}
