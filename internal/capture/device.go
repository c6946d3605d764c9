package capture

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/sentryview/sentryview/internal/data"
)

const maxConsecutiveReadErrors = 10

// DeviceSource covers poll-based cameras (RTSP URL or USB device index)
// through an OpenCV VideoCapture. Frames are read at the stream's native
// rate and emitted at the camera's configured sample rate.
type DeviceSource struct {
	cam    data.Camera
	frames chan Frame

	mu        sync.Mutex
	capture   *gocv.VideoCapture
	closeOnce sync.Once
	done      chan struct{}
}

func NewDeviceSource(cam *data.Camera) *DeviceSource {
	return &DeviceSource{cam: *cam}
}

func (s *DeviceSource) Open(ctx context.Context) error {
	var cap *gocv.VideoCapture
	var err error

	switch s.cam.Kind {
	case data.SourceUSB:
		idx, convErr := strconv.Atoi(s.cam.Address)
		if convErr != nil {
			return fmt.Errorf("camera %s: bad device index %q: %v", s.cam.ID, s.cam.Address, convErr)
		}
		cap, err = gocv.OpenVideoCapture(idx)
	default:
		cap, err = gocv.OpenVideoCaptureWithAPI(s.cam.Address, gocv.VideoCaptureFFmpeg)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("%w: capture not opened", ErrConnection)
	}

	s.mu.Lock()
	s.capture = cap
	s.frames = make(chan Frame, 1)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(ctx, cap)
	return nil
}

func (s *DeviceSource) Frames() <-chan Frame { return s.frames }

// Events returns nil: poll-based sources have no out-of-band push channel.
func (s *DeviceSource) Events() <-chan data.RawDetection { return nil }

func (s *DeviceSource) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.done != nil {
			close(s.done)
		}
		if s.capture != nil {
			s.capture.Close()
		}
	})
	return nil
}

func (s *DeviceSource) readLoop(ctx context.Context, cap *gocv.VideoCapture) {
	defer close(s.frames)

	img := gocv.NewMat()
	defer img.Close()

	interval := sampleInterval(s.cam.Detection.SampleFPS)
	var lastEmit time.Time
	readErrors := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		if ok := cap.Read(&img); !ok || img.Empty() {
			readErrors++
			if readErrors >= maxConsecutiveReadErrors {
				log.Printf("[Capture] camera %s: %d consecutive read errors, dropping session", s.cam.ID, readErrors)
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		readErrors = 0

		now := time.Now()
		if now.Sub(lastEmit) < interval {
			continue
		}

		frame, err := frameFromMat(s.cam.ID, img, now)
		if err != nil {
			log.Printf("[Capture] camera %s: frame convert error: %v", s.cam.ID, err)
			continue
		}
		lastEmit = now

		// The detector is the only consumer; if it is behind, the frame is
		// stale by the time it would be read, so drop instead of blocking.
		select {
		case s.frames <- frame:
		default:
		}
	}
}

func frameFromMat(cameraID uuid.UUID, m gocv.Mat, at time.Time) (Frame, error) {
	img, err := m.ToImage()
	if err != nil {
		return Frame{}, err
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return Frame{}, err
	}
	defer buf.Close()

	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())

	return Frame{CameraID: cameraID, CapturedAt: at, Image: img, JPEG: jpeg}, nil
}

func sampleInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 2
	}
	return time.Duration(float64(time.Second) / fps)
}
