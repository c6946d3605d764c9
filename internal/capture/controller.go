package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sentryview/sentryview/internal/data"
)

const (
	controllerPongWait   = 60 * time.Second
	controllerPingPeriod = 25 * time.Second
)

// controllerMessage is the vendor controller's push envelope.
type controllerMessage struct {
	Type       string    `json:"type"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Snapshot   string    `json:"snapshot,omitempty"` // base64 JPEG
	ClipRef    string    `json:"clip_ref,omitempty"`
}

// ControllerSource consumes smart-detection events pushed by a vendor
// controller over a persistent websocket. It produces RawDetections
// directly; no frames flow through the motion detector.
type ControllerSource struct {
	cam    data.Camera
	events chan data.RawDetection

	mu        sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
	done      chan struct{}
}

func NewControllerSource(cam *data.Camera) *ControllerSource {
	return &ControllerSource{cam: *cam}
}

func (s *ControllerSource) Open(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.cam.Address, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: dial %s: status %d", ErrConnection, s.cam.Address, resp.StatusCode)
		}
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, s.cam.Address, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.events = make(chan data.RawDetection, 4)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop()
	go s.pingLoop(conn)
	return nil
}

func (s *ControllerSource) Frames() <-chan Frame             { return nil }
func (s *ControllerSource) Events() <-chan data.RawDetection { return s.events }

func (s *ControllerSource) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.done != nil {
			close(s.done)
		}
		if s.conn != nil {
			s.conn.Close()
		}
	})
	return nil
}

func (s *ControllerSource) readLoop() {
	defer close(s.events)

	conn := s.conn
	conn.SetReadDeadline(time.Now().Add(controllerPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(controllerPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("[Capture] controller %s: read error: %v", s.cam.ID, err)
			}
			return
		}

		var msg controllerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[Capture] controller %s: bad message: %v", s.cam.ID, err)
			continue
		}
		if msg.Type != "smart_event" {
			continue
		}

		det := s.toDetection(msg)
		select {
		case s.events <- det:
		case <-s.done:
			return
		}
	}
}

func (s *ControllerSource) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(controllerPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *ControllerSource) toDetection(msg controllerMessage) data.RawDetection {
	occurred := msg.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	det := data.RawDetection{
		ID:           uuid.New(),
		CameraID:     s.cam.ID,
		Kind:         MapControllerEvent(msg.EventType),
		OccurredAt:   occurred,
		AnalysisMode: s.cam.Detection.AnalysisMode,
		ClipRef:      msg.ClipRef,
	}
	if msg.Snapshot != "" {
		if jpeg, err := base64.StdEncoding.DecodeString(msg.Snapshot); err == nil {
			det.Frames = [][]byte{jpeg}
		}
	}
	return det
}

// MapControllerEvent normalizes vendor smart-detection labels to the
// pipeline's detected-type hints.
func MapControllerEvent(raw string) string {
	switch v := strings.ToLower(raw); {
	case strings.Contains(v, "person"), strings.Contains(v, "human"):
		return data.DetectionPerson
	case strings.Contains(v, "vehicle"), strings.Contains(v, "car"):
		return data.DetectionVehicle
	case strings.Contains(v, "package"), strings.Contains(v, "parcel"):
		return data.DetectionPackage
	case strings.Contains(v, "animal"), strings.Contains(v, "pet"):
		return data.DetectionAnimal
	case strings.Contains(v, "ring"), strings.Contains(v, "doorbell"):
		return data.DetectionRing
	case strings.Contains(v, "motion"):
		return data.DetectionMotion
	default:
		return data.DetectionUnknown
	}
}
