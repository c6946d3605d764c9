package realtime

import "time"

// Wire message types pushed to dashboard clients.
const (
	TypeNewEvent            = "NEW_EVENT"
	TypeAlertTriggered      = "ALERT_TRIGGERED"
	TypeCameraStatusChanged = "CAMERA_STATUS_CHANGED"
	TypeNotification        = "notification"
)

// Message is the envelope for every realtime push. Delivery is best-effort
// at-most-once; clients that need history query the REST API.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
