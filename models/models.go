package models

import (
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// Proof types as stored in the database and served to clients.
const (
	ProofTypePhoto = "photo"
	ProofTypeVideo = "video"
	ProofTypeAudio = "audio"
)

// StatusPending is assigned at creation. Later values come from downstream
// services through the status webhook and are not constrained here.
const StatusPending = "pending"

// Proof is one piece of evidence attached to an alert. Thumbnail is nil when
// generation failed or does not apply.
type Proof struct {
	Type      string  `json:"type"`
	URL       string  `json:"url"`
	Thumbnail *string `json:"thumbnail"`
	Size      int64   `json:"size"`
}

// Comment is an append-only note on an alert.
type Comment struct {
	CitizenID string    `json:"citizenId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Alert is a citizen-submitted incident report. Location is always a GeoJSON
// Point with coordinates ordered [longitude, latitude].
type Alert struct {
	ID          string            `json:"id"`
	ServiceID   string            `json:"serviceId,omitempty"`
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Priority    string            `json:"priority"`
	Location    *geojson.Geometry `json:"location"`
	Address     string            `json:"address,omitempty"`
	IsAnonymous bool              `json:"isAnonymous"`
	CitizenID   string            `json:"citizenId,omitempty"`
	Proofs      []Proof           `json:"proofs"`
	Status      string            `json:"status"`
	Comments    []Comment         `json:"comments"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Longitude returns the first location coordinate.
func (a *Alert) Longitude() float64 {
	if a.Location == nil || len(a.Location.Point) != 2 {
		return 0
	}
	return a.Location.Point[0]
}

// Latitude returns the second location coordinate.
func (a *Alert) Latitude() float64 {
	if a.Location == nil || len(a.Location.Point) != 2 {
		return 0
	}
	return a.Location.Point[1]
}

// CreateAlertRequest carries the JSON body of an alert creation call.
// Coordinates and IsAnonymous are loosely typed: clients send numbers or
// numeric strings for the former and a bool or "true"/"false" for the latter.
type CreateAlertRequest struct {
	ServiceID   string        `json:"serviceId"`
	Category    string        `json:"category"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	Coordinates []interface{} `json:"coordinates"`
	Address     string        `json:"address"`
	IsAnonymous interface{}   `json:"isAnonymous"`
	Proofs      []Proof       `json:"proofs"`
}

// CommentRequest is the body of a comment creation call.
type CommentRequest struct {
	Text string `json:"text"`
}

// StatusUpdateRequest is the body of the service status webhook.
type StatusUpdateRequest struct {
	AlertID   string `json:"alertId"`
	Status    string `json:"status"`
	Comment   string `json:"comment"`
	UpdatedBy string `json:"updatedBy"`
}

// DeleteUploadRequest is the body of a proof file deletion call.
type DeleteUploadRequest struct {
	URL string `json:"url"`
}

// BroadcastMessage wraps payloads sent to websocket listeners.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// AlertEvent is published to the message broker on lifecycle changes.
type AlertEvent struct {
	Event     string    `json:"event"`
	AlertID   string    `json:"alert_id"`
	ServiceID string    `json:"service_id,omitempty"`
	Category  string    `json:"category,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
