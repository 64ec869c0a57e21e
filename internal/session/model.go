package session

import "time"

// Status of a session. A session accepts check-ins only while OPEN and while
// its token is unexpired.
type Status string

const (
	StatusClosed Status = "CLOSED"
	StatusOpen   Status = "OPEN"
)

// Session is one scheduled class meeting.
//
// The ephemeral fields (token, expiry, anchor) are only set while the session
// is OPEN; closing clears all of them.
type Session struct {
	ID             string     `json:"id"`
	ClassID        string     `json:"classId"`
	Title          string     `json:"title"`
	ScheduledAt    time.Time  `json:"scheduledAt"`
	Status         Status     `json:"status"`
	CheckinToken   *string    `json:"checkinToken,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	AnchorLat      *float64   `json:"anchorLat,omitempty"`
	AnchorLng      *float64   `json:"anchorLng,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// LatLng is a geographic point in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ScanPayload is the wire contract embedded in the QR artifact. The student
// check-in call must reproduce the token verbatim.
type ScanPayload struct {
	SessionID    string `json:"sessionId"`
	CheckinToken string `json:"checkinToken"`
}

// OpenResult is the teacher-facing projection returned when a session opens.
type OpenResult struct {
	Session     Session     `json:"session"`
	ScanPayload ScanPayload `json:"scanPayload"`
}
