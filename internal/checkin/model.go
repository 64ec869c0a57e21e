package checkin

import "time"

// RecordStatus classifies a stored attendance record. ABSENT is never
// stored; it is the absence of a record, derived at report time.
type RecordStatus string

const (
	StatusOnTime RecordStatus = "ON_TIME"
	StatusLate   RecordStatus = "LATE"
	StatusManual RecordStatus = "MANUAL"
)

// Record is one student's attendance outcome for one session. At most one
// exists per (session, student), enforced by the ledger's unique constraint.
type Record struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"sessionId"`
	StudentID   string       `json:"studentId"`
	CheckInTime time.Time    `json:"checkInTime"`
	Lat         *float64     `json:"lat,omitempty"`
	Lng         *float64     `json:"lng,omitempty"`
	PhotoRef    *string      `json:"photoRef,omitempty"`
	Status      RecordStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// SessionRecord is a record joined with student display fields, for the
// teacher's per-session view.
type SessionRecord struct {
	Record
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// TooFarDetails is the structured payload attached to a geofence rejection.
type TooFarDetails struct {
	DistanceMeters    int64 `json:"distanceMeters"`
	MaxDistanceMeters int64 `json:"maxDistanceMeters"`
}
