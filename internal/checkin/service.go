package checkin

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"rollcall/internal/apperr"
	"rollcall/internal/geo"
	"rollcall/internal/metrics"
	"rollcall/internal/session"
)

// maxDistanceMeters bounds how far from the anchor a check-in is accepted
// when the session was opened with geofencing.
const maxDistanceMeters = 50.0

// SessionSource reads current session state.
type SessionSource interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Membership answers class membership and ownership questions.
type Membership interface {
	IsMember(ctx context.Context, classID, studentID string) (bool, error)
	ClassOwner(ctx context.Context, classID string) (string, error)
}

// Ledger is the attendance record store.
type Ledger interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Find(ctx context.Context, sessionID, studentID string) (*Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]SessionRecord, error)
}

// CheckInRequest is a student's check-in attempt. Token must reproduce the
// scan payload's token verbatim.
type CheckInRequest struct {
	SessionID string
	Token     string
	StudentID string
	Lat       float64
	Lng       float64
	PhotoRef  *string
}

// Service validates check-in attempts and writes the ledger. It is a
// stateless request handler; the unique constraint on the ledger is what
// makes concurrent duplicates safe.
type Service struct {
	sessions     SessionSource
	roster       Membership
	ledger       Ledger
	onTimeWindow time.Duration
	now          func() time.Time
	log          *logrus.Entry
}

// NewService creates a validator. onTimeMinutes is the grace window after a
// session's scheduled time during which a check-in counts as ON_TIME.
func NewService(sessions SessionSource, roster Membership, ledger Ledger, onTimeMinutes int) *Service {
	if onTimeMinutes <= 0 {
		onTimeMinutes = 15
	}
	return &Service{
		sessions:     sessions,
		roster:       roster,
		ledger:       ledger,
		onTimeWindow: time.Duration(onTimeMinutes) * time.Minute,
		now:          time.Now,
		log:          logrus.WithField("component", "checkin"),
	}
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CheckIn runs the ordered admission checks and, on success, appends exactly
// one attendance record. The first failing check decides the error; a
// rejected attempt mutates nothing.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (Record, error) {
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return Record{}, apperr.Internal(err)
	}
	if sess == nil {
		return Record{}, s.reject(apperr.New(apperr.KindNotFound, "session not found"))
	}

	if sess.Status != session.StatusOpen {
		return Record{}, s.reject(apperr.New(apperr.KindInvalidState, "session not open"))
	}

	if sess.CheckinToken == nil || *sess.CheckinToken != req.Token {
		return Record{}, s.reject(apperr.New(apperr.KindInvalidToken, "invalid check-in token"))
	}

	now := s.now()
	if sess.TokenExpiresAt != nil && now.After(*sess.TokenExpiresAt) {
		return Record{}, s.reject(apperr.New(apperr.KindTokenExpired, "check-in token expired, ask the teacher to reopen"))
	}

	if sess.AnchorLat != nil && sess.AnchorLng != nil {
		d := geo.DistanceMeters(*sess.AnchorLat, *sess.AnchorLng, req.Lat, req.Lng)
		if d > maxDistanceMeters {
			return Record{}, s.reject(apperr.New(apperr.KindTooFar, "too far from the class location").
				WithDetails(TooFarDetails{
					DistanceMeters:    int64(math.Round(d)),
					MaxDistanceMeters: int64(maxDistanceMeters),
				}))
		}
	}

	member, err := s.roster.IsMember(ctx, sess.ClassID, req.StudentID)
	if err != nil {
		return Record{}, apperr.Internal(err)
	}
	if !member {
		return Record{}, s.reject(apperr.New(apperr.KindNotAMember, "student is not in this class"))
	}

	// Fast path; the insert below is the real guard.
	existing, err := s.ledger.Find(ctx, req.SessionID, req.StudentID)
	if err != nil {
		return Record{}, apperr.Internal(err)
	}
	if existing != nil {
		return Record{}, s.reject(apperr.New(apperr.KindDuplicateCheckIn, "already checked in"))
	}

	status := StatusOnTime
	if now.After(sess.ScheduledAt.Add(s.onTimeWindow)) {
		status = StatusLate
	}

	rec, err := s.ledger.Insert(ctx, Record{
		SessionID:   req.SessionID,
		StudentID:   req.StudentID,
		CheckInTime: now,
		Lat:         &req.Lat,
		Lng:         &req.Lng,
		PhotoRef:    req.PhotoRef,
		Status:      status,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race past the fast path; same outcome as the fast path.
			return Record{}, s.reject(apperr.New(apperr.KindDuplicateCheckIn, "already checked in"))
		}
		return Record{}, apperr.Internal(err)
	}

	metrics.CheckinsAccepted.WithLabelValues(string(status)).Inc()
	s.log.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"student_id": req.StudentID,
		"status":     status,
	}).Info("check-in accepted")
	return rec, nil
}

// ManualCheckIn lets the class owner record attendance directly, skipping
// token, expiry, and geofence checks. Idempotent: an existing record comes
// back unchanged with alreadyCheckedIn set.
func (s *Service) ManualCheckIn(ctx context.Context, sessionID, requesterID, studentID string, note string) (Record, bool, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Record{}, false, apperr.Internal(err)
	}
	if sess == nil {
		return Record{}, false, apperr.New(apperr.KindNotFound, "session not found")
	}

	owner, err := s.roster.ClassOwner(ctx, sess.ClassID)
	if err != nil {
		return Record{}, false, apperr.Internal(err)
	}
	if owner == "" {
		return Record{}, false, apperr.New(apperr.KindNotFound, "class not found")
	}
	if owner != requesterID {
		return Record{}, false, apperr.New(apperr.KindForbidden, "not the class owner")
	}

	member, err := s.roster.IsMember(ctx, sess.ClassID, studentID)
	if err != nil {
		return Record{}, false, apperr.Internal(err)
	}
	if !member {
		return Record{}, false, apperr.New(apperr.KindNotAMember, "student is not in this class")
	}

	existing, err := s.ledger.Find(ctx, sessionID, studentID)
	if err != nil {
		return Record{}, false, apperr.Internal(err)
	}
	if existing != nil {
		return *existing, true, nil
	}

	rec, err := s.ledger.Insert(ctx, Record{
		SessionID:   sessionID,
		StudentID:   studentID,
		CheckInTime: s.now(),
		Status:      StatusManual,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			if winner, ferr := s.ledger.Find(ctx, sessionID, studentID); ferr == nil && winner != nil {
				return *winner, true, nil
			}
		}
		return Record{}, false, apperr.Internal(err)
	}

	metrics.CheckinsAccepted.WithLabelValues(string(StatusManual)).Inc()
	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"student_id": studentID,
		"by":         requesterID,
		"note":       note,
	}).Info("manual check-in recorded")
	return rec, false, nil
}

// SessionAttendance returns a session's records for the class owner.
func (s *Service) SessionAttendance(ctx context.Context, sessionID, requesterID string) ([]SessionRecord, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if sess == nil {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	owner, err := s.roster.ClassOwner(ctx, sess.ClassID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if owner == "" || owner != requesterID {
		return nil, apperr.New(apperr.KindForbidden, "not the class owner")
	}
	rows, err := s.ledger.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}

func (s *Service) reject(err *apperr.Error) error {
	metrics.CheckinsRejected.WithLabelValues(string(err.Kind)).Inc()
	return err
}
