package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rollcall/internal/apperr"
	"rollcall/internal/metrics"
)

// Store is the session persistence the service needs.
type Store interface {
	Create(ctx context.Context, classID, title string, scheduledAt time.Time) (Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	ListByClass(ctx context.Context, classID string) ([]Session, error)
	Open(ctx context.Context, id, token string, expiresAt time.Time, anchor *LatLng) (*Session, error)
	Close(ctx context.Context, id string) (*Session, error)
}

// OwnerLookup resolves who owns a class. Empty string means the class does
// not exist.
type OwnerLookup interface {
	ClassOwner(ctx context.Context, classID string) (string, error)
}

// Service drives the session lifecycle: CLOSED --open--> OPEN --close--> CLOSED,
// with self-loops on both transitions. Reopening regenerates the token.
type Service struct {
	store    Store
	roster   OwnerLookup
	tokenTTL time.Duration
	now      func() time.Time
	log      *logrus.Entry
}

// NewService creates a lifecycle manager.
func NewService(store Store, roster OwnerLookup, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &Service{
		store:    store,
		roster:   roster,
		tokenTTL: tokenTTL,
		now:      time.Now,
		log:      logrus.WithField("component", "session"),
	}
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create adds a session to a class the requester owns. New sessions are CLOSED.
func (s *Service) Create(ctx context.Context, classID, requesterID, title string, scheduledAt time.Time) (Session, error) {
	if err := s.requireOwner(ctx, classID, requesterID, apperr.KindNotFound); err != nil {
		return Session{}, err
	}
	created, err := s.store.Create(ctx, classID, title, scheduledAt)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	return created, nil
}

// List returns a class's sessions for its owner, newest first.
func (s *Service) List(ctx context.Context, classID, requesterID string) ([]Session, error) {
	if err := s.requireOwner(ctx, classID, requesterID, apperr.KindNotFound); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListByClass(ctx, classID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return sessions, nil
}

// Open issues a fresh check-in token and flips the session to OPEN. The
// expiry anchors to the open call's wall clock, never to scheduledAt, so a
// late open or a reopen always yields a usable token. A supplied anchor
// enables geofencing for this open period; omitting it disables it.
func (s *Service) Open(ctx context.Context, sessionID, requesterID string, anchor *LatLng) (OpenResult, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return OpenResult{}, apperr.Internal(err)
	}
	if sess == nil {
		return OpenResult{}, apperr.New(apperr.KindNotFound, "session not found")
	}
	if err := s.requireOwner(ctx, sess.ClassID, requesterID, apperr.KindForbidden); err != nil {
		return OpenResult{}, err
	}

	token, err := NewCheckinToken()
	if err != nil {
		return OpenResult{}, apperr.Internal(err)
	}
	expiresAt := s.now().Add(s.tokenTTL)

	updated, err := s.store.Open(ctx, sessionID, token, expiresAt, anchor)
	if err != nil {
		return OpenResult{}, apperr.Internal(err)
	}
	if updated == nil {
		return OpenResult{}, apperr.New(apperr.KindNotFound, "session not found")
	}

	metrics.SessionOpens.Inc()
	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"class_id":   updated.ClassID,
		"expires_at": expiresAt,
		"geofenced":  anchor != nil,
	}).Info("session opened")

	return OpenResult{
		Session:     *updated,
		ScanPayload: ScanPayload{SessionID: updated.ID, CheckinToken: token},
	}, nil
}

// Close retires the token and flips the session to CLOSED. Closing an
// already-closed session succeeds without change.
func (s *Service) Close(ctx context.Context, sessionID, requesterID string) (Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if sess == nil {
		return Session{}, apperr.New(apperr.KindNotFound, "session not found")
	}
	if err := s.requireOwner(ctx, sess.ClassID, requesterID, apperr.KindForbidden); err != nil {
		return Session{}, err
	}

	updated, err := s.store.Close(ctx, sessionID)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if updated == nil {
		return Session{}, apperr.New(apperr.KindNotFound, "session not found")
	}

	metrics.SessionCloses.Inc()
	s.log.WithField("session_id", sessionID).Info("session closed")
	return *updated, nil
}

func (s *Service) requireOwner(ctx context.Context, classID, requesterID string, missingKind apperr.Kind) error {
	owner, err := s.roster.ClassOwner(ctx, classID)
	if err != nil {
		return apperr.Internal(err)
	}
	if owner == "" {
		return apperr.New(missingKind, "class not found")
	}
	if owner != requesterID {
		if missingKind == apperr.KindNotFound {
			// Listing endpoints hide other teachers' classes entirely.
			return apperr.New(apperr.KindNotFound, "class not found")
		}
		return apperr.New(apperr.KindForbidden, "not the class owner")
	}
	return nil
}
