package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, class_id, title, scheduled_at, status, checkin_token, token_expires_at, anchor_lat, anchor_lng, created_at`

func scanSession(scan func(...any) error) (Session, error) {
	var s Session
	err := scan(&s.ID, &s.ClassID, &s.Title, &s.ScheduledAt, &s.Status,
		&s.CheckinToken, &s.TokenExpiresAt, &s.AnchorLat, &s.AnchorLng, &s.CreatedAt)
	return s, err
}

// Create inserts a session; new sessions are born CLOSED with no token.
func (r *Repository) Create(ctx context.Context, classID, title string, scheduledAt time.Time) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, class_id, title, scheduled_at, status)
		VALUES ($1, $2, $3, $4, 'CLOSED')
		RETURNING `+sessionColumns+`
	`, uuid.NewString(), classID, title, scheduledAt)
	return scanSession(row.Scan)
}

// Get returns a session by id, nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByClass returns a class's sessions, newest scheduled first.
func (r *Repository) ListByClass(ctx context.Context, classID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE class_id = $1
		ORDER BY scheduled_at DESC, id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Open flips a session to OPEN with a fresh token, expiry, and anchor in one
// conditional update, so concurrent open/close calls settle on the last
// writer's token. Returns the updated row, nil when the session is gone.
func (r *Repository) Open(ctx context.Context, id, token string, expiresAt time.Time, anchor *LatLng) (*Session, error) {
	var lat, lng *float64
	if anchor != nil {
		lat, lng = &anchor.Lat, &anchor.Lng
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET status = 'OPEN', checkin_token = $2, token_expires_at = $3, anchor_lat = $4, anchor_lng = $5
		WHERE id = $1
		RETURNING `+sessionColumns+`
	`, id, token, expiresAt, lat, lng)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Close flips a session to CLOSED and clears all ephemeral fields. Closing an
// already-closed session is the same update and a no-op success.
func (r *Repository) Close(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET status = 'CLOSED', checkin_token = NULL, token_expires_at = NULL, anchor_lat = NULL, anchor_lng = NULL
		WHERE id = $1
		RETURNING `+sessionColumns+`
	`, id)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
