package checkin

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/store"
)

// ErrDuplicate is returned when an insert hits the (session_id, student_id)
// unique constraint. The constraint, not the validator's fast-path lookup, is
// the source of truth for the one-record invariant.
var ErrDuplicate = errors.New("attendance record exists")

// Repository is the attendance ledger: append-only records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, session_id, student_id, check_in_time, lat, lng, photo_ref, status, created_at`

func scanRecord(scan func(...any) error) (Record, error) {
	var rec Record
	err := scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.CheckInTime,
		&rec.Lat, &rec.Lng, &rec.PhotoRef, &rec.Status, &rec.CreatedAt)
	return rec, err
}

// Insert appends a record. Returns ErrDuplicate when the student already has
// one for this session.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CheckInTime.IsZero() {
		rec.CheckInTime = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, check_in_time, lat, lng, photo_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, rec.ID, rec.SessionID, rec.StudentID, rec.CheckInTime, rec.Lat, rec.Lng, rec.PhotoRef, rec.Status)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if store.IsUniqueViolation(err) {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// Find returns the record for (session, student), nil when absent.
func (r *Repository) Find(ctx context.Context, sessionID, studentID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListBySession returns a session's records with student display fields.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.session_id, a.student_id, a.check_in_time, a.lat, a.lng, a.photo_ref, a.status, a.created_at,
		       u.full_name, u.email
		FROM attendance_records a
		JOIN users u ON u.id = a.student_id
		WHERE a.session_id = $1
		ORDER BY a.check_in_time, a.id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SessionRecord
	for rows.Next() {
		var sr SessionRecord
		if err := rows.Scan(&sr.ID, &sr.SessionID, &sr.StudentID, &sr.CheckInTime,
			&sr.Lat, &sr.Lng, &sr.PhotoRef, &sr.Status, &sr.CreatedAt,
			&sr.FullName, &sr.Email); err != nil {
			return nil, err
		}
		res = append(res, sr)
	}
	return res, rows.Err()
}

// ListByClass returns every record across a class's sessions, for the report
// fold.
func (r *Repository) ListByClass(ctx context.Context, classID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixedRecordColumns("a")+`
		FROM attendance_records a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.class_id = $1
		ORDER BY a.check_in_time, a.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ListByClassAndStudent returns one student's records across a class, for
// their own history view.
func (r *Repository) ListByClassAndStudent(ctx context.Context, classID, studentID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixedRecordColumns("a")+`
		FROM attendance_records a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.class_id = $1 AND a.student_id = $2
		ORDER BY a.check_in_time DESC, a.id
	`, classID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func prefixedRecordColumns(alias string) string {
	return alias + ".id, " + alias + ".session_id, " + alias + ".student_id, " +
		alias + ".check_in_time, " + alias + ".lat, " + alias + ".lng, " +
		alias + ".photo_ref, " + alias + ".status, " + alias + ".created_at"
}
