package roster

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"rollcall/internal/store"
)

// ErrDuplicate is returned when an insert loses to an existing row (class
// code or membership uniqueness).
var ErrDuplicate = errors.New("duplicate row")

// Repository persists users, classes, and memberships in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, fullName, email, role string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, full_name, email, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, full_name, email, role, created_at
	`, uuid.NewString(), fullName, email, role)
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Role, &u.CreatedAt)
	return u, err
}

// UserByEmail returns a user, nil when absent.
func (r *Repository) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, role, created_at FROM users WHERE email = $1
	`, email)
	var u User
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CreateClass inserts a class with the given code.
func (r *Repository) CreateClass(ctx context.Context, className, code, teacherID string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, class_name, code, teacher_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, class_name, code, teacher_id, created_at
	`, uuid.NewString(), className, code, teacherID)
	var c Class
	if err := row.Scan(&c.ID, &c.ClassName, &c.Code, &c.TeacherID, &c.CreatedAt); err != nil {
		if store.IsUniqueViolation(err) {
			return Class{}, ErrDuplicate
		}
		return Class{}, err
	}
	return c, nil
}

// ClassByCode returns a class by join code, nil when absent.
func (r *Repository) ClassByCode(ctx context.Context, code string) (*Class, error) {
	return r.classWhere(ctx, `code = $1`, code)
}

// ClassByID returns a class, nil when absent.
func (r *Repository) ClassByID(ctx context.Context, id string) (*Class, error) {
	return r.classWhere(ctx, `id = $1`, id)
}

func (r *Repository) classWhere(ctx context.Context, where string, arg any) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_name, code, teacher_id, created_at FROM classes WHERE `+where, arg)
	var c Class
	if err := row.Scan(&c.ID, &c.ClassName, &c.Code, &c.TeacherID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ClassOwner returns the owning teacher's id, empty when the class is gone.
func (r *Repository) ClassOwner(ctx context.Context, classID string) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT teacher_id FROM classes WHERE id = $1`, classID)
	var owner string
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return owner, nil
}

// ListClassesByTeacher returns a teacher's classes, newest first.
func (r *Repository) ListClassesByTeacher(ctx context.Context, teacherID string) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_name, code, teacher_id, created_at FROM classes
		WHERE teacher_id = $1
		ORDER BY created_at DESC, id
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.ClassName, &c.Code, &c.TeacherID, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListJoinedClasses returns the classes a student belongs to.
func (r *Repository) ListJoinedClasses(ctx context.Context, studentID string) ([]JoinedClass, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.class_name, c.code, c.teacher_id, c.created_at, m.joined_at
		FROM class_members m
		JOIN classes c ON c.id = m.class_id
		WHERE m.student_id = $1
		ORDER BY m.joined_at DESC, c.id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []JoinedClass
	for rows.Next() {
		var jc JoinedClass
		if err := rows.Scan(&jc.ID, &jc.ClassName, &jc.Code, &jc.TeacherID, &jc.CreatedAt, &jc.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, jc)
	}
	return res, rows.Err()
}

// AddMember inserts a membership row.
func (r *Repository) AddMember(ctx context.Context, classID, studentID string) (Member, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO class_members (id, class_id, student_id)
		VALUES ($1, $2, $3)
		RETURNING id, class_id, student_id, joined_at
	`, uuid.NewString(), classID, studentID)
	var m Member
	if err := row.Scan(&m.ID, &m.ClassID, &m.StudentID, &m.JoinedAt); err != nil {
		if store.IsUniqueViolation(err) {
			return Member{}, ErrDuplicate
		}
		return Member{}, err
	}
	return m, nil
}

// FindMember returns a membership row, nil when absent.
func (r *Repository) FindMember(ctx context.Context, classID, studentID string) (*Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, student_id, joined_at FROM class_members
		WHERE class_id = $1 AND student_id = $2
	`, classID, studentID)
	var m Member
	if err := row.Scan(&m.ID, &m.ClassID, &m.StudentID, &m.JoinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// IsMember reports whether the student belongs to the class.
func (r *Repository) IsMember(ctx context.Context, classID, studentID string) (bool, error) {
	m, err := r.FindMember(ctx, classID, studentID)
	return m != nil, err
}

// ListMembers returns a class's members joined with user display fields, in
// join order.
func (r *Repository) ListMembers(ctx context.Context, classID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.class_id, m.student_id, m.joined_at, u.full_name, u.email
		FROM class_members m
		JOIN users u ON u.id = m.student_id
		WHERE m.class_id = $1
		ORDER BY m.joined_at, m.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.ClassID, &m.StudentID, &m.JoinedAt, &m.FullName, &m.Email); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// RemoveMember deletes a membership row by id, scoped to the class.
func (r *Repository) RemoveMember(ctx context.Context, classID, memberID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM class_members WHERE id = $1 AND class_id = $2
	`, memberID, classID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
