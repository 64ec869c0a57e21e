package roster

import "time"

// User is a registered teacher or student.
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Class is owned by one teacher and joined by students via its code.
type Class struct {
	ID        string    `json:"id"`
	ClassName string    `json:"className"`
	Code      string    `json:"code"`
	TeacherID string    `json:"teacherId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is one student's membership in a class, joined with user fields for
// display.
type Member struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"classId"`
	StudentID string    `json:"studentId"`
	JoinedAt  time.Time `json:"joinedAt"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
}

// JoinedClass is a class from the student's side, with their join time.
type JoinedClass struct {
	Class
	JoinedAt time.Time `json:"joinedAt"`
}
