package roster

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"rollcall/internal/apperr"
)

// Store is the persistence surface the roster service needs.
type Store interface {
	CreateClass(ctx context.Context, className, code, teacherID string) (Class, error)
	ClassByCode(ctx context.Context, code string) (*Class, error)
	ClassByID(ctx context.Context, id string) (*Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]Class, error)
	ListJoinedClasses(ctx context.Context, studentID string) ([]JoinedClass, error)
	AddMember(ctx context.Context, classID, studentID string) (Member, error)
	FindMember(ctx context.Context, classID, studentID string) (*Member, error)
	ListMembers(ctx context.Context, classID string) ([]Member, error)
	RemoveMember(ctx context.Context, classID, memberID string) (bool, error)
}

// JoinOutcome is the result of a join-by-code call; AlreadyMember is true
// when the student had joined before.
type JoinOutcome struct {
	Class         Class  `json:"class"`
	Member        Member `json:"member"`
	AlreadyMember bool   `json:"alreadyMember"`
}

// Service manages classes and their membership.
type Service struct {
	store Store
	log   *logrus.Entry
}

// NewService creates a roster service.
func NewService(s Store) *Service {
	return &Service{store: s, log: logrus.WithField("component", "roster")}
}

var whitespace = regexp.MustCompile(`\s+`)

// CreateClass makes a class with a generated join code, retrying a handful of
// times if the code collides.
func (s *Service) CreateClass(ctx context.Context, teacherID, className string) (Class, error) {
	if strings.TrimSpace(className) == "" {
		return Class{}, apperr.New(apperr.KindInvalidState, "class name required")
	}
	for attempt := 0; attempt < 5; attempt++ {
		code, err := NewClassCode()
		if err != nil {
			return Class{}, apperr.Internal(err)
		}
		created, err := s.store.CreateClass(ctx, className, code, teacherID)
		if err == nil {
			s.log.WithFields(logrus.Fields{"class_id": created.ID, "code": created.Code}).Info("class created")
			return created, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return Class{}, apperr.Internal(err)
		}
	}
	return Class{}, apperr.New(apperr.KindConflict, "class code collision, try again")
}

// MyClasses lists the classes a teacher owns.
func (s *Service) MyClasses(ctx context.Context, teacherID string) ([]Class, error) {
	classes, err := s.store.ListClassesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return classes, nil
}

// JoinedClasses lists the classes a student has joined.
func (s *Service) JoinedClasses(ctx context.Context, studentID string) ([]JoinedClass, error) {
	classes, err := s.store.ListJoinedClasses(ctx, studentID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return classes, nil
}

// Join adds a student to a class by its code. Codes are normalized (upper
// case, whitespace stripped) since they are generated upper-case. Joining a
// class twice returns the existing membership instead of failing.
func (s *Service) Join(ctx context.Context, studentID, code string) (JoinOutcome, error) {
	normalized := whitespace.ReplaceAllString(strings.ToUpper(strings.TrimSpace(code)), "")
	if normalized == "" {
		return JoinOutcome{}, apperr.New(apperr.KindInvalidState, "class code required")
	}

	cls, err := s.store.ClassByCode(ctx, normalized)
	if err != nil {
		return JoinOutcome{}, apperr.Internal(err)
	}
	if cls == nil {
		return JoinOutcome{}, apperr.New(apperr.KindNotFound, "no class with code "+normalized)
	}

	if existing, err := s.store.FindMember(ctx, cls.ID, studentID); err != nil {
		return JoinOutcome{}, apperr.Internal(err)
	} else if existing != nil {
		return JoinOutcome{Class: *cls, Member: *existing, AlreadyMember: true}, nil
	}

	member, err := s.store.AddMember(ctx, cls.ID, studentID)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent join; fetch the winner.
			existing, ferr := s.store.FindMember(ctx, cls.ID, studentID)
			if ferr == nil && existing != nil {
				return JoinOutcome{Class: *cls, Member: *existing, AlreadyMember: true}, nil
			}
		}
		return JoinOutcome{}, apperr.Internal(err)
	}
	return JoinOutcome{Class: *cls, Member: member, AlreadyMember: false}, nil
}

// Members lists a class's members for its owner.
func (s *Service) Members(ctx context.Context, classID, requesterID string) ([]Member, error) {
	if err := s.requireOwner(ctx, classID, requesterID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, classID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return members, nil
}

// RemoveMember drops a student from a class the requester owns.
func (s *Service) RemoveMember(ctx context.Context, classID, memberID, requesterID string) error {
	if err := s.requireOwner(ctx, classID, requesterID); err != nil {
		return err
	}
	removed, err := s.store.RemoveMember(ctx, classID, memberID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !removed {
		return apperr.New(apperr.KindNotFound, "member not found")
	}
	return nil
}

func (s *Service) requireOwner(ctx context.Context, classID, requesterID string) error {
	cls, err := s.store.ClassByID(ctx, classID)
	if err != nil {
		return apperr.Internal(err)
	}
	if cls == nil || cls.TeacherID != requesterID {
		return apperr.New(apperr.KindNotFound, "class not found")
	}
	return nil
}
