package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rollcall/internal/apperr"
	"rollcall/internal/checkin"
	"rollcall/internal/metrics"
	"rollcall/internal/roster"
	"rollcall/internal/session"
)

// StudentReport is one student's attendance totals across a class. MANUAL
// records count toward Present but not OnTime or Late; Absent is derived,
// never stored.
type StudentReport struct {
	StudentID     string `json:"studentId"`
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	TotalSessions int    `json:"totalSessions"`
	Present       int    `json:"present"`
	OnTime        int    `json:"onTime"`
	Late          int    `json:"late"`
	Absent        int    `json:"absent"`
}

// ClassReport is the full per-class roll-up.
type ClassReport struct {
	Class      roster.Class      `json:"class"`
	Sessions   []session.Session `json:"sessions"`
	PerStudent []StudentReport   `json:"perStudent"`
}

// Rosters supplies class, membership, and ownership reads.
type Rosters interface {
	ClassByID(ctx context.Context, id string) (*roster.Class, error)
	ListMembers(ctx context.Context, classID string) ([]roster.Member, error)
	IsMember(ctx context.Context, classID, studentID string) (bool, error)
}

// Sessions lists a class's sessions.
type Sessions interface {
	ListByClass(ctx context.Context, classID string) ([]session.Session, error)
}

// Ledger reads attendance records.
type Ledger interface {
	ListByClass(ctx context.Context, classID string) ([]checkin.Record, error)
	ListByClassAndStudent(ctx context.Context, classID, studentID string) ([]checkin.Record, error)
}

// Cache holds computed reports between check-ins. A nil Cache disables
// caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
}

// Service folds sessions × membership × records into per-student counts. It
// is read-only and deterministic over the stored rows.
type Service struct {
	rosters  Rosters
	sessions Sessions
	ledger   Ledger
	cache    Cache
	cacheTTL time.Duration
	log      *logrus.Entry
}

// NewService creates an aggregator. cache may be nil.
func NewService(rosters Rosters, sessions Sessions, ledger Ledger, cache Cache, cacheTTL time.Duration) *Service {
	return &Service{
		rosters:  rosters,
		sessions: sessions,
		ledger:   ledger,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      logrus.WithField("component", "report"),
	}
}

// CacheKey is the redis key holding a class's cached report. The worker
// deletes it when a new check-in lands.
func CacheKey(classID string) string {
	return "rollcall:report:" + classID
}

// ForClass builds the attendance report for a class the requester owns.
func (s *Service) ForClass(ctx context.Context, classID, requesterID string) (ClassReport, error) {
	cls, err := s.rosters.ClassByID(ctx, classID)
	if err != nil {
		return ClassReport{}, apperr.Internal(err)
	}
	if cls == nil || cls.TeacherID != requesterID {
		return ClassReport{}, apperr.New(apperr.KindNotFound, "class not found")
	}

	if s.cache != nil {
		var cached ClassReport
		hit, err := s.cache.GetJSON(ctx, CacheKey(classID), &cached)
		if err != nil {
			s.log.WithError(err).Warn("report cache read failed")
		} else if hit {
			metrics.ReportCacheHits.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.ReportCacheHits.WithLabelValues("miss").Inc()
	}

	sessions, err := s.sessions.ListByClass(ctx, classID)
	if err != nil {
		return ClassReport{}, apperr.Internal(err)
	}
	members, err := s.rosters.ListMembers(ctx, classID)
	if err != nil {
		return ClassReport{}, apperr.Internal(err)
	}
	records, err := s.ledger.ListByClass(ctx, classID)
	if err != nil {
		return ClassReport{}, apperr.Internal(err)
	}

	rep := fold(*cls, sessions, members, records)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, CacheKey(classID), rep, s.cacheTTL); err != nil {
			s.log.WithError(err).Warn("report cache write failed")
		}
	}
	return rep, nil
}

// fold is the pure aggregation: every session of any status counts toward
// the total, and absence is the left-join gap between sessions and records.
func fold(cls roster.Class, sessions []session.Session, members []roster.Member, records []checkin.Record) ClassReport {
	totalSessions := len(sessions)

	perStudent := make([]StudentReport, 0, len(members))
	index := make(map[string]int, len(members))
	for i, m := range members {
		index[m.StudentID] = i
		perStudent = append(perStudent, StudentReport{
			StudentID:     m.StudentID,
			FullName:      m.FullName,
			Email:         m.Email,
			TotalSessions: totalSessions,
		})
	}

	for _, rec := range records {
		i, ok := index[rec.StudentID]
		if !ok {
			// Record from a student since removed from the class; skip.
			continue
		}
		perStudent[i].Present++
		switch rec.Status {
		case checkin.StatusOnTime:
			perStudent[i].OnTime++
		case checkin.StatusLate:
			perStudent[i].Late++
		}
	}

	for i := range perStudent {
		absent := totalSessions - perStudent[i].Present
		if absent < 0 {
			absent = 0
		}
		perStudent[i].Absent = absent
	}

	return ClassReport{Class: cls, Sessions: sessions, PerStudent: perStudent}
}

// StudentHistory returns a student's own records for a class they belong to.
func (s *Service) StudentHistory(ctx context.Context, classID, studentID string) ([]checkin.Record, error) {
	member, err := s.rosters.IsMember(ctx, classID, studentID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !member {
		return nil, apperr.New(apperr.KindNotAMember, "student is not in this class")
	}
	records, err := s.ledger.ListByClassAndStudent(ctx, classID, studentID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return records, nil
}
