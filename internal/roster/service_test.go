package roster

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
)

type fakeStore struct {
	classes     map[string]Class // by id
	codes       map[string]string
	members     map[string]Member // by classID + "/" + studentID
	failInserts int
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		classes: make(map[string]Class),
		codes:   make(map[string]string),
		members: make(map[string]Member),
	}
}

func (f *fakeStore) CreateClass(_ context.Context, className, code, teacherID string) (Class, error) {
	if f.failInserts > 0 {
		f.failInserts--
		return Class{}, ErrDuplicate
	}
	if _, taken := f.codes[code]; taken {
		return Class{}, ErrDuplicate
	}
	f.nextID++
	cls := Class{ID: fmt.Sprintf("c%03d", f.nextID), ClassName: className, Code: code, TeacherID: teacherID}
	f.classes[cls.ID] = cls
	f.codes[code] = cls.ID
	return cls, nil
}

func (f *fakeStore) ClassByCode(_ context.Context, code string) (*Class, error) {
	id, ok := f.codes[code]
	if !ok {
		return nil, nil
	}
	cls := f.classes[id]
	return &cls, nil
}

func (f *fakeStore) ClassByID(_ context.Context, id string) (*Class, error) {
	cls, ok := f.classes[id]
	if !ok {
		return nil, nil
	}
	return &cls, nil
}

func (f *fakeStore) ListClassesByTeacher(_ context.Context, teacherID string) ([]Class, error) {
	var res []Class
	for _, c := range f.classes {
		if c.TeacherID == teacherID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (f *fakeStore) ListJoinedClasses(_ context.Context, studentID string) ([]JoinedClass, error) {
	var res []JoinedClass
	for _, m := range f.members {
		if m.StudentID == studentID {
			res = append(res, JoinedClass{Class: f.classes[m.ClassID], JoinedAt: m.JoinedAt})
		}
	}
	return res, nil
}

func (f *fakeStore) AddMember(_ context.Context, classID, studentID string) (Member, error) {
	key := classID + "/" + studentID
	if _, ok := f.members[key]; ok {
		return Member{}, ErrDuplicate
	}
	m := Member{ID: "m-" + key, ClassID: classID, StudentID: studentID}
	f.members[key] = m
	return m, nil
}

func (f *fakeStore) FindMember(_ context.Context, classID, studentID string) (*Member, error) {
	m, ok := f.members[classID+"/"+studentID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeStore) ListMembers(_ context.Context, classID string) ([]Member, error) {
	var res []Member
	for _, m := range f.members {
		if m.ClassID == classID {
			res = append(res, m)
		}
	}
	return res, nil
}

func (f *fakeStore) RemoveMember(_ context.Context, classID, memberID string) (bool, error) {
	for key, m := range f.members {
		if m.ID == memberID && m.ClassID == classID {
			delete(f.members, key)
			return true, nil
		}
	}
	return false, nil
}

func TestNewClassCodeShape(t *testing.T) {
	code, err := NewClassCode()
	require.NoError(t, err)
	assert.Len(t, code, codeLength)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected character %q", r)
	}
	assert.NotContains(t, code, "0")
	assert.NotContains(t, code, "O")
	assert.NotContains(t, code, "1")
	assert.NotContains(t, code, "I")
}

func TestCreateClassRetriesOnCodeCollision(t *testing.T) {
	store := newFakeStore()
	store.failInserts = 2
	svc := NewService(store)

	cls, err := svc.CreateClass(context.Background(), "t1", "Databases")
	require.NoError(t, err)
	assert.Equal(t, "Databases", cls.ClassName)
	assert.Len(t, cls.Code, codeLength)
}

func TestCreateClassGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := newFakeStore()
	store.failInserts = 5
	svc := NewService(store)

	_, err := svc.CreateClass(context.Background(), "t1", "Databases")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestJoinNormalizesCode(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	cls, err := svc.CreateClass(context.Background(), "t1", "Databases")
	require.NoError(t, err)

	sloppy := " " + strings.ToLower(cls.Code[:3]) + " " + cls.Code[3:] + " "
	outcome, err := svc.Join(context.Background(), "stu1", sloppy)
	require.NoError(t, err)
	assert.Equal(t, cls.ID, outcome.Class.ID)
	assert.False(t, outcome.AlreadyMember)
}

func TestJoinTwiceReturnsExistingMembership(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	cls, err := svc.CreateClass(context.Background(), "t1", "Databases")
	require.NoError(t, err)

	first, err := svc.Join(context.Background(), "stu1", cls.Code)
	require.NoError(t, err)
	second, err := svc.Join(context.Background(), "stu1", cls.Code)
	require.NoError(t, err)

	assert.True(t, second.AlreadyMember)
	assert.Equal(t, first.Member.ID, second.Member.ID)
}

func TestJoinUnknownCode(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Join(context.Background(), "stu1", "ZZZZZZ")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMembersRequiresOwnership(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	cls, err := svc.CreateClass(context.Background(), "t1", "Databases")
	require.NoError(t, err)

	_, err = svc.Members(context.Background(), cls.ID, "someone-else")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRemoveMember(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	cls, err := svc.CreateClass(context.Background(), "t1", "Databases")
	require.NoError(t, err)
	outcome, err := svc.Join(context.Background(), "stu1", cls.Code)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMember(context.Background(), cls.ID, outcome.Member.ID, "t1"))

	err = svc.RemoveMember(context.Background(), cls.ID, outcome.Member.ID, "t1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
