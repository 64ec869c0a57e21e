package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
)

type fakeStore struct {
	sessions map[string]*Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*Session)}
}

func (f *fakeStore) add(s Session) {
	cp := s
	f.sessions[s.ID] = &cp
}

func (f *fakeStore) Create(_ context.Context, classID, title string, scheduledAt time.Time) (Session, error) {
	s := Session{ID: "s-" + title, ClassID: classID, Title: title, ScheduledAt: scheduledAt, Status: StatusClosed}
	f.add(s)
	return s, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListByClass(_ context.Context, classID string) ([]Session, error) {
	var res []Session
	for _, s := range f.sessions {
		if s.ClassID == classID {
			res = append(res, *s)
		}
	}
	return res, nil
}

func (f *fakeStore) Open(_ context.Context, id, token string, expiresAt time.Time, anchor *LatLng) (*Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	s.Status = StatusOpen
	s.CheckinToken = &token
	s.TokenExpiresAt = &expiresAt
	s.AnchorLat, s.AnchorLng = nil, nil
	if anchor != nil {
		lat, lng := anchor.Lat, anchor.Lng
		s.AnchorLat, s.AnchorLng = &lat, &lng
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) Close(_ context.Context, id string) (*Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	s.Status = StatusClosed
	s.CheckinToken = nil
	s.TokenExpiresAt = nil
	s.AnchorLat, s.AnchorLng = nil, nil
	cp := *s
	return &cp, nil
}

type fakeOwners map[string]string

func (f fakeOwners) ClassOwner(_ context.Context, classID string) (string, error) {
	return f[classID], nil
}

func testService(store *fakeStore, owners fakeOwners, now time.Time) *Service {
	return NewService(store, owners, 15*time.Minute).WithClock(func() time.Time { return now })
}

func TestOpenIssuesTokenAnchoredToOpenTime(t *testing.T) {
	store := newFakeStore()
	scheduled := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.add(Session{ID: "s1", ClassID: "c1", ScheduledAt: scheduled, Status: StatusClosed})

	// Opened well after the scheduled time; expiry must follow the open call.
	openedAt := scheduled.Add(2 * time.Hour)
	svc := testService(store, fakeOwners{"c1": "t1"}, openedAt)

	res, err := svc.Open(context.Background(), "s1", "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusOpen, res.Session.Status)
	require.NotNil(t, res.Session.CheckinToken)
	assert.Equal(t, *res.Session.CheckinToken, res.ScanPayload.CheckinToken)
	assert.Equal(t, "s1", res.ScanPayload.SessionID)
	require.NotNil(t, res.Session.TokenExpiresAt)
	assert.True(t, res.Session.TokenExpiresAt.After(openedAt), "expiry must be after the open call")
	assert.Nil(t, res.Session.AnchorLat)
	assert.Nil(t, res.Session.AnchorLng)
}

func TestReopenRegeneratesToken(t *testing.T) {
	store := newFakeStore()
	store.add(Session{ID: "s1", ClassID: "c1", Status: StatusClosed})
	svc := testService(store, fakeOwners{"c1": "t1"}, time.Now())

	first, err := svc.Open(context.Background(), "s1", "t1", &LatLng{Lat: 10, Lng: 106})
	require.NoError(t, err)
	second, err := svc.Open(context.Background(), "s1", "t1", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ScanPayload.CheckinToken, second.ScanPayload.CheckinToken)
	// Reopening without an anchor turns geofencing off for the new period.
	assert.Nil(t, second.Session.AnchorLat)
}

func TestOpenStoresAnchorVerbatim(t *testing.T) {
	store := newFakeStore()
	store.add(Session{ID: "s1", ClassID: "c1", Status: StatusClosed})
	svc := testService(store, fakeOwners{"c1": "t1"}, time.Now())

	res, err := svc.Open(context.Background(), "s1", "t1", &LatLng{Lat: 10.762622, Lng: 106.660172})
	require.NoError(t, err)
	require.NotNil(t, res.Session.AnchorLat)
	assert.Equal(t, 10.762622, *res.Session.AnchorLat)
	assert.Equal(t, 106.660172, *res.Session.AnchorLng)
}

func TestCloseClearsEphemeralFields(t *testing.T) {
	store := newFakeStore()
	store.add(Session{ID: "s1", ClassID: "c1", Status: StatusClosed})
	svc := testService(store, fakeOwners{"c1": "t1"}, time.Now())

	_, err := svc.Open(context.Background(), "s1", "t1", &LatLng{Lat: 10, Lng: 106})
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Nil(t, closed.CheckinToken)
	assert.Nil(t, closed.TokenExpiresAt)
	assert.Nil(t, closed.AnchorLat)
	assert.Nil(t, closed.AnchorLng)
}

func TestCloseIdempotent(t *testing.T) {
	store := newFakeStore()
	store.add(Session{ID: "s1", ClassID: "c1", Status: StatusClosed})
	svc := testService(store, fakeOwners{"c1": "t1"}, time.Now())

	closed, err := svc.Close(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
}

func TestOpenUnknownSession(t *testing.T) {
	svc := testService(newFakeStore(), fakeOwners{}, time.Now())
	_, err := svc.Open(context.Background(), "nope", "t1", nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestOpenWrongOwner(t *testing.T) {
	store := newFakeStore()
	store.add(Session{ID: "s1", ClassID: "c1", Status: StatusClosed})
	svc := testService(store, fakeOwners{"c1": "t1"}, time.Now())

	_, err := svc.Open(context.Background(), "s1", "intruder", nil)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}
