package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryview/sentryview/internal/data"
)

type memStore struct {
	events map[uuid.UUID]*data.Event
	groups map[uuid.UUID]*data.CorrelationGroup
}

func newMemStore() *memStore {
	return &memStore{
		events: make(map[uuid.UUID]*data.Event),
		groups: make(map[uuid.UUID]*data.CorrelationGroup),
	}
}

func (s *memStore) add(evt *data.Event) *data.Event {
	s.events[evt.ID] = evt
	return evt
}

func (s *memStore) ListWindow(_ context.Context, from, to time.Time) ([]*data.Event, error) {
	var out []*data.Event
	for _, e := range s.events {
		if !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) AssignGroup(_ context.Context, eventID, groupID uuid.UUID) (bool, error) {
	e, ok := s.events[eventID]
	if !ok {
		return false, data.ErrRecordNotFound
	}
	if e.GroupID != nil {
		return false, nil
	}
	e.GroupID = &groupID
	return true, nil
}

func (s *memStore) Insert(_ context.Context, g *data.CorrelationGroup) error {
	s.groups[g.ID] = g
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*data.CorrelationGroup, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	return g, nil
}

func event(cam uuid.UUID, at time.Time) *data.Event {
	return &data.Event{ID: uuid.New(), CameraID: cam, OccurredAt: at}
}

func TestAssignPairsCrossCameraNeighbors(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	camA, camB := uuid.New(), uuid.New()
	first := store.add(event(camA, now))
	second := store.add(event(camB, now.Add(10*time.Second)))

	require.NoError(t, e.Assign(ctx, first))
	assert.Nil(t, first.GroupID, "a lone event opens no group")

	require.NoError(t, e.Assign(ctx, second))
	require.NotNil(t, second.GroupID)
	require.NotNil(t, first.GroupID)
	assert.Equal(t, *first.GroupID, *second.GroupID)

	g := store.groups[*first.GroupID]
	require.NotNil(t, g)
	assert.Equal(t, now, g.FirstEventAt, "group anchored to the earliest member")
}

func TestAssignIgnoresSameCamera(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	cam := uuid.New()
	store.add(event(cam, now))
	second := store.add(event(cam, now.Add(5*time.Second)))

	require.NoError(t, e.Assign(ctx, second))
	assert.Nil(t, second.GroupID)
}

func TestAssignIgnoresOutsideWindow(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	store.add(event(uuid.New(), now))
	late := store.add(event(uuid.New(), now.Add(45*time.Second)))

	require.NoError(t, e.Assign(ctx, late))
	assert.Nil(t, late.GroupID)
}

func TestAssignJoinsExistingGroup(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	first := store.add(event(uuid.New(), now))
	second := store.add(event(uuid.New(), now.Add(10*time.Second)))
	require.NoError(t, e.Assign(ctx, second))
	require.NotNil(t, second.GroupID)

	third := store.add(event(uuid.New(), now.Add(20*time.Second)))
	require.NoError(t, e.Assign(ctx, third))
	require.NotNil(t, third.GroupID)
	assert.Equal(t, *first.GroupID, *third.GroupID)

	assert.Len(t, store.groups, 1, "no second group for the same occurrence")
}

func TestAssignRespectsGroupAnchorWindow(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	store.add(event(uuid.New(), now))
	second := store.add(event(uuid.New(), now.Add(25*time.Second)))
	require.NoError(t, e.Assign(ctx, second))

	// Within 30s of second but 50s past the group anchor: stays out.
	late := store.add(event(uuid.New(), now.Add(50*time.Second)))
	require.NoError(t, e.Assign(ctx, late))
	assert.Nil(t, late.GroupID)
}

func (s *memStore) addGrouped(cam uuid.UUID, at time.Time, groupID uuid.UUID) *data.Event {
	e := s.add(event(cam, at))
	e.GroupID = &groupID
	return e
}

func (s *memStore) addGroup(anchor time.Time) *data.CorrelationGroup {
	g := &data.CorrelationGroup{ID: uuid.New(), FirstEventAt: anchor}
	s.groups[g.ID] = g
	return g
}

func TestAssignJoinsLaterGroupWhenEarliestAgedOut(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	// Aged-out group: anchored 40s back, member still inside the neighbor
	// window at 25s back.
	stale := store.addGroup(now.Add(-40 * time.Second))
	store.addGrouped(uuid.New(), now.Add(-25*time.Second), stale.ID)

	// Open group: anchored 20s back, member 10s back.
	open := store.addGroup(now.Add(-20 * time.Second))
	store.addGrouped(uuid.New(), now.Add(-10*time.Second), open.ID)

	evt := store.add(event(uuid.New(), now))
	require.NoError(t, e.Assign(ctx, evt))
	require.NotNil(t, evt.GroupID)
	assert.Equal(t, open.ID, *evt.GroupID)
}

func TestAssignPrefersOpenGroupOverCreating(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	stale := store.addGroup(now.Add(-40 * time.Second))
	store.addGrouped(uuid.New(), now.Add(-25*time.Second), stale.ID)

	open := store.addGroup(now.Add(-20 * time.Second))
	store.addGrouped(uuid.New(), now.Add(-10*time.Second), open.ID)

	// An ungrouped neighbor must not tempt a third group into existence
	// while a joinable one is open.
	loner := store.add(event(uuid.New(), now.Add(-5*time.Second)))

	evt := store.add(event(uuid.New(), now))
	require.NoError(t, e.Assign(ctx, evt))
	require.NotNil(t, evt.GroupID)
	assert.Equal(t, open.ID, *evt.GroupID)
	assert.Len(t, store.groups, 2, "no new group while an open one qualifies")
	assert.Nil(t, loner.GroupID)
}

func TestAssignPicksEarliestQualifyingGroup(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	older := store.addGroup(now.Add(-20 * time.Second))
	store.addGrouped(uuid.New(), now.Add(-15*time.Second), older.ID)

	newer := store.addGroup(now.Add(-5 * time.Second))
	store.addGrouped(uuid.New(), now.Add(-5*time.Second), newer.ID)

	evt := store.add(event(uuid.New(), now))
	require.NoError(t, e.Assign(ctx, evt))
	require.NotNil(t, evt.GroupID)
	assert.Equal(t, older.ID, *evt.GroupID)
}

func TestAssignIdempotent(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	store.add(event(uuid.New(), now))
	evt := store.add(event(uuid.New(), now.Add(5*time.Second)))
	require.NoError(t, e.Assign(ctx, evt))
	require.NotNil(t, evt.GroupID)
	want := *evt.GroupID

	require.NoError(t, e.Assign(ctx, evt))
	assert.Equal(t, want, *evt.GroupID)
	assert.Len(t, store.groups, 1)
}

func TestAssignOutOfOrderArrival(t *testing.T) {
	store := newMemStore()
	e := New(store, store, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	// The later event is processed first.
	later := store.add(event(uuid.New(), now.Add(10*time.Second)))
	require.NoError(t, e.Assign(ctx, later))

	earlier := store.add(event(uuid.New(), now))
	require.NoError(t, e.Assign(ctx, earlier))

	require.NotNil(t, earlier.GroupID)
	require.NotNil(t, later.GroupID)
	assert.Equal(t, *later.GroupID, *earlier.GroupID)

	g := store.groups[*earlier.GroupID]
	assert.Equal(t, now, g.FirstEventAt, "anchor is the earliest timestamp even out of order")
}
