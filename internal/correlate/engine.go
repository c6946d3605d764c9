package correlate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
)

type eventStore interface {
	ListWindow(ctx context.Context, from, to time.Time) ([]*data.Event, error)
	AssignGroup(ctx context.Context, eventID, groupID uuid.UUID) (bool, error)
}

type groupStore interface {
	Insert(ctx context.Context, g *data.CorrelationGroup) error
	GetByID(ctx context.Context, id uuid.UUID) (*data.CorrelationGroup, error)
}

// Engine links events from different cameras whose timestamps fall within a
// configurable window, treating them as one physical occurrence seen from
// multiple angles.
type Engine struct {
	window time.Duration
	events eventStore
	groups groupStore

	// mu serializes group assignment so two near-simultaneous events
	// cannot each open a fresh group for the same occurrence.
	mu sync.Mutex
}

func New(events eventStore, groups groupStore, window time.Duration) *Engine {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Engine{window: window, events: events, groups: groups}
}

// Assign places evt into a correlation group when a neighbor from another
// camera exists within the window. Already-grouped events are left alone.
func (e *Engine) Assign(ctx context.Context, evt *data.Event) error {
	if evt.GroupID != nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	neighbors, err := e.events.ListWindow(ctx, evt.OccurredAt.Add(-e.window), evt.OccurredAt.Add(e.window))
	if err != nil {
		return err
	}

	// Prefer the earliest-anchored existing group evt still fits into.
	if gid := e.earliestGroup(ctx, evt, neighbors); gid != nil {
		return e.join(ctx, evt, *gid)
	}

	partner := earliestUngroupedNeighbor(evt, neighbors)
	if partner == nil {
		return nil
	}

	anchor := evt.OccurredAt
	if partner.OccurredAt.Before(anchor) {
		anchor = partner.OccurredAt
	}
	group := &data.CorrelationGroup{ID: uuid.New(), FirstEventAt: anchor}
	if err := e.groups.Insert(ctx, group); err != nil {
		return err
	}
	if _, err := e.events.AssignGroup(ctx, partner.ID, group.ID); err != nil {
		return err
	}
	return e.join(ctx, evt, group.ID)
}

func (e *Engine) join(ctx context.Context, evt *data.Event, groupID uuid.UUID) error {
	assigned, err := e.events.AssignGroup(ctx, evt.ID, groupID)
	if err != nil {
		return err
	}
	if assigned {
		evt.GroupID = &groupID
	}
	return nil
}

// earliestGroup resolves the groups of all grouped neighbors from other
// cameras and returns the earliest-anchored one whose anchor is still within
// the window of evt. A neighbor whose group has aged out does not hide a
// later group that still qualifies.
func (e *Engine) earliestGroup(ctx context.Context, evt *data.Event, neighbors []*data.Event) *uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var best *data.CorrelationGroup
	for _, n := range neighbors {
		if n.ID == evt.ID || n.CameraID == evt.CameraID || n.GroupID == nil || seen[*n.GroupID] {
			continue
		}
		seen[*n.GroupID] = true

		group, err := e.groups.GetByID(ctx, *n.GroupID)
		if err != nil {
			if !errors.Is(err, data.ErrRecordNotFound) {
				log.Printf("[Correlate] group %s lookup: %v", *n.GroupID, err)
			}
			continue
		}
		delta := evt.OccurredAt.Sub(group.FirstEventAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > e.window {
			continue
		}
		if best == nil || group.FirstEventAt.Before(best.FirstEventAt) {
			best = group
		}
	}
	if best == nil {
		return nil
	}
	return &best.ID
}

func earliestUngroupedNeighbor(evt *data.Event, neighbors []*data.Event) *data.Event {
	var best *data.Event
	for _, n := range neighbors {
		if n.ID == evt.ID || n.CameraID == evt.CameraID || n.GroupID != nil {
			continue
		}
		if best == nil || n.OccurredAt.Before(best.OccurredAt) {
			best = n
		}
	}
	return best
}
