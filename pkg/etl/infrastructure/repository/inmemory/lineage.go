package inmemory

import (
	"context"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

func cloneEvent(e *model.LineageEvent) *model.LineageEvent {
	c := *e
	c.Metadata = e.Metadata.Clone()
	c.TransformationDetails = e.TransformationDetails.Clone()
	return &c
}

// AppendEvent records an event. Events are never updated or removed.
func (s *Store) AppendEvent(ctx context.Context, event *model.LineageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, cloneEvent(event))
	return nil
}

// FindEventsByJob returns the job's events in chronological order.
func (s *Store) FindEventsByJob(ctx context.Context, jobID string) ([]*model.LineageEvent, error) {
	return s.findEvents(func(e *model.LineageEvent) bool { return e.JobID == jobID }, false), nil
}

// FindEventsBySource returns the source's events, newest first.
func (s *Store) FindEventsBySource(ctx context.Context, sourceID string) ([]*model.LineageEvent, error) {
	return s.findEvents(func(e *model.LineageEvent) bool { return strEq(e.SourceID, sourceID) }, true), nil
}

// FindEventsByType returns every event of eventType in chronological order.
func (s *Store) FindEventsByType(ctx context.Context, eventType model.EventType) ([]*model.LineageEvent, error) {
	return s.findEvents(func(e *model.LineageEvent) bool { return e.EventType == eventType }, false), nil
}

func (s *Store) findEvents(match func(*model.LineageEvent) bool, desc bool) []*model.LineageEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.LineageEvent, 0)
	for _, e := range s.events {
		if match(e) {
			result = append(result, cloneEvent(e))
		}
	}
	// stable sort keeps append order for events sharing a timestamp
	sortByTime(result, func(e *model.LineageEvent) time.Time { return e.Timestamp }, desc)
	return result
}
