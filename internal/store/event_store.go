// Package store holds the window of events a client last fetched.
package store

import (
	"sync"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
)

// EventStore is an in-memory set of events keyed by id. It keeps insertion
// order and is safe for concurrent use. There is no eviction: ReplaceAll swaps
// the whole set.
type EventStore struct {
	mu     sync.RWMutex
	order  []string
	events map[string]application.Event
}

// NewEventStore returns an empty store.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]application.Event)}
}

// ReplaceAll atomically swaps the held set for events. Later duplicates of an
// id replace earlier ones in place.
func (s *EventStore) ReplaceAll(events []application.Event) {
	order := make([]string, 0, len(events))
	byID := make(map[string]application.Event, len(events))
	for _, e := range events {
		if _, exists := byID[e.ID]; !exists {
			order = append(order, e.ID)
		}
		byID[e.ID] = e
	}

	s.mu.Lock()
	s.order = order
	s.events = byID
	s.mu.Unlock()
}

// Upsert inserts event or replaces the entry with the same id, keeping its position.
func (s *EventStore) Upsert(event application.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events == nil {
		s.events = make(map[string]application.Event)
	}
	if _, exists := s.events[event.ID]; !exists {
		s.order = append(s.order, event.ID)
	}
	s.events[event.ID] = event
}

// Remove drops the event with id. It reports whether an entry was removed.
func (s *EventStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[id]; !exists {
		return false
	}
	delete(s.events, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the event with id.
func (s *EventStore) Get(id string) (application.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	return e, ok
}

// ForDate returns the events whose [StartDate, EndDate] interval includes d,
// in insertion order.
func (s *EventStore) ForDate(d calendar.Date) []application.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []application.Event
	for _, id := range s.order {
		e := s.events[id]
		if e.OccursOn(d) {
			out = append(out, e)
		}
	}
	return out
}

// All returns every held event in insertion order.
func (s *EventStore) All() []application.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]application.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id])
	}
	return out
}

// Len returns the number of held events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
