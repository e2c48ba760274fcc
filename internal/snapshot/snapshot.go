// Package snapshot holds the latest successfully scraped Fields per source.
//
// The refresher is the only writer. Any number of HTTP handlers read
// concurrently and always receive copies.
package snapshot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrNotPopulated  = errors.New("source not yet available")
	ErrNoData        = errors.New("no data available")
)

// LookupError reports which source a failed Get was asked about.
type LookupError struct {
	ID  string
	Err error
}

func (e *LookupError) Error() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }

func (e *LookupError) Unwrap() error { return e.Err }

// SourceStatus describes the refresh history of one source.
type SourceStatus struct {
	ID                  string          `json:"id"`
	Populated           bool            `json:"populated"`
	Fields              *fetcher.Fields `json:"fields,omitempty"`
	LastAttempt         time.Time       `json:"last_attempt,omitzero"`
	LastSuccess         time.Time       `json:"last_success,omitzero"`
	LastError           string          `json:"last_error,omitempty"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
}

type entry struct {
	fields      fetcher.Fields
	populated   bool
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
	failures    int
}

type Store struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	now     func() time.Time
}

// New creates an empty store that knows about the given source IDs.
// Duplicate IDs are registered once.
func New(ids ...string) *Store {
	s := &Store{
		entries: make(map[string]*entry, len(ids)),
		now:     time.Now,
	}
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			continue
		}
		s.order = append(s.order, id)
		s.entries[id] = &entry{}
	}
	return s
}

// Put publishes fields for a known source. Unknown IDs are rejected.
func (s *Store) Put(id string, fields fetcher.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return &LookupError{ID: id, Err: ErrUnknownSource}
	}
	now := s.now()
	e.fields = fields
	e.populated = true
	e.lastAttempt = now
	e.lastSuccess = now
	e.lastErr = nil
	e.failures = 0
	return nil
}

// RecordFailure notes a failed scrape. Previously published fields are kept.
func (s *Store) RecordFailure(id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return &LookupError{ID: id, Err: ErrUnknownSource}
	}
	e.lastAttempt = s.now()
	e.lastErr = cause
	e.failures++
	return nil
}

// Get returns the latest fields for id.
func (s *Store) Get(id string) (fetcher.Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return fetcher.Fields{}, &LookupError{ID: id, Err: ErrUnknownSource}
	}
	if !e.populated {
		return fetcher.Fields{}, &LookupError{ID: id, Err: ErrNotPopulated}
	}
	return e.fields, nil
}

// All returns every populated source, or ErrNoData if none has succeeded yet.
func (s *Store) All() (map[string]fetcher.Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]fetcher.Fields, len(s.entries))
	for id, e := range s.entries {
		if e.populated {
			out[id] = e.fields
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// Status returns diagnostics for every registered source in registration order.
func (s *Store) Status() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SourceStatus, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		st := SourceStatus{
			ID:                  id,
			Populated:           e.populated,
			LastAttempt:         e.lastAttempt,
			LastSuccess:         e.lastSuccess,
			ConsecutiveFailures: e.failures,
		}
		if e.populated {
			f := e.fields
			st.Fields = &f
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}
