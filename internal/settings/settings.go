// Package settings holds the user-adjustable cache lifetime and item limit
// and notifies observers when they change.
package settings

import (
	"fmt"
	"sync"
	"time"

	"github.com/wesm/repo-pulse/internal/models"
)

const (
	DefaultCacheTTLMinutes = 30
	MinCacheTTLMinutes     = 1
	MaxCacheTTLMinutes     = 1440
	MinItemLimit           = 1
	MaxItemLimit           = 10000
)

// Persister saves and loads settings. *db.DB satisfies it.
type Persister interface {
	SaveCacheTTLMinutes(minutes int) error
	LoadCacheTTLMinutes() (minutes int, ok bool, err error)
	SaveItemLimit(limit *int) error
	LoadItemLimit() (*int, error)
}

// Store is the process-wide settings store
type Store struct {
	persist Persister

	mu       sync.Mutex
	ttl      int
	limit    *int
	nextID   int
	ttlObs   map[int]func(time.Duration)
	limitObs map[int]func(*int)
}

// New creates a store with default values. persist may be nil.
func New(persist Persister) *Store {
	return &Store{
		persist:  persist,
		ttl:      DefaultCacheTTLMinutes,
		ttlObs:   make(map[int]func(time.Duration)),
		limitObs: make(map[int]func(*int)),
	}
}

// Load reads persisted values. Absent values keep their defaults; invalid
// persisted values are ignored.
func (s *Store) Load() error {
	if s.persist == nil {
		return nil
	}

	minutes, ok, err := s.persist.LoadCacheTTLMinutes()
	if err != nil {
		return fmt.Errorf("failed to load cache TTL: %w", err)
	}
	limit, err := s.persist.LoadItemLimit()
	if err != nil {
		return fmt.Errorf("failed to load item limit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ok && validateTTL(minutes) == nil {
		s.ttl = minutes
	}
	if validateLimit(limit) == nil {
		s.limit = copyLimit(limit)
	}
	return nil
}

// CacheTTLMinutes returns the cache lifetime in minutes
func (s *Store) CacheTTLMinutes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl
}

// CacheTTL returns the cache lifetime
func (s *Store) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLMinutes()) * time.Minute
}

// ItemLimit returns the item limit, nil when unbounded
func (s *Store) ItemLimit() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyLimit(s.limit)
}

// SetCacheTTL validates, persists and applies a new cache lifetime
func (s *Store) SetCacheTTL(minutes int) error {
	if err := validateTTL(minutes); err != nil {
		return err
	}

	s.mu.Lock()
	if s.ttl == minutes {
		s.mu.Unlock()
		return nil
	}
	if s.persist != nil {
		if err := s.persist.SaveCacheTTLMinutes(minutes); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to save cache TTL: %w", err)
		}
	}
	s.ttl = minutes
	observers := make([]func(time.Duration), 0, len(s.ttlObs))
	for _, fn := range s.ttlObs {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	ttl := time.Duration(minutes) * time.Minute
	for _, fn := range observers {
		fn(ttl)
	}
	return nil
}

// SetItemLimit validates, persists and applies a new item limit. nil means unbounded.
func (s *Store) SetItemLimit(limit *int) error {
	if err := validateLimit(limit); err != nil {
		return err
	}

	s.mu.Lock()
	if sameLimit(s.limit, limit) {
		s.mu.Unlock()
		return nil
	}
	if s.persist != nil {
		if err := s.persist.SaveItemLimit(limit); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to save item limit: %w", err)
		}
	}
	s.limit = copyLimit(limit)
	observers := make([]func(*int), 0, len(s.limitObs))
	for _, fn := range s.limitObs {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(copyLimit(limit))
	}
	return nil
}

// OnCacheTTLChange registers fn to run after every cache lifetime change
func (s *Store) OnCacheTTLChange(fn func(time.Duration)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.ttlObs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.ttlObs, id)
	}
}

// OnItemLimitChange registers fn to run after every item limit change
func (s *Store) OnItemLimitChange(fn func(*int)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.limitObs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.limitObs, id)
	}
}

func validateTTL(minutes int) error {
	if minutes < MinCacheTTLMinutes || minutes > MaxCacheTTLMinutes {
		return &models.ValidationError{
			Field:   "cacheTtlMinutes",
			Message: fmt.Sprintf("must be between %d and %d", MinCacheTTLMinutes, MaxCacheTTLMinutes),
		}
	}
	return nil
}

func validateLimit(limit *int) error {
	if limit != nil && (*limit < MinItemLimit || *limit > MaxItemLimit) {
		return &models.ValidationError{
			Field:   "itemLimit",
			Message: fmt.Sprintf("must be between %d and %d, or unset", MinItemLimit, MaxItemLimit),
		}
	}
	return nil
}

func sameLimit(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyLimit(limit *int) *int {
	if limit == nil {
		return nil
	}
	v := *limit
	return &v
}
