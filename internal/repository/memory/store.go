package memory

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/repository"
)

const defaultCleanupInterval = time.Minute

// ErrClosed is returned by Init once the store has been closed.
var ErrClosed = errors.New("memory store closed")

// Entry is a cached profile with its bookkeeping timestamps.
type Entry struct {
	Key            string
	Value          *domain.Profile
	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpiresAt      time.Time
}

type Config struct {
	// MaxEntries bounds the store with LRU eviction. Zero means unbounded.
	MaxEntries      int
	CleanupInterval time.Duration
}

// Store is an in-process ProfileRepository. Expired entries are dropped
// lazily on read and periodically by a janitor started in Init.
type Store struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	cfg     Config
	now     func() time.Time

	stop   chan struct{}
	done   chan struct{}
	closed bool
}

func NewStore(cfg Config) *Store {
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	return &Store{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Init starts the janitor. It stops when ctx ends or Close is called.
// A closed store cannot be restarted.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.janitor(ctx, s.stop, s.done)
	return nil
}

func (s *Store) Get(_ context.Context, username string) (*domain.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[username]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*Entry)
	now := s.now()
	if !now.Before(entry.ExpiresAt) {
		s.removeElement(elem)
		return nil, false, nil
	}
	entry.LastAccessedAt = now
	s.lru.MoveToFront(elem)
	return entry.Value, true, nil
}

func (s *Store) Put(_ context.Context, username string, profile *domain.Profile, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := &Entry{
		Key:            username,
		Value:          profile,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(ttl),
	}
	if elem, ok := s.entries[entry.Key]; ok {
		elem.Value = entry
		s.lru.MoveToFront(elem)
		return nil
	}
	s.entries[entry.Key] = s.lru.PushFront(entry)

	if s.cfg.MaxEntries > 0 {
		for s.lru.Len() > s.cfg.MaxEntries {
			s.removeElement(s.lru.Back())
		}
	}
	return nil
}

func (s *Store) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[username]; ok {
		s.removeElement(elem)
	}
	return nil
}

// Len reports the number of entries, including expired ones not yet pruned.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Close stops the janitor and waits for it to exit. It is safe to call
// more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (s *Store) janitor(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *Store) prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, elem := range s.entries {
		if !now.Before(elem.Value.(*Entry).ExpiresAt) {
			s.removeElement(elem)
			removed++
		}
	}
	return removed
}

func (s *Store) removeElement(elem *list.Element) {
	entry := elem.Value.(*Entry)
	delete(s.entries, entry.Key)
	s.lru.Remove(elem)
}

var _ repository.ProfileRepository = (*Store)(nil)
