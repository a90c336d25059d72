package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const DefaultSweepInterval = 30 * time.Second

type memoryEntry struct {
	Value     string
	ExpiresAt time.Time // zero value means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// MemoryStore is the single-process reference Store: a mutex-guarded map with
// per-key expiry. Expired entries are removed lazily on access and by a
// periodic background sweep; correctness never depends on sweep timing.
type MemoryStore struct {
	mu           sync.RWMutex
	data         map[string]*memoryEntry
	timeProvider func() time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

type MemoryStoreOpts struct {
	TimeProvider func() time.Time
}

// NewMemoryStore builds a store sweeping expired entries every
// sweepInterval. A non-positive interval disables the sweep entirely; lazy
// eviction still applies.
func NewMemoryStore(sweepInterval time.Duration, opts *MemoryStoreOpts) *MemoryStore {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}

	s := &MemoryStore{
		data:         make(map[string]*memoryEntry),
		timeProvider: timeProvider,
		done:         make(chan struct{}),
	}

	if sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(sweepInterval)
	}

	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	entry, exists := s.data[key]
	if !exists {
		s.mu.RUnlock()
		return "", false, nil
	}
	now := s.timeProvider()
	isExpired := entry.expired(now)
	value := entry.Value
	s.mu.RUnlock()

	if isExpired {
		s.mu.Lock()
		if current, ok := s.data[key]; ok && current.expired(s.timeProvider()) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}

	return value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &memoryEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.timeProvider().Add(ttl)
	}
	s.data[key] = entry
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.data[key]
	if exists && entry.expired(s.timeProvider()) {
		delete(s.data, key)
		exists = false
	}

	if !exists {
		s.data[key] = &memoryEntry{Value: strconv.FormatInt(delta, 10)}
		return delta, nil
	}

	current, err := strconv.ParseInt(entry.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %q is not an integer", key)
	}
	current += delta
	entry.Value = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.data[key]
	if !exists || entry.expired(s.timeProvider()) {
		return nil
	}
	if ttl > 0 {
		entry.ExpiresAt = s.timeProvider().Add(ttl)
	} else {
		entry.ExpiresAt = time.Time{}
	}
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := prefixOf(pattern)
	now := s.timeProvider()

	s.mu.RLock()
	keys := make([]string, 0)
	var stale []string
	for key, entry := range s.data {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if entry.expired(now) {
			stale = append(stale, key)
			continue
		}
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	if len(stale) > 0 {
		s.mu.Lock()
		for _, key := range stale {
			if entry, ok := s.data[key]; ok && entry.expired(s.timeProvider()) {
				delete(s.data, key)
			}
		}
		s.mu.Unlock()
	}

	return keys, nil
}

// Close stops the sweep goroutine and releases the held entries. The store
// must not be used after Close.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()

	s.mu.Lock()
	s.data = make(map[string]*memoryEntry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeProvider()
	for key, entry := range s.data {
		if entry.expired(now) {
			delete(s.data, key)
		}
	}
}

// Len reports the number of live entries, counting entries the sweep has not
// collected yet only if they are unexpired.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.timeProvider()
	n := 0
	for _, entry := range s.data {
		if !entry.expired(now) {
			n++
		}
	}
	return n
}
