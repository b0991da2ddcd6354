package storage

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultAttemptWindow = 10 * time.Minute
	maxAttemptKeys       = 10000
)

// AttemptStorage counts failed redemptions per client so token guessing
// can be throttled. It holds client keys only, never tokens.
type AttemptStorage struct {
	cache  *ristretto.Cache[string, int]
	window time.Duration

	// guards the read-modify-write in Incr
	mu sync.Mutex
}

func NewAttemptStorage(window time.Duration) *AttemptStorage {
	if window <= 0 {
		window = defaultAttemptWindow
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, int]{
		NumCounters: maxAttemptKeys * 10,
		MaxCost:     maxAttemptKeys,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})

	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create attempt storage")
	}

	return &AttemptStorage{
		cache:  c,
		window: window,
	}
}

func (s *AttemptStorage) Get(key string) int {
	n, _ := s.cache.Get(key)
	return n
}

// Incr adds a failure for key and returns the count in the current window.
// The window restarts with each failure.
func (s *AttemptStorage) Incr(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, _ := s.cache.Get(key)
	n++
	s.cache.SetWithTTL(key, n, 1, s.window)
	s.cache.Wait()
	return n
}

func (s *AttemptStorage) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Del(key)
	s.cache.Wait()
}
