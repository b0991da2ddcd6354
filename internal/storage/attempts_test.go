package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttemptStorage(t *testing.T) {
	s := NewAttemptStorage(time.Minute)

	assert.Equal(t, 0, s.Get("10.0.0.1"))
	assert.Equal(t, 1, s.Incr("10.0.0.1"))
	assert.Equal(t, 2, s.Incr("10.0.0.1"))
	assert.Equal(t, 1, s.Incr("10.0.0.2"))
	assert.Equal(t, 2, s.Get("10.0.0.1"))

	s.Reset("10.0.0.1")
	assert.Equal(t, 0, s.Get("10.0.0.1"))
	assert.Equal(t, 1, s.Get("10.0.0.2"))
}

func TestAttemptStorage_ConcurrentIncr(t *testing.T) {
	s := NewAttemptStorage(time.Minute)

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Incr("10.0.0.1")
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Get("10.0.0.1"))
}
