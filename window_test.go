package xspine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestSeenWindow_DuplicateWithinWindow(t *testing.T) {
	clock := newFakeClock()
	w := newSeenWindow(5*time.Minute, clock)

	assert.False(t, w.observe("ev-1"))
	assert.True(t, w.observe("ev-1"))

	clock.advance(4 * time.Minute)
	assert.True(t, w.observe("ev-1"))
}

func TestSeenWindow_ExpiresAfterWindow(t *testing.T) {
	clock := newFakeClock()
	w := newSeenWindow(5*time.Minute, clock)

	assert.False(t, w.observe("ev-1"))
	clock.advance(5*time.Minute + time.Second)
	assert.False(t, w.observe("ev-1"))
}

func TestSeenWindow_PrunesLazily(t *testing.T) {
	clock := newFakeClock()
	w := newSeenWindow(time.Minute, clock)

	w.observe("ev-1")
	w.observe("ev-2")
	assert.Equal(t, 2, w.size())

	clock.advance(2 * time.Minute)
	w.observe("ev-3")
	assert.Equal(t, 1, w.size())
}

func TestSeenWindow_Reset(t *testing.T) {
	clock := newFakeClock()
	w := newSeenWindow(time.Minute, clock)

	w.observe("ev-1")
	w.reset()
	assert.Equal(t, 0, w.size())
	assert.False(t, w.observe("ev-1"))
}
