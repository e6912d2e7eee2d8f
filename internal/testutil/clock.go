package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new StepClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a thread-safe deterministic clock for tests. Every call to
// Now advances it by one second, so stored timestamps are reproducible
// and strictly ordered.
type StepClock struct {
	mu   sync.Mutex
	next time.Time
}

// NewStepClock creates a clock whose first reading is Epoch.
func NewStepClock() *StepClock {
	return &StepClock{next: Epoch}
}

// Now returns the current reading and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(time.Second)
	return t
}

// Reset rewinds the clock to Epoch.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}

// FixedIDGenerator returns the same fit ID every time, for golden output.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator. An empty id defaults to
// "fit-test-0001".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "fit-test-0001"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
