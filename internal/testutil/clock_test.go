package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_StartsAtEpoch(t *testing.T) {
	c := NewStepClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
}

func TestStepClock_Reset(t *testing.T) {
	c := NewStepClock()
	c.Now()
	c.Now()
	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	c := NewStepClock()
	const goroutines, calls = 50, 20

	var wg sync.WaitGroup
	seen := make(chan time.Time, goroutines*calls)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				seen <- c.Now()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[time.Time]bool{}
	for ts := range seen {
		assert.False(t, unique[ts], "duplicate reading %v", ts)
		unique[ts] = true
	}
	assert.Len(t, unique, goroutines*calls)
}

func TestFixedIDGenerator(t *testing.T) {
	assert.Equal(t, "fit-test-0001", NewFixedIDGenerator("").Generate())
	g := NewFixedIDGenerator("abc")
	assert.Equal(t, "abc", g.Generate())
	assert.Equal(t, "abc", g.Generate())
}
