package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDoSuppressesDuplicates(t *testing.T) {
	var g Group
	var calls int32

	gate := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	const callers = 8
	results := make([]interface{}, callers)

	fn := func() (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-gate
		return "value", nil
	}

	// Hold the first call open so the rest pile onto it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err, _ := g.Do("key", fn)
		assert.NoError(t, err)
		results[0] = v
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			v, err, _ := g.Do("key", fn)
			assert.NoError(t, err)
			results[n] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "fn must run once")
	for _, v := range results {
		assert.Equal(t, "value", v)
	}
}

func TestDoDistinctKeysRunIndependently(t *testing.T) {
	var g Group
	var calls int32

	for _, key := range []string{"a", "b", "a"} {
		_, err, _ := g.Do(key, func() (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		})
		assert.NoError(t, err)
	}

	// Sequential calls never overlap, so each runs.
	assert.Equal(t, int32(3), calls)
}
