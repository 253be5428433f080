package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{name: "burst allows initial requests", rps: 1, burst: 3, calls: 3, wantPass: 3},
		{name: "exceeding burst blocks", rps: 1, burst: 2, calls: 5, wantPass: 2},
		{name: "zero rps is unlimited", rps: 0, burst: 1, calls: 20, wantPass: 20},
		{name: "burst below one is raised", rps: 0.01, burst: 0, calls: 3, wantPass: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			defer rl.Stop()

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("user-1") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	assert.True(t, rl.Allow("user-1"))
	assert.False(t, rl.Allow("user-1"), "user-1 should be exhausted")
	assert.True(t, rl.Allow("user-2"), "user-2 is independent")
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_SweepEvictsIdleKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("old")

	now = now.Add(time.Hour)
	rl.Allow("fresh")
	rl.sweep()

	assert.Equal(t, 1, rl.Len())
	assert.True(t, rl.Allow("old"), "evicted key starts with a full bucket")
}
