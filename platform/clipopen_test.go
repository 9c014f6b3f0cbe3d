package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryOpenReadsDoNotRetry(t *testing.T) {
	calls, sleeps := 0, 0
	ok := tryOpen(func() bool { calls++; return false }, readOpenAttempts, openRetryWait, func(time.Duration) { sleeps++ })
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, sleeps)
}

func TestTryOpenWritesRetry(t *testing.T) {
	calls := 0
	var slept time.Duration
	ok := tryOpen(func() bool { calls++; return calls == 3 }, writeOpenAttempts, openRetryWait, func(d time.Duration) { slept += d })
	assert.True(t, ok)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2*openRetryWait, slept)

	calls = 0
	assert.False(t, tryOpen(func() bool { calls++; return false }, writeOpenAttempts, 0, func(time.Duration) {}))
	assert.Equal(t, writeOpenAttempts, calls)
}
