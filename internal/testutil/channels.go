package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Timeouts for waiting on asynchronous work in tests
const (
	DefaultTestTimeout = 5 * time.Second
	ShortTestTimeout   = 1 * time.Second
)

// Receive returns the next value from ch or fails the test after timeout.
// A closed channel also fails, use WaitClosed for that.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "%s: channel closed", msg)
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg, "nothing received within %s", timeout)
	}
	var zero T
	return zero
}

// WaitClosed fails the test unless ch is closed within timeout. Values still
// buffered in ch are drained first.
func WaitClosed[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, msg, "channel still open after %s", timeout)
		}
	}
}
