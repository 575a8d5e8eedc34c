// Package testutil provides shared helpers for colony tests.
package testutil

import (
	"testing"
	"time"
)

// Eventually polls cond every few milliseconds until it holds or the timeout
// passes, then fails the test. Use it to wait on asynchronous delivery
// instead of fixed sleeps.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
