// Package testutil holds small helpers shared by the package tests.
package testutil

import (
	"runtime"
	"testing"
	"time"
)

const (
	pollInterval = 25 * time.Millisecond
	leakDeadline = 5 * time.Second
)

// Eventually polls cond until it reports true or the timeout lapses.
// It fails the test fatally on timeout.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// AssertNoGoroutineLeaks fails the test if the goroutine count does not
// settle back to baseline (plus margin) shortly after the work under
// test finishes. Capture the baseline with runtime.NumGoroutine before
// starting that work.
func AssertNoGoroutineLeaks(t *testing.T, baseline, margin int) {
	t.Helper()
	deadline := time.Now().Add(leakDeadline)
	for {
		current := runtime.NumGoroutine()
		if current <= baseline+margin {
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("goroutine count did not settle: baseline=%d current=%d margin=%d",
				baseline, current, margin)
			return
		}
		time.Sleep(pollInterval)
	}
}
