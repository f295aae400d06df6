// Package testutil holds shared fixtures, in-memory stores and infrastructure helpers for tests.
package testutil

import (
	"os"
	"strings"
	"sync"
	"time"
)

// TestingTB is the subset of testing.TB the infrastructure helpers need.
type TestingTB interface {
	Helper()
	Cleanup(func())
	Name() string
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// RunConcurrent starts every fn at once and returns their errors in input order.
func RunConcurrent(fns ...func() error) []error {
	var (
		wg   sync.WaitGroup
		errs = make([]error, len(fns))
		gate = make(chan struct{})
	)
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			errs[i] = fn()
		}()
	}
	close(gate)
	wg.Wait()
	return errs
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

// skipOrFail skips when infrastructure is missing, unless the run demands it.
func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required || envBool("TEST_REQUIRE_INFRA") {
		t.Fatal(args...)
	}
	t.Skip(args...)
}
