package commontest

import (
	"testing"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/require"
)

// Test utils
// I would like these to live in a xxx_test.go file so they're not compiled into the executable however I haven't
// been able to figure out how to do that and still be able to include them in tests from other packages

// RequireTextEqual fails the test with a character level diff if the two texts differ. Used for
// comparing formatted plan output where a plain require.Equal makes whitespace differences hard to see.
func RequireTextEqual(t *testing.T, expected string, actual string) {
	t.Helper()
	if expected == actual {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	require.Failf(t, "texts differ", "diff (expected vs actual):\n%s", dmp.DiffPrettyText(diffs))
}

type Predicate func() (bool, error)

func WaitUntil(t *testing.T, predicate Predicate) {
	t.Helper()
	WaitUntilWithDur(t, predicate, 10*time.Second)
}

func WaitUntilWithDur(t *testing.T, predicate Predicate, timeout time.Duration) {
	t.Helper()
	complete, err := WaitUntilWithError(predicate, timeout, time.Millisecond)
	require.NoError(t, err)
	require.True(t, complete, "timed out waiting for predicate")
}

func WaitUntilWithError(predicate Predicate, timeout time.Duration, sleepTime time.Duration) (bool, error) {
	start := time.Now()
	for {
		complete, err := predicate()
		if err != nil {
			return false, err
		}
		if complete {
			return true, nil
		}
		time.Sleep(sleepTime)
		if time.Now().Sub(start) >= timeout {
			return false, nil
		}
	}
}
