// Package tester holds the small fail-fast assertions used by the gateway
// tests. Messages accept a format string followed by its arguments.
package tester

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func describe(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}

func fail(t *testing.T, msgAndArgs []any, format string, args ...any) {
	t.Helper()
	detail := fmt.Sprintf(format, args...)
	if msg := describe(msgAndArgs); msg != "" {
		t.Fatalf("%s: %s", msg, detail)
	}
	t.Fatal(detail)
}

// Eq asserts that got == want using reflect.DeepEqual.
func Eq[T any](t *testing.T, got, want T, msgAndArgs ...any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		fail(t, msgAndArgs, "got=%v want=%v", got, want)
	}
}

func True(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	if !cond {
		fail(t, msgAndArgs, "expected condition to be true")
	}
}

func False(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	if cond {
		fail(t, msgAndArgs, "expected condition to be false")
	}
}

func NoErr(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	if err != nil {
		fail(t, msgAndArgs, "unexpected error: %v", err)
	}
}

// ErrIs asserts errors.Is(err, target). Coded errors match on their code.
func ErrIs(t *testing.T, err, target error, msgAndArgs ...any) {
	t.Helper()
	if !errors.Is(err, target) {
		fail(t, msgAndArgs, "got error %v, want %v", err, target)
	}
}

// Eventually polls cond every 5ms until it holds or timeout passes.
func Eventually(t *testing.T, cond func() bool, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			fail(t, msgAndArgs, "condition not met within %v", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
