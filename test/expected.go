// Package test collects small test doubles and assertion helpers shared by
// this module's test suites, in place of a third-party assertion library.
package test

import (
	"fmt"
	"reflect"
	"testing"
)

// Equate fails the test if a and b are not equal, as judged by
// reflect.DeepEqual.
func Equate(t *testing.T, a, b interface{}) {
	t.Helper()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("not equal: %v != %v", a, b)
	}
}

// result interprets v as a success/failure value. bools are taken at face
// value; errors are a failure when non-nil; anything else is a success.
func result(v interface{}) bool {
	switch r := v.(type) {
	case bool:
		return r
	case error:
		return r == nil
	default:
		return true
	}
}

// ExpectSuccess fails the test if v represents a failure (false, or a
// non-nil error).
func ExpectSuccess(t *testing.T, v interface{}) {
	t.Helper()
	if !result(v) {
		t.Errorf("expected success, got %v", v)
	}
}

// ExpectFailure fails the test if v represents a success (true, or a nil
// error).
func ExpectFailure(t *testing.T, v interface{}) {
	t.Helper()
	if result(v) {
		t.Errorf("expected failure, got %v", v)
	}
}

// ExpectEquality fails the test if a and b are not equal.
func ExpectEquality(t *testing.T, a, b interface{}) {
	t.Helper()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected equality: %v != %v", a, b)
	}
}

// ExpectInequality fails the test if a and b are equal.
func ExpectInequality(t *testing.T, a, b interface{}) {
	t.Helper()
	if reflect.DeepEqual(a, b) {
		t.Errorf("expected inequality: %v == %v", a, b)
	}
}

// number converts common numeric types to float64 for approximate
// comparison.
func number(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

// ExpectApproximate fails the test if a differs from b by more than delta
// times b; delta is a fraction, so 0.1 allows a to be within 10% of b.
func ExpectApproximate(t *testing.T, a, b interface{}, delta float64) {
	t.Helper()
	fa, err := number(a)
	if err != nil {
		t.Errorf("ExpectApproximate: %v", err)
		return
	}
	fb, err := number(b)
	if err != nil {
		t.Errorf("ExpectApproximate: %v", err)
		return
	}
	diff := fa - fb
	if diff < 0 {
		diff = -diff
	}
	limit := fb * delta
	if limit < 0 {
		limit = -limit
	}
	if diff > limit {
		t.Errorf("not approximately equal: %v != %v (delta %v)", a, b, delta)
	}
}
