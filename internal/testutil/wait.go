// Package testutil provides polling helpers for tests of asynchronous jobs.
package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

// WaitOptions configures the polling helpers.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption is a functional option for the polling helpers.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 10s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 20ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func resolve(opts []WaitOption) WaitOptions {
	o := WaitOptions{
		Timeout:  10 * time.Second,
		Interval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Poll calls fetch until done accepts its value, fetch fails, or the timeout
// passes. It returns the last value fetched and whether done accepted it.
func Poll[T any](tb testing.TB, fetch func() (T, error), done func(T) bool, opts ...WaitOption) (T, bool, error) {
	tb.Helper()
	o := resolve(opts)

	var last T
	deadline := time.Now().Add(o.Timeout)
	for {
		v, err := fetch()
		if err != nil {
			return v, false, err
		}
		last = v
		if done(v) {
			return v, true, nil
		}
		if !time.Now().Before(deadline) {
			return last, false, nil
		}
		time.Sleep(o.Interval)
	}
}

// MustPoll is Poll that fails the test on a fetch error or timeout.
func MustPoll[T any](tb testing.TB, fetch func() (T, error), done func(T) bool, opts ...WaitOption) T {
	tb.Helper()
	v, ok, err := Poll(tb, fetch, done, opts...)
	if err != nil {
		tb.Fatalf("polling failed: %v", err)
	}
	if !ok {
		tb.Fatalf("timed out waiting for condition (last value: %+v)", v)
	}
	return v
}

// WaitFor polls until condition returns true or the timeout passes.
// Returns true if condition was met, false on timeout.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	_, ok, _ := Poll(tb, func() (bool, error) { return condition(), nil }, func(b bool) bool { return b }, opts...)
	return ok
}

// WaitForCount polls until counter reaches target or the timeout passes.
func WaitForCount(tb testing.TB, counter *atomic.Int64, target int64, opts ...WaitOption) bool {
	tb.Helper()
	return WaitFor(tb, func() bool {
		return counter.Load() >= target
	}, opts...)
}

// MustWaitFor polls until condition returns true or fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustWaitForCount polls until counter reaches target or fails the test on timeout.
func MustWaitForCount(tb testing.TB, counter *atomic.Int64, target int64, opts ...WaitOption) {
	tb.Helper()
	if !WaitForCount(tb, counter, target, opts...) {
		tb.Fatalf("timed out waiting for counter to reach %d (current: %d)", target, counter.Load())
	}
}
