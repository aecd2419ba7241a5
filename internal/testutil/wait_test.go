package testutil

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	counter := 0
	result := WaitFor(t, func() bool {
		counter++
		return counter >= 3
	}, WithTimeout(time.Second), WithInterval(time.Millisecond))

	if !result {
		t.Error("expected WaitFor to return true for eventual success")
	}
	if counter < 3 {
		t.Errorf("expected counter >= 3, got %d", counter)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	result := WaitFor(t, func() bool {
		return false
	}, WithTimeout(30*time.Millisecond), WithInterval(5*time.Millisecond))

	if result {
		t.Error("expected WaitFor to return false on timeout")
	}
}

func TestWaitFor_ChecksOnceWithZeroTimeout(t *testing.T) {
	t.Parallel()
	calls := 0
	result := WaitFor(t, func() bool {
		calls++
		return true
	}, WithTimeout(0))

	if !result || calls != 1 {
		t.Errorf("expected one successful check, got result=%v calls=%d", result, calls)
	}
}

func TestPoll_ReturnsLastValue(t *testing.T) {
	t.Parallel()
	n := 0
	v, ok, err := Poll(t, func() (int, error) {
		n++
		return n, nil
	}, func(v int) bool { return v == 4 }, WithInterval(time.Millisecond))

	if err != nil || !ok || v != 4 {
		t.Errorf("got v=%d ok=%v err=%v", v, ok, err)
	}
}

func TestPoll_StopsOnFetchError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	calls := 0
	_, ok, err := Poll(t, func() (string, error) {
		calls++
		if calls == 2 {
			return "", boom
		}
		return "STARTED", nil
	}, func(s string) bool { return s == "SUCCESS" }, WithInterval(time.Millisecond))

	if !errors.Is(err, boom) || ok {
		t.Errorf("expected fetch error, got ok=%v err=%v", ok, err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestMustPoll(t *testing.T) {
	t.Parallel()
	var state atomic.Value
	state.Store("PENDING")
	go func() {
		time.Sleep(10 * time.Millisecond)
		state.Store("SUCCESS")
	}()

	got := MustPoll(t, func() (string, error) {
		return state.Load().(string), nil
	}, func(s string) bool { return s == "SUCCESS" }, WithTimeout(time.Second), WithInterval(time.Millisecond))

	if got != "SUCCESS" {
		t.Errorf("expected SUCCESS, got %q", got)
	}
}

func TestWaitForCount(t *testing.T) {
	t.Parallel()
	var counter atomic.Int64

	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(2 * time.Millisecond)
			counter.Add(1)
		}
	}()

	if !WaitForCount(t, &counter, 5, WithTimeout(time.Second), WithInterval(time.Millisecond)) {
		t.Error("expected WaitForCount to return true")
	}

	counter.Store(2)
	if WaitForCount(t, &counter, 10, WithTimeout(20*time.Millisecond), WithInterval(5*time.Millisecond)) {
		t.Error("expected WaitForCount to return false on timeout")
	}
}

func TestMustWaitForCount_Success(t *testing.T) {
	t.Parallel()
	var counter atomic.Int64
	counter.Store(5)

	MustWaitForCount(t, &counter, 5, WithTimeout(time.Second))
}

func TestResolveOptions(t *testing.T) {
	t.Parallel()
	opts := resolve(nil)
	if opts.Timeout != 10*time.Second || opts.Interval != 20*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", opts)
	}

	opts = resolve([]WaitOption{WithTimeout(5 * time.Second), WithInterval(50 * time.Millisecond)})
	if opts.Timeout != 5*time.Second || opts.Interval != 50*time.Millisecond {
		t.Errorf("options not applied: %+v", opts)
	}
}
