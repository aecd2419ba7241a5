package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	lock := &Config{Initial: 50 * time.Millisecond, Max: 500 * time.Millisecond}

	tests := []struct {
		name    string
		cfg     *Config
		attempt int
		want    time.Duration
	}{
		{"defaults first", nil, 1, 100 * time.Millisecond},
		{"defaults doubling", nil, 4, 800 * time.Millisecond},
		{"defaults capped", nil, 7, 5 * time.Second},
		{"zero attempt", nil, 0, 100 * time.Millisecond},
		{"negative attempt", nil, -3, 100 * time.Millisecond},
		{"custom first", lock, 1, 50 * time.Millisecond},
		{"custom doubling", lock, 4, 400 * time.Millisecond},
		{"custom capped", lock, 5, 500 * time.Millisecond},
		{"only initial", &Config{Initial: 200 * time.Millisecond}, 6, 5 * time.Second},
		{"only max", &Config{Max: 300 * time.Millisecond}, 3, 300 * time.Millisecond},
		{"huge attempt", nil, 10_000, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Exponential(tt.attempt, tt.cfg); got != tt.want {
				t.Errorf("Exponential(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExponential_Jitter(t *testing.T) {
	t.Parallel()

	cfg := &Config{Initial: 100 * time.Millisecond, Jitter: 0.5}
	for range 200 {
		got := Exponential(2, cfg)
		if got < 100*time.Millisecond || got > 200*time.Millisecond {
			t.Fatalf("Exponential with jitter = %v, want within [100ms, 200ms]", got)
		}
	}

	// Out-of-range jitter is clamped, so the delay never goes negative.
	cfg = &Config{Initial: 100 * time.Millisecond, Jitter: 7}
	for range 200 {
		if got := Exponential(1, cfg); got < 0 || got > 100*time.Millisecond {
			t.Fatalf("Exponential with clamped jitter = %v", got)
		}
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()

	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() on cancelled ctx = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancellation")
	}
}
