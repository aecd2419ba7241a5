package executor

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"
)

func TestDemo_Output(t *testing.T) {
	t.Parallel()
	d := NewDemo(DemoConfig{Duration: 10 * time.Millisecond})
	pattern := regexp.MustCompile(`^hello [1-9][0-9]$`)

	for range 20 {
		out, err := d.Execute(context.Background(), "j1")
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !pattern.MatchString(out) {
			t.Fatalf("output %q does not match %s", out, pattern)
		}
	}
}

func TestDemo_Cancel(t *testing.T) {
	t.Parallel()
	d := NewDemo(DemoConfig{Duration: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Execute(ctx, "j1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFunc(t *testing.T) {
	t.Parallel()
	var e Executor = Func(func(_ context.Context, id string) (string, error) {
		return "ran " + id, nil
	})
	out, err := e.Execute(context.Background(), "j9")
	if err != nil || out != "ran j9" {
		t.Fatalf("Execute = %q, %v", out, err)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind    string
		want    any
		wantErr bool
	}{
		{KindScript, &Script{}, false},
		{"", &Script{}, false},
		{KindDemo, &Demo{}, false},
		{"notebook", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			t.Parallel()
			e, err := New(Config{Kind: tt.kind})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			switch tt.want.(type) {
			case *Script:
				if _, ok := e.(*Script); !ok {
					t.Errorf("got %T, want *Script", e)
				}
			case *Demo:
				if _, ok := e.(*Demo); !ok {
					t.Errorf("got %T, want *Demo", e)
				}
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("EXECUTOR", "demo")
	t.Setenv("DEMO_DURATION", "2s")
	t.Setenv("SCRIPT_COMMAND", "python3 run.py --fast")
	t.Setenv("LOG_DIR", "/var/log/cockpit")

	cfg := LoadConfigFromEnv()
	if cfg.Kind != KindDemo {
		t.Errorf("Kind = %q", cfg.Kind)
	}
	if cfg.Demo.Duration != 2*time.Second {
		t.Errorf("Demo.Duration = %s", cfg.Demo.Duration)
	}
	if got := cfg.Script.Command; len(got) != 3 || got[0] != "python3" || got[2] != "--fast" {
		t.Errorf("Script.Command = %v", got)
	}
	if cfg.Script.LogDir != "/var/log/cockpit" {
		t.Errorf("Script.LogDir = %q", cfg.Script.LogDir)
	}
}
