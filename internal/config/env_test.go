package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	if result := GetEnv("TEST_NONEXISTENT_VAR", "default"); result != "default" {
		t.Errorf("Expected 'default', got %q", result)
	}

	t.Setenv("TEST_GET_ENV", "custom")
	if result := GetEnv("TEST_GET_ENV", "default"); result != "custom" {
		t.Errorf("Expected 'custom', got %q", result)
	}
}

func TestGetIntEnv(t *testing.T) {
	if result := GetIntEnv("TEST_NONEXISTENT_INT", 42); result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	t.Setenv("TEST_INT_ENV", "123")
	if result := GetIntEnv("TEST_INT_ENV", 42); result != 123 {
		t.Errorf("Expected 123, got %d", result)
	}

	t.Setenv("TEST_INVALID_INT", "not-a-number")
	if result := GetIntEnv("TEST_INVALID_INT", 42); result != 42 {
		t.Errorf("Expected 42 for invalid int, got %d", result)
	}
}

func TestGetBoolEnv(t *testing.T) {
	if result := GetBoolEnv("TEST_NONEXISTENT_BOOL", true); !result {
		t.Error("Expected default true")
	}

	t.Setenv("TEST_BOOL_ENV", "false")
	if result := GetBoolEnv("TEST_BOOL_ENV", true); result {
		t.Error("Expected false")
	}

	t.Setenv("TEST_INVALID_BOOL", "maybe")
	if result := GetBoolEnv("TEST_INVALID_BOOL", true); !result {
		t.Error("Expected default for invalid bool")
	}
}

func TestGetDurationEnv(t *testing.T) {
	defaultDuration := 5 * time.Second

	if result := GetDurationEnv("TEST_NONEXISTENT_DURATION", defaultDuration); result != defaultDuration {
		t.Errorf("Expected %v, got %v", defaultDuration, result)
	}

	t.Setenv("TEST_DURATION_ENV", "10m")
	if result := GetDurationEnv("TEST_DURATION_ENV", defaultDuration); result != 10*time.Minute {
		t.Errorf("Expected 10m, got %v", result)
	}

	t.Setenv("TEST_INVALID_DURATION", "not-a-duration")
	if result := GetDurationEnv("TEST_INVALID_DURATION", defaultDuration); result != defaultDuration {
		t.Errorf("Expected %v for invalid duration, got %v", defaultDuration, result)
	}
}

func TestGetListEnv(t *testing.T) {
	def := []string{"a"}
	if result := GetListEnv("TEST_NONEXISTENT_LIST", def); !slices.Equal(result, def) {
		t.Errorf("Expected default, got %v", result)
	}

	t.Setenv("TEST_LIST_ENV", "python  run.py --fast")
	want := []string{"python", "run.py", "--fast"}
	if result := GetListEnv("TEST_LIST_ENV", def); !slices.Equal(result, want) {
		t.Errorf("Expected %v, got %v", want, result)
	}
}

func TestGetSecretFile(t *testing.T) {
	t.Parallel()

	if result := GetSecretFile(""); result != "" {
		t.Errorf("Expected empty string for empty path, got %q", result)
	}

	if result := GetSecretFile("/nonexistent/path/to/secret"); result != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", result)
	}

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("  my-secret-value\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}
	if result := GetSecretFile(path); result != "my-secret-value" {
		t.Errorf("Expected 'my-secret-value', got %q", result)
	}
}
