// Package testutil provides utilities for testing embedmq in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Env holds the isolated directories created by SetupTestEnv.
type Env struct {
	Root       string
	Home       string
	Cache      string
	Extraction string
	Bin        string
}

// SetupTestEnv creates isolated test directories for each test and points
// HOME at them, so the default download folder never touches the real
// ~/.embeddedrabbitmq cache. EMBEDMQ_* variables are cleared.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := Env{
		Root:       tmpDir,
		Home:       filepath.Join(tmpDir, "home"),
		Cache:      filepath.Join(tmpDir, "cache"),
		Extraction: filepath.Join(tmpDir, "extract"),
		Bin:        filepath.Join(tmpDir, "bin"),
	}

	t.Setenv("HOME", env.Home)
	t.Setenv("USERPROFILE", env.Home)

	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "EMBEDMQ_") {
			// Setenv registers the restore; Unsetenv makes the variable absent.
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}

	for _, dir := range []string{env.Home, env.Cache, env.Extraction, env.Bin} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}
