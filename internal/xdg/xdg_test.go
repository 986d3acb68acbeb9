package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDirHonorsEnv(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if dir != filepath.Join(base, "sqlrun") {
		t.Fatalf("ConfigDir = %s", dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("permissions = %v, want 0700", info.Mode().Perm())
	}
}

func TestStateDirHonorsEnv(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_STATE_HOME", base)

	dir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir: %v", err)
	}
	if dir != filepath.Join(base, "sqlrun") {
		t.Fatalf("StateDir = %s", dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("state dir was not created: %v", err)
	}
}
