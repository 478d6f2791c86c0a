package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ahills/sibilant/internal/compiler"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	v, err := cfg.TargetVersion()
	if err != nil || v != compiler.DefaultTarget {
		t.Errorf("default target wrong: %v %v", v, err)
	}
	if !cfg.ShouldSkipShebang() {
		t.Errorf("shebang skipping should default on")
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load([]byte("target: \"3.5\"\nskip_shebang: false\ncache: .sibilant/cache.db\n"))
	if err != nil {
		t.Fatalf("load error: %s", err)
	}

	v, err := cfg.TargetVersion()
	if err != nil || v != compiler.Python35 {
		t.Errorf("target wrong: %v %v", v, err)
	}
	if cfg.ShouldSkipShebang() {
		t.Errorf("skip_shebang: false ignored")
	}
	if cfg.Cache != ".sibilant/cache.db" {
		t.Errorf("cache path wrong: %q", cfg.Cache)
	}
}

func TestLoadEmpty(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load error: %s", err)
	}
	if v, _ := cfg.TargetVersion(); v != compiler.DefaultTarget {
		t.Errorf("empty config does not fall back to the default target: %v", v)
	}
	if !cfg.ShouldSkipShebang() {
		t.Errorf("unset skip_shebang should default on")
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load([]byte("target: [nested]")); err == nil {
		t.Errorf("mistyped target accepted")
	}
	if _, err := Load([]byte("target: \"elephant\"")); err == nil {
		t.Errorf("unparseable target accepted")
	}
	if _, err := Load([]byte("target: [unclosed")); err == nil {
		t.Errorf("malformed yaml accepted")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte("target: \"3.6\"\n"), 0o644); err != nil {
		t.Fatalf("write error: %s", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file error: %s", err)
	}
	if v, _ := cfg.TargetVersion(); v != compiler.Python36 {
		t.Errorf("target wrong: %v", v)
	}

	if _, err := LoadFile(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Errorf("missing file accepted")
	}
}
