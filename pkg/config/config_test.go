package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c := LoadConfig()
	if c.ImageReader != "" || c.DisasmCount != 0 || c.MapSegments != nil {
		t.Fatalf("default config is not empty: %#v", c)
	}
	if !c.MapSegmentsOrDefault() || !c.SuperviseOrDefault() || !c.ColorOrDefault() {
		t.Fatalf("unexpected defaults")
	}
	buf, err := os.ReadFile(filepath.Join(dir, "uexec", "config.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(buf), "# Configuration file for uexec.") {
		t.Fatalf("unexpected default config:\n%s", buf)
	}
}

func TestLoadConfigValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	LoadConfig()

	path := filepath.Join(dir, "uexec", "config.yml")
	if err := os.WriteFile(path, []byte("image-reader: mmap\nsupervise: false\ndisasm-count: 4\n"), 0600); err != nil {
		t.Fatal(err)
	}
	c := LoadConfig()
	if c.ImageReader != "mmap" || c.DisasmCount != 4 {
		t.Fatalf("config values not loaded: %#v", c)
	}
	if c.SuperviseOrDefault() || !c.MapSegmentsOrDefault() {
		t.Fatalf("unexpected booleans: %#v", c)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "uexec"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "uexec", "config.yml"), []byte("disasm-count: [1"), 0600); err != nil {
		t.Fatal(err)
	}
	if c := LoadConfig(); c.DisasmCount != 0 {
		t.Fatalf("expected an empty config, got %#v", c)
	}
}

func TestGetConfigFilePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	p, err := GetConfigFilePath(configFile)
	if err != nil || p != "/xdg/uexec/config.yml" {
		t.Fatalf("got %q, %v", p, err)
	}
	t.Setenv("XDG_CONFIG_HOME", "")
	p, err = GetConfigFilePath(configFile)
	if err != nil || !strings.HasSuffix(p, filepath.Join(".uexec", "config.yml")) {
		t.Fatalf("got %q, %v", p, err)
	}
}
