package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SBUS_TEST_BIND", "0.0.0.0:9000")

	path := filepath.Join(t.TempDir(), "sbus.yaml")
	raw := `version: "1"
log_level: ${SBUS_TEST_LEVEL:-debug}
modules:
  gateway.http:
    bind: ${SBUS_TEST_BIND}
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	node, ok := cfg.Modules["gateway.http"]
	if !ok {
		t.Fatal("gateway.http module missing")
	}
	var gw struct {
		Bind string `yaml:"bind"`
	}
	if err := node.Decode(&gw); err != nil {
		t.Fatal(err)
	}
	if gw.Bind != "0.0.0.0:9000" {
		t.Errorf("bind = %q, want 0.0.0.0:9000", gw.Bind)
	}
}

func TestParse_UnresolvedVariable(t *testing.T) {
	_, err := Parse([]byte("version: ${SBUS_TEST_SURELY_UNSET_VAR}\n"))
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "SBUS_TEST_SURELY_UNSET_VAR") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolve_Order(t *testing.T) {
	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http": {},
		"custom.thing": {},
		"reaper.cron":  {},
		"store.memory": {},
	}}
	want := []string{"store.memory", "reaper.cron", "gateway.http", "custom.thing"}
	if got := Resolve(cfg); !slices.Equal(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{"HOST": "db", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		in      string
		want    string
		missing []string
	}{
		{"h: ${HOST}", "h: db", nil},
		{"h: ${EMPTY:-x}", "h: ", nil},
		{"h: ${NOPE:-fallback}", "h: fallback", nil},
		{"h: ${NOPE:-}", "h: ", nil},
		{"h: $${HOST}", "h: ${HOST}", nil},
		{"a: ${B} c: ${A} d: ${B}", "a: ${B} c: ${A} d: ${B}", []string{"A", "B"}},
	}
	for _, tt := range tests {
		got, missing := expandEnv([]byte(tt.in), lookup)
		if string(got) != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if !slices.Equal(missing, tt.missing) {
			t.Errorf("expandEnv(%q) missing = %v, want %v", tt.in, missing, tt.missing)
		}
	}
}
