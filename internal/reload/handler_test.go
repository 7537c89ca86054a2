package reload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sbus/internal/config"
	"github.com/flemzord/sbus/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubModule is registered so configuration files naming it validate.
type stubModule struct{}

func (stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "reloadtest.stub", New: func() core.Module { return stubModule{} }}
}

func init() {
	core.RegisterModule(stubModule{})
}

// fakeApp records the configurations it was asked to reload.
type fakeApp struct {
	ids     []string
	err     error
	reloads []map[string]string
}

func (a *fakeApp) ModuleIDs() []string { return a.ids }

func (a *fakeApp) ReloadModules(ctx *core.AppContext) error {
	seen := make(map[string]string)
	for _, id := range a.ids {
		node, ok := ctx.ModuleConfig(core.ModuleID(id))
		if !ok {
			continue
		}
		var cfg struct {
			Value string `yaml:"value"`
		}
		if err := node.Decode(&cfg); err != nil {
			return err
		}
		seen[id] = cfg.Value
	}
	a.reloads = append(a.reloads, seen)
	return a.err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sbus.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func newHandler(app Reloadable) *Handler {
	return NewHandler(app, core.NewAppContext(testLogger(), "/tmp/data"), nil)
}

func TestHandler_HandleReload(t *testing.T) {
	t.Parallel()

	app := &fakeApp{ids: []string{"reloadtest.stub"}}
	path := writeConfig(t, "version: \"1\"\nmodules:\n  reloadtest.stub:\n    value: v2\n")

	if err := newHandler(app).HandleReload(context.Background(), path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if len(app.reloads) != 1 {
		t.Fatalf("reloads = %d, want 1", len(app.reloads))
	}
	if got := app.reloads[0]["reloadtest.stub"]; got != "v2" {
		t.Errorf("value = %q, want v2", got)
	}
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	t.Parallel()

	app := &fakeApp{}
	if err := newHandler(app).HandleReload(context.Background(), "/nonexistent/sbus.yaml"); err == nil {
		t.Error("HandleReload(missing file) = nil, want error")
	}
	if len(app.reloads) != 0 {
		t.Errorf("reloads = %d, want 0", len(app.reloads))
	}
}

func TestHandler_HandleReload_InvalidConfigKeepsModules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"no modules", "version: \"1\"\nmodules: {}\n"},
		{"unknown module", "version: \"1\"\nmodules:\n  nope.nope: {}\n"},
		{"bad version", "version: \"2\"\nmodules:\n  reloadtest.stub: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := &fakeApp{ids: []string{"reloadtest.stub"}}
			if err := newHandler(app).HandleReload(context.Background(), writeConfig(t, tt.content)); err == nil {
				t.Error("HandleReload = nil, want validation error")
			}
			if len(app.reloads) != 0 {
				t.Errorf("reloads = %d, want 0", len(app.reloads))
			}
		})
	}
}

func TestHandler_Apply_PropagatesModuleErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	app := &fakeApp{ids: []string{"reloadtest.stub"}, err: boom}
	cfg := &config.Config{Version: "1", Modules: map[string]yaml.Node{}}

	if err := newHandler(app).Apply(context.Background(), cfg); !errors.Is(err, boom) {
		t.Errorf("Apply err = %v, want boom", err)
	}
}

func TestHandler_Apply_CancelledContext(t *testing.T) {
	t.Parallel()

	app := &fakeApp{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := newHandler(app).Apply(ctx, &config.Config{Version: "1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Apply err = %v, want context.Canceled", err)
	}
	if len(app.reloads) != 0 {
		t.Errorf("reloads = %d, want 0", len(app.reloads))
	}
}
