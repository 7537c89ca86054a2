package core

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

// orderModule records Start and Stop calls into a shared journal.
type orderModule struct {
	id       ModuleID
	journal  *journal
	startErr error
}

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.events)
}

func (m *orderModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			return &orderModule{id: m.id, journal: m.journal, startErr: m.startErr}
		},
	}
}

func (m *orderModule) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.journal.add("start " + string(m.id))
	return nil
}

func (m *orderModule) Stop(context.Context) error {
	m.journal.add("stop " + string(m.id))
	return nil
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	j := &journal{}
	RegisterModule(&orderModule{id: "test.a", journal: j})
	RegisterModule(&orderModule{id: "test.b", journal: j})

	ctx := NewAppContext(nil, "/data")
	app := NewApp(ctx)
	if err := app.LoadModules([]string{"test.a", "test.b"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if got := app.ModuleIDs(); !slices.Equal(got, []string{"test.a", "test.b"}) {
		t.Errorf("ModuleIDs = %v", got)
	}
	if _, ok := ServiceAs[[]string](ctx, "core.modules"); !ok {
		t.Error("core.modules service should be registered")
	}

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start test.a", "start test.b", "stop test.b", "stop test.a"}
	if got := j.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Cleanup(resetRegistry)

	j := &journal{}
	boom := errors.New("boom")
	RegisterModule(&orderModule{id: "test.a", journal: j})
	RegisterModule(&orderModule{id: "test.b", journal: j, startErr: boom})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.a", "test.b"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); !errors.Is(err, boom) {
		t.Fatalf("Start err = %v, want boom", err)
	}

	want := []string{"start test.a", "stop test.a"}
	if got := j.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_RunStopsOnContextDone(t *testing.T) {
	t.Cleanup(resetRegistry)

	j := &journal{}
	RegisterModule(&orderModule{id: "test.run", journal: j})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.run"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"start test.run", "stop test.run"}
	if got := j.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_LoadModulesUnknown(t *testing.T) {
	t.Cleanup(resetRegistry)

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"nope"}); err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	t.Cleanup(resetRegistry)

	j := &journal{}
	RegisterModule(&orderModule{id: "store.memory", journal: j})
	RegisterModule(&orderModule{id: "store.other", journal: j})
	RegisterModule(&orderModule{id: "gateway.http", journal: j})

	got := GetModulesByNamespace("store")
	if len(got) != 2 || got[0].ID != "store.memory" || got[1].ID != "store.other" {
		t.Errorf("GetModulesByNamespace(store) = %v", got)
	}
	if len(GetModules()) != 3 {
		t.Errorf("GetModules = %d, want 3", len(GetModules()))
	}
	if got := Namespaces(); !slices.Equal(got, []string{"gateway", "store"}) {
		t.Errorf("Namespaces = %v, want [gateway store]", got)
	}
}

func TestRegisterModule_Rejects(t *testing.T) {
	t.Cleanup(resetRegistry)

	j := &journal{}
	RegisterModule(&orderModule{id: "test.dup", journal: j})

	tests := []struct {
		name string
		id   ModuleID
	}{
		{"empty", ""},
		{"no namespace", "plain"},
		{"empty name", "store."},
		{"empty namespace", ".memory"},
		{"duplicate", "test.dup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("RegisterModule(%q) did not panic", tt.id)
				}
			}()
			RegisterModule(&orderModule{id: tt.id, journal: j})
		})
	}
}

// reloadModule records the config value it sees on Reload.
type reloadModule struct {
	orderModule
	err error
}

func (m *reloadModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID:  m.id,
		New: func() Module { return &reloadModule{orderModule: orderModule{id: m.id, journal: m.journal}, err: m.err} },
	}
}

func (m *reloadModule) Reload(ctx *AppContext) error {
	node, ok := ctx.ModuleConfig(m.id)
	if !ok {
		m.journal.add("reload " + string(m.id) + " without config")
		return m.err
	}
	var cfg struct {
		Value string `yaml:"value"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	m.journal.add("reload " + string(m.id) + " " + cfg.Value)
	return m.err
}

func TestApp_ReloadModules(t *testing.T) {
	t.Cleanup(resetRegistry)

	j := &journal{}
	boom := errors.New("boom")
	RegisterModule(&reloadModule{orderModule: orderModule{id: "test.r1", journal: j}})
	RegisterModule(&reloadModule{orderModule: orderModule{id: "test.r2", journal: j}, err: boom})
	RegisterModule(&orderModule{id: "test.plain", journal: j})

	ctx := NewAppContext(nil, "/data")
	app := NewApp(ctx)
	if err := app.LoadModules([]string{"test.r1", "test.r2", "test.plain"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte("value: v2"), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	next := ctx.WithModuleConfigs(map[string]yaml.Node{"test.r1": *doc.Content[0]})

	err := app.ReloadModules(next)
	if !errors.Is(err, boom) {
		t.Fatalf("ReloadModules err = %v, want boom", err)
	}

	want := []string{"reload test.r1 v2", "reload test.r2 without config"}
	if got := j.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestApp_LoadModulesTwice(t *testing.T) {
	t.Cleanup(resetRegistry)

	j := &journal{}
	RegisterModule(&orderModule{id: "test.twice", journal: j})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.twice", "test.twice"}); err == nil {
		t.Fatal("expected error for a module listed twice")
	}
	if ids := app.ModuleIDs(); len(ids) != 0 {
		t.Errorf("ModuleIDs = %v, want none after failed load", ids)
	}
}
