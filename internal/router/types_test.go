package router

import (
	"errors"
	"reflect"
	"testing"
)

type runnable interface{ Run() }

type serializable interface{ Serialize() []byte }

// task implements both runnable and serializable.
type task struct{}

func (task) Run()              {}
func (task) Serialize() []byte { return nil }

func newInterfaceRegistry(t *testing.T) *TypeRegistry {
	t.Helper()
	types := NewTypeRegistry()
	if err := types.BindInterface("runnable", reflect.TypeFor[runnable]()); err != nil {
		t.Fatalf("BindInterface(runnable): %v", err)
	}
	if err := types.BindInterface("serializable", reflect.TypeFor[serializable]()); err != nil {
		t.Fatalf("BindInterface(serializable): %v", err)
	}
	return types
}

func TestTypeRegistry_Distance(t *testing.T) {
	t.Parallel()

	types := NewTypeRegistry()
	tests := []struct {
		name      string
		candidate string
		payload   any
		want      int
	}{
		{"exact string", "string", "hello", 0},
		{"root from string", RootType, "hello", RootTier},
		{"number from int", "number", 42, 2},
		{"exact int", "int", 42, 0},
		{"root from int", RootType, 42, RootTier},
		{"string from int", "string", 42, NoMatch},
		{"error interface", "error", errors.New("x"), InterfaceTier + 1},
		{"json object", "object", map[string]any{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := types.Distance(tt.candidate, types.Describe(tt.payload))
			if got != tt.want {
				t.Errorf("Distance(%s, %T) = %d, want %d", tt.candidate, tt.payload, got, tt.want)
			}
		})
	}
}

func TestTypeRegistry_ClosestMatch(t *testing.T) {
	t.Parallel()

	types := NewTypeRegistry()
	candidates := []string{"string", "number"}

	got, err := types.ClosestMatch(types.Describe("hello"), candidates)
	if err != nil || got != "string" {
		t.Errorf("ClosestMatch(string) = (%q, %v), want string", got, err)
	}

	got, err = types.ClosestMatch(types.Describe(42), candidates)
	if err != nil || got != "number" {
		t.Errorf("ClosestMatch(int) = (%q, %v), want number", got, err)
	}

	got, err = types.ClosestMatch(types.Describe(true), candidates)
	if err != nil || got != "" {
		t.Errorf("ClosestMatch(bool) = (%q, %v), want no match", got, err)
	}

	// A superclass loses to the exact type.
	got, _ = types.ClosestMatch(types.Describe(42), []string{RootType, "number", "int"})
	if got != "int" {
		t.Errorf("ClosestMatch = %q, want int", got)
	}
}

func TestTypeRegistry_Ambiguity(t *testing.T) {
	t.Parallel()

	types := newInterfaceRegistry(t)
	_, err := types.ClosestMatch(types.Describe(task{}), []string{"runnable", "serializable"})
	if !errors.Is(err, ErrAmbiguousMapping) {
		t.Errorf("err = %v, want ErrAmbiguousMapping", err)
	}

	// The exact type beats both interfaces.
	if err := types.Register(TypeDescriptor{Name: "job"}); err != nil {
		t.Fatalf("Register(job): %v", err)
	}
	if err := types.Register(TypeDescriptor{Name: "task", Super: "job"}); err != nil {
		t.Fatalf("Register(task): %v", err)
	}
	if err := types.Bind(task{}, "task"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	got, err := types.ClosestMatch(types.Describe(task{}), []string{"runnable", "serializable", "task"})
	if err != nil || got != "task" {
		t.Errorf("ClosestMatch = (%q, %v), want task", got, err)
	}
}

func registerAll(t *testing.T, types *TypeRegistry, descs ...TypeDescriptor) {
	t.Helper()
	for _, d := range descs {
		if err := types.Register(d); err != nil {
			t.Fatalf("Register(%s): %v", d.Name, err)
		}
	}
}

func TestTypeRegistry_InterfaceInheritance(t *testing.T) {
	t.Parallel()

	types := NewTypeRegistry()
	registerAll(t, types,
		TypeDescriptor{Name: "closeable", Interface: true},
		TypeDescriptor{Name: "stream", Interfaces: []string{"closeable"}, Interface: true},
		TypeDescriptor{Name: "file", Interfaces: []string{"stream"}},
	)

	file, _ := types.Descriptor("file")
	if d := types.Distance("stream", file); d != InterfaceTier+1 {
		t.Errorf("Distance(stream, file) = %d, want %d", d, InterfaceTier+1)
	}
	if d := types.Distance("closeable", file); d != InterfaceTier+3 {
		t.Errorf("Distance(closeable, file) = %d, want %d", d, InterfaceTier+3)
	}
	got, err := types.ClosestMatch(file, []string{"closeable", "stream"})
	if err != nil || got != "stream" {
		t.Errorf("ClosestMatch = (%q, %v), want stream", got, err)
	}
}

func TestTypeRegistry_SupertypeBeatsInterface(t *testing.T) {
	t.Parallel()

	types := NewTypeRegistry()
	registerAll(t, types,
		TypeDescriptor{Name: "closer", Interface: true},
		TypeDescriptor{Name: "base"},
		TypeDescriptor{Name: "middle", Super: "base"},
		TypeDescriptor{Name: "job", Super: "middle", Interfaces: []string{"closer"}},
	)
	job, _ := types.Descriptor("job")

	tests := []struct {
		name       string
		candidates []string
		want       string
	}{
		{"direct supertype", []string{"base", "closer"}, "base"},
		{"nearest supertype", []string{"base", "middle", "closer"}, "middle"},
		{"interface over root", []string{RootType, "closer"}, "closer"},
		{"root alone", []string{RootType}, RootType},
	}
	for _, tt := range tests {
		got, err := types.ClosestMatch(job, tt.candidates)
		if err != nil || got != tt.want {
			t.Errorf("%s: ClosestMatch(%v) = (%q, %v), want %s", tt.name, tt.candidates, got, err, tt.want)
		}
	}
}

func TestTypeRegistry_InheritedInterfaceDistance(t *testing.T) {
	t.Parallel()

	types := NewTypeRegistry()
	registerAll(t, types,
		TypeDescriptor{Name: "runner", Interface: true},
		TypeDescriptor{Name: "closer", Interface: true},
		TypeDescriptor{Name: "worker", Interfaces: []string{"runner"}},
		TypeDescriptor{Name: "batch", Super: "worker", Interfaces: []string{"closer"}},
	)
	batch, _ := types.Descriptor("batch")

	// An interface declared on the type itself is closer than one declared
	// on its supertype.
	got, err := types.ClosestMatch(batch, []string{"runner", "closer"})
	if err != nil || got != "closer" {
		t.Errorf("ClosestMatch = (%q, %v), want closer", got, err)
	}
	if d := types.Distance("runner", batch); d != InterfaceTier+3 {
		t.Errorf("Distance(runner, batch) = %d, want %d", d, InterfaceTier+3)
	}
	if d := types.Distance("closer", TypeDescriptor{Name: "worker", Interfaces: []string{"runner"}}); d != NoMatch {
		t.Errorf("Distance(closer, worker) = %d, want NoMatch", d)
	}
}

func TestTypeRegistry_RegisterValidation(t *testing.T) {
	t.Parallel()

	types := NewTypeRegistry()
	if err := types.Register(TypeDescriptor{}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := types.Register(TypeDescriptor{Name: "x", Super: "missing"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
	if err := types.Register(TypeDescriptor{Name: "x", Interfaces: []string{"string"}}); err == nil {
		t.Error("expected error for non-interface in Interfaces")
	}
	if err := types.Register(TypeDescriptor{Name: RootType}); err == nil {
		t.Error("expected error when redefining the root")
	}

	types.Register(TypeDescriptor{Name: "a"})
	types.Register(TypeDescriptor{Name: "b", Super: "a"})
	if err := types.Register(TypeDescriptor{Name: "a", Super: "b"}); err == nil {
		t.Error("expected cycle error")
	}
	if err := types.BindInterface("notiface", reflect.TypeFor[int]()); err == nil {
		t.Error("expected error binding a non-interface")
	}
}

type namedPayload struct{}

func (namedPayload) TypeName() string { return "custom.payload" }

func TestTypeRegistry_NameOf(t *testing.T) {
	t.Parallel()

	types := NewTypeRegistry()
	if got := types.NameOf("x"); got != "string" {
		t.Errorf("NameOf(string) = %q", got)
	}
	if got := types.NameOf(namedPayload{}); got != "custom.payload" {
		t.Errorf("NameOf(TypeNamer) = %q", got)
	}
	if got := types.NameOf(task{}); got != "router.task" {
		t.Errorf("NameOf(task) = %q, want router.task", got)
	}
	if got := types.NameOf(nil); got != "" {
		t.Errorf("NameOf(nil) = %q, want empty", got)
	}
}
