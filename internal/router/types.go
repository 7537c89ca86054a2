package router

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"
)

// RootType is the implicit supertype of every registered type.
const RootType = "any"

// NoMatch is the distance of a candidate the type is not assignable to.
const NoMatch = math.MaxInt

// TypeDescriptor describes one node of the type graph used by class-keyed
// routers.
type TypeDescriptor struct {
	// Name identifies the type in channel mappings.
	Name string
	// Super names the concrete supertype. Empty means RootType.
	Super string
	// Interfaces names the interfaces the type implements directly, or
	// extends when the type is itself an interface.
	Interfaces []string
	// Interface marks the type as an interface.
	Interface bool
}

// TypeNamer lets a payload name its own type descriptor.
type TypeNamer interface {
	TypeName() string
}

// TypeResolver looks up type descriptors by name.
type TypeResolver interface {
	Descriptor(name string) (TypeDescriptor, bool)
}

// TypeRegistry is the explicit type graph consulted by the payload-type and
// error-type routers. Go types are linked to descriptors by binding; a Go
// interface bound with BindInterface is matched against payloads by
// reflection, so payloads implementing it need no explicit declaration.
//
// The registry starts with RootType, string, bool, number (with every Go
// numeric kind beneath it), bytes, object (JSON objects), array (JSON
// arrays), error and stringer.
type TypeRegistry struct {
	mu     sync.RWMutex
	types  map[string]TypeDescriptor
	bound  map[reflect.Type]string
	ifaces map[string]reflect.Type
}

// Compile-time interface guard.
var _ TypeResolver = (*TypeRegistry)(nil)

// NewTypeRegistry creates a registry holding the builtin descriptors.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		types:  make(map[string]TypeDescriptor),
		bound:  make(map[reflect.Type]string),
		ifaces: make(map[string]reflect.Type),
	}

	r.types[RootType] = TypeDescriptor{Name: RootType}
	for _, name := range []string{"string", "bool", "number", "bytes", "object", "array"} {
		r.types[name] = TypeDescriptor{Name: name, Super: RootType}
	}
	numbers := []any{
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0), uintptr(0),
		float32(0), float64(0), complex64(0), complex128(0),
	}
	for _, v := range numbers {
		t := reflect.TypeOf(v)
		r.types[t.String()] = TypeDescriptor{Name: t.String(), Super: "number"}
		r.bound[t] = t.String()
	}
	r.bound[reflect.TypeOf("")] = "string"
	r.bound[reflect.TypeOf(false)] = "bool"
	r.bound[reflect.TypeOf([]byte(nil))] = "bytes"
	r.bound[reflect.TypeOf(map[string]any(nil))] = "object"
	r.bound[reflect.TypeOf([]any(nil))] = "array"

	r.types["error"] = TypeDescriptor{Name: "error", Interface: true}
	r.ifaces["error"] = reflect.TypeFor[error]()
	r.types["stringer"] = TypeDescriptor{Name: "stringer", Interface: true}
	r.ifaces["stringer"] = reflect.TypeFor[fmt.Stringer]()
	return r
}

// Register adds or replaces a descriptor. Its supertype and interfaces must
// already be registered, which also rules out cycles.
func (r *TypeRegistry) Register(desc TypeDescriptor) error {
	if desc.Name == "" {
		return errors.New("router: type descriptor without name")
	}
	if desc.Name == RootType {
		return fmt.Errorf("router: %s cannot be redefined", RootType)
	}
	if desc.Super == "" {
		desc.Super = RootType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if desc.Super == desc.Name {
		return fmt.Errorf("router: type %s cannot extend itself", desc.Name)
	}
	if _, ok := r.types[desc.Super]; !ok {
		return fmt.Errorf("%w: %s (supertype of %s)", ErrUnknownType, desc.Super, desc.Name)
	}
	for _, iface := range desc.Interfaces {
		d, ok := r.types[iface]
		if !ok {
			return fmt.Errorf("%w: %s (interface of %s)", ErrUnknownType, iface, desc.Name)
		}
		if !d.Interface {
			return fmt.Errorf("router: %s is not an interface", iface)
		}
	}
	if _, exists := r.types[desc.Name]; exists && r.reachableLocked(desc, desc.Name) {
		return fmt.Errorf("router: type %s would form a cycle", desc.Name)
	}
	desc.Interfaces = slices.Clone(desc.Interfaces)
	r.types[desc.Name] = desc
	return nil
}

// reachableLocked reports whether target is an ancestor of desc.
func (r *TypeRegistry) reachableLocked(desc TypeDescriptor, target string) bool {
	seen := map[string]bool{}
	var walk func(name string) bool
	walk = func(name string) bool {
		if name == target {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		d, ok := r.types[name]
		if !ok {
			return false
		}
		if d.Super != "" && walk(d.Super) {
			return true
		}
		return slices.ContainsFunc(d.Interfaces, walk)
	}
	if walk(desc.Super) {
		return true
	}
	return slices.ContainsFunc(desc.Interfaces, walk)
}

// Bind links the Go type of sample to the descriptor name. The descriptor
// is registered under RootType when it does not exist yet.
func (r *TypeRegistry) Bind(sample any, name string) error {
	t := reflect.TypeOf(sample)
	if t == nil {
		return errors.New("router: cannot bind nil")
	}

	r.mu.Lock()
	_, known := r.types[name]
	r.mu.Unlock()
	if !known {
		if err := r.Register(TypeDescriptor{Name: name}); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound[t] = name
	return nil
}

// BindInterface registers a Go interface type as an interface descriptor.
// Payloads whose type implements it are treated as implementing name.
func (r *TypeRegistry) BindInterface(name string, iface reflect.Type, extends ...string) error {
	if iface == nil || iface.Kind() != reflect.Interface {
		return fmt.Errorf("router: %v is not an interface type", iface)
	}
	if err := r.Register(TypeDescriptor{Name: name, Interfaces: extends, Interface: true}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ifaces[name] = iface
	return nil
}

// Descriptor implements TypeResolver.
func (r *TypeRegistry) Descriptor(name string) (TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[name]
	return d, ok
}

// Known reports whether name is a registered descriptor.
func (r *TypeRegistry) Known(name string) bool {
	_, ok := r.Descriptor(name)
	return ok
}

// NameOf returns the descriptor name for v: its TypeName when it is a
// TypeNamer, the bound name of its Go type, or the Go type string.
func (r *TypeRegistry) NameOf(v any) string {
	if n, ok := v.(TypeNamer); ok {
		return n.TypeName()
	}
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.bound[t]; ok {
		return name
	}
	return t.String()
}

// Describe returns the descriptor for the runtime type of v. Unregistered
// types get a descriptor directly under RootType. Bound Go interfaces that
// the type implements are added to its interfaces.
func (r *TypeRegistry) Describe(v any) TypeDescriptor {
	name := r.NameOf(v)

	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.types[name]
	if !ok {
		desc = TypeDescriptor{Name: name, Super: RootType}
	}
	desc.Interfaces = slices.Clone(desc.Interfaces)

	if t := reflect.TypeOf(v); t != nil && !desc.Interface {
		for iname, it := range r.ifaces {
			if t.Implements(it) && !slices.Contains(desc.Interfaces, iname) {
				desc.Interfaces = append(desc.Interfaces, iname)
			}
		}
		slices.Sort(desc.Interfaces)
	}
	return desc
}

// lookupLocked resolves a name, treating unknown names as direct children
// of RootType.
func (r *TypeRegistry) lookupLocked(name string) TypeDescriptor {
	if d, ok := r.types[name]; ok {
		return d
	}
	if name == RootType {
		return TypeDescriptor{Name: RootType}
	}
	return TypeDescriptor{Name: name, Super: RootType}
}

// Distance tiers. Concrete supertypes always rank ahead of interfaces, and
// RootType matches everything but only as a last resort.
const (
	InterfaceTier = 1 << 20
	RootTier      = 1 << 21
)

// Distance returns how far candidate is from desc, smaller being closer:
//
//   - 0 when candidate is desc itself;
//   - 2 per step up the concrete supertype chain;
//   - InterfaceTier plus 2k+1 for an interface declared k supertypes up
//     the chain, plus 2 for every extends hop between that declaration and
//     candidate;
//   - RootTier for RootType;
//   - NoMatch when desc is not assignable to candidate.
//
// Candidates at the same distance are equally specific.
func (r *TypeRegistry) Distance(candidate string, desc TypeDescriptor) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.distanceLocked(candidate, desc)
}

func (r *TypeRegistry) distanceLocked(candidate string, desc TypeDescriptor) int {
	switch {
	case candidate == desc.Name:
		return 0
	case candidate == RootType:
		return RootTier
	}

	chain := r.superChainLocked(desc)
	if !r.lookupLocked(candidate).Interface {
		for depth, d := range chain {
			if d.Name == candidate {
				return 2 * depth
			}
		}
		return NoMatch
	}

	best := NoMatch
	for depth, d := range chain {
		if hops, ok := r.extendsHopsLocked(d.Interfaces, candidate); ok {
			best = min(best, InterfaceTier+2*depth+1+2*hops)
		}
	}
	return best
}

// superChainLocked returns desc followed by its concrete supertypes, up to
// but excluding RootType. An interface has no supertype chain.
func (r *TypeRegistry) superChainLocked(desc TypeDescriptor) []TypeDescriptor {
	chain := []TypeDescriptor{desc}
	seen := map[string]bool{desc.Name: true}
	for d := desc; !d.Interface && d.Super != "" && d.Super != RootType && !seen[d.Super]; {
		seen[d.Super] = true
		d = r.lookupLocked(d.Super)
		chain = append(chain, d)
	}
	return chain
}

// extendsHopsLocked searches breadth first from the directly declared
// interfaces for target and reports how many extends edges separate them.
func (r *TypeRegistry) extendsHopsLocked(declared []string, target string) (int, bool) {
	seen := make(map[string]bool, len(declared))
	level := slices.Clone(declared)
	for hops := 0; len(level) > 0; hops++ {
		var next []string
		for _, name := range level {
			if seen[name] {
				continue
			}
			if name == target {
				return hops, true
			}
			seen[name] = true
			next = append(next, r.lookupLocked(name).Interfaces...)
		}
		level = next
	}
	return 0, false
}

// ClosestMatch returns the candidate closest to desc. It returns "" when no
// candidate matches, and an error wrapping ErrAmbiguousMapping when several
// candidates share the smallest distance.
func (r *TypeRegistry) ClosestMatch(desc TypeDescriptor, candidates []string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := NoMatch
	var winners []string
	for _, c := range candidates {
		d := r.distanceLocked(c, desc)
		switch {
		case d < best:
			best = d
			winners = []string{c}
		case d == best && d != NoMatch:
			winners = append(winners, c)
		}
	}

	switch len(winners) {
	case 0:
		return "", nil
	case 1:
		return winners[0], nil
	default:
		slices.Sort(winners)
		return "", fmt.Errorf("%w: %s matches %v with equal weight %d", ErrAmbiguousMapping, desc.Name, winners, best)
	}
}
