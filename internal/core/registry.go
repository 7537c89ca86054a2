package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// moduleRegistry holds the modules compiled into the binary, keyed by ID.
type moduleRegistry struct {
	mu    sync.RWMutex
	infos map[ModuleID]ModuleInfo
}

var registry = &moduleRegistry{infos: make(map[ModuleID]ModuleInfo)}

func (r *moduleRegistry) add(info ModuleInfo) error {
	switch {
	case info.ID == "":
		return fmt.Errorf("core: module ID must not be empty")
	case info.ID.Namespace() == "" || info.ID.Name() == "" || info.ID.Name() == string(info.ID):
		return fmt.Errorf("core: module ID %q must be <namespace>.<name>", info.ID)
	case info.New == nil:
		return fmt.Errorf("core: module %s: New must not be nil", info.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.infos[info.ID]; dup {
		return fmt.Errorf("core: module already registered: %s", info.ID)
	}
	r.infos[info.ID] = info
	return nil
}

// sorted returns the modules accepted by keep, ordered by ID.
func (r *moduleRegistry) sorted(keep func(ModuleID) bool) []ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ModuleInfo
	for _, id := range slices.Sorted(maps.Keys(r.infos)) {
		if keep == nil || keep(id) {
			out = append(out, r.infos[id])
		}
	}
	return out
}

// RegisterModule adds a module to the compiled-in set. It panics on an
// empty or undotted ID, a nil constructor or a duplicate, since it is
// meant to run from init().
func RegisterModule(instance Module) {
	if err := registry.add(instance.ModuleInfo()); err != nil {
		panic(err)
	}
}

// GetModule looks a module up by ID.
func GetModule(id string) (ModuleInfo, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	info, ok := registry.infos[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module, ordered by ID.
func GetModules() []ModuleInfo {
	return registry.sorted(nil)
}

// GetModulesByNamespace returns the modules of one namespace ("store"
// matches "store.memory"), ordered by ID.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return registry.sorted(func(id ModuleID) bool {
		return id.Namespace() == namespace
	})
}

// Namespaces returns the distinct namespaces of the registered modules.
func Namespaces() []string {
	var out []string
	for _, info := range GetModules() {
		ns := info.ID.Namespace()
		if i, found := slices.BinarySearchFunc(out, ns, cmp.Compare); !found {
			out = slices.Insert(out, i, ns)
		}
	}
	return out
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.infos = make(map[ModuleID]ModuleInfo)
}
