// Package core provides the module system foundation for sbus.
package core

import "strings"

// ModuleID identifies a module. IDs are dotted, namespace first
// (e.g. "store.memory", "gateway.http").
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := range len(id) {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// Name returns the part of the ID after the first dot, or the whole ID
// when it has no namespace.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is the unique module identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is implemented by every sbus module. Behavior beyond identification
// is opt-in through the lifecycle interfaces (Configurable, Provisioner, ...).
type Module interface {
	ModuleInfo() ModuleInfo
}
