package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/sbus/internal/core"
)

// Resolve returns the module IDs from the configuration, sorted by
// namespace priority and then by ID. Stores come first so that modules
// provisioned later can find their services.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(priority(a), priority(b)), cmp.Compare(a, b))
	})
	return ids
}

var namespacePriority = map[string]int{
	"store":   0,
	"reaper":  1,
	"gateway": 2,
}

func priority(id string) int {
	if p, ok := namespacePriority[core.ModuleID(id).Namespace()]; ok {
		return p
	}
	return len(namespacePriority)
}
