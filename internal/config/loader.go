package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches $${ESCAPED}, ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the configuration file at path. See Parse.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w (in %s)", err, path)
	}
	return cfg, nil
}

// Parse expands environment references in raw and decodes the result.
// ${VAR} takes the variable's value, ${VAR:-default} falls back to
// default when VAR is unset, and $${VAR} is kept literally as ${VAR}.
// Every unset variable without a default is reported at once.
func Parse(raw []byte) (*Config, error) {
	expanded, missing := expandEnv(raw, os.LookupEnv)
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: unresolved variables: %s", strings.Join(missing, ", "))
	}
	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	return &cfg, nil
}

// expandEnv substitutes references using lookup and returns the sorted,
// de-duplicated names that could not be resolved.
func expandEnv(raw []byte, lookup func(string) (string, bool)) ([]byte, []string) {
	var missing []string
	out := envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		if ref[1] == '$' {
			return ref[1:]
		}
		m := envRef.FindSubmatch(ref)
		if v, ok := lookup(string(m[1])); ok {
			return []byte(v)
		}
		if m[2] != nil {
			return m[2]
		}
		if !slices.Contains(missing, string(m[1])) {
			missing = append(missing, string(m[1]))
		}
		return ref
	})
	slices.Sort(missing)
	return out, missing
}
