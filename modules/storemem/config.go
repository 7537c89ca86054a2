package storemem

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const defaultPollInterval = 250 * time.Millisecond

// Router kinds accepted in RouterConfig.Type.
const (
	RouterPayload   = "payload"
	RouterException = "exception"
	RouterHeader    = "header"
)

// Config holds the store.memory module configuration.
type Config struct {
	// IndividualCapacity caps the flat message space. Zero is unbounded.
	IndividualCapacity int `yaml:"individual_capacity"`

	// GroupCapacity caps each group. Zero is unbounded.
	GroupCapacity int `yaml:"group_capacity"`

	// UpperBoundTimeout is how long adds wait on a full group. Zero fails
	// immediately; a negative value waits until the request is cancelled.
	UpperBoundTimeout time.Duration `yaml:"upper_bound_timeout"`

	// CopyOnGet returns detached group snapshots from reads instead of the
	// live groups.
	CopyOnGet bool `yaml:"copy_on_get"`

	// TimeoutOnIdle makes expiry measure from the last change to a group.
	TimeoutOnIdle bool `yaml:"timeout_on_idle"`

	// PollInterval bounds how long a blocked channel receiver sleeps.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Channels lists the group-backed channels to create.
	Channels []string `yaml:"channels"`

	// Types declares payload types for the type-keyed routers.
	Types []TypeConfig `yaml:"types"`

	// Routers declares the mapping routers.
	Routers []RouterConfig `yaml:"routers"`
}

// TypeConfig declares one node of the router type graph.
type TypeConfig struct {
	Name       string   `yaml:"name"`
	Super      string   `yaml:"super"`
	Interfaces []string `yaml:"interfaces"`
	Interface  bool     `yaml:"interface"`
}

// RouterConfig declares one mapping router.
type RouterConfig struct {
	Name               string            `yaml:"name"`
	Type               string            `yaml:"type"`
	Header             string            `yaml:"header"`
	Prefix             string            `yaml:"prefix"`
	Suffix             string            `yaml:"suffix"`
	ResolutionRequired bool              `yaml:"resolution_required"`
	IgnoreSendFailures bool              `yaml:"ignore_send_failures"`
	DefaultOutput      string            `yaml:"default_output"`
	Mappings           map[string]string `yaml:"mappings"`
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.IndividualCapacity < 0 {
		errs = append(errs, fmt.Errorf("storemem: individual_capacity must be non-negative, got %d", c.IndividualCapacity))
	}
	if c.GroupCapacity < 0 {
		errs = append(errs, fmt.Errorf("storemem: group_capacity must be non-negative, got %d", c.GroupCapacity))
	}

	seen := make(map[string]bool)
	for i, name := range c.Channels {
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("storemem: channels[%d]: name is required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("storemem: duplicate channel %q", name))
		}
		seen[name] = true
	}

	routers := make(map[string]bool)
	for i, r := range c.Routers {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("storemem: routers[%d]: name is required", i))
		} else if routers[r.Name] {
			errs = append(errs, fmt.Errorf("storemem: duplicate router %q", r.Name))
		}
		routers[r.Name] = true

		switch r.Type {
		case RouterPayload, RouterException:
		case RouterHeader:
			if r.Header == "" {
				errs = append(errs, fmt.Errorf("storemem: router %q: header is required", r.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("storemem: router %q: unknown type %q", r.Name, r.Type))
		}
	}
	return errors.Join(errs...)
}

// needsRestart reports whether next differs from c in anything Reload
// cannot apply to a running store.
func (c *Config) needsRestart(next Config) bool {
	if c.IndividualCapacity != next.IndividualCapacity ||
		c.GroupCapacity != next.GroupCapacity ||
		c.UpperBoundTimeout != next.UpperBoundTimeout ||
		c.CopyOnGet != next.CopyOnGet ||
		c.TimeoutOnIdle != next.TimeoutOnIdle ||
		c.PollInterval != next.PollInterval {
		return true
	}
	if !slices.Equal(c.Channels, next.Channels) {
		return true
	}
	return !slices.EqualFunc(c.Types, next.Types, func(a, b TypeConfig) bool {
		return a.Name == b.Name && a.Super == b.Super && a.Interface == b.Interface &&
			slices.Equal(a.Interfaces, b.Interfaces)
	})
}
