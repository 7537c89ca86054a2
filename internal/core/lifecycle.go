package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// A module opts into each lifecycle step by implementing its interface.
// App.LoadModules runs Configure, Provision and Validate per module in load
// order; App.Start and App.Stop follow; App.ReloadModules may run any
// number of times in between.

// Configurable modules decode their section of the modules map.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules build their components and publish services. Only
// services of modules loaded earlier are visible at this point.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their configuration after Provision. Validate
// must not change state.
type Validator interface {
	Validate() error
}

// Starter modules launch listeners, schedules and goroutines. Every module
// has been provisioned, so late service lookups succeed here.
type Starter interface {
	Start() error
}

// Stopper modules release what Start (or Provision) acquired. ctx carries
// the shutdown deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules apply a changed configuration in place. ctx carries the
// new module sections; see AppContext.ModuleConfig.
type Reloader interface {
	Reload(ctx *AppContext) error
}
