package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sbus/internal/core"
)

// StoreService is the service name under which the message store is
// published on the AppContext.
const StoreService = "store.messages"

// SchedulerService is the service name under which the reaper publishes
// its Scheduler.
const SchedulerService = "reaper.scheduler"

func init() {
	core.RegisterModule(&Module{})
}

// Config configures the reaper.cron module.
type Config struct {
	// Schedule is a cron expression or descriptor. Defaults to DefaultSchedule.
	Schedule string `yaml:"schedule"`

	// Timeout is the group age past which a group expires.
	Timeout time.Duration `yaml:"timeout"`
}

// Module is the reaper.cron module. It expires stale groups of the store
// published by the store module.
type Module struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "reaper.cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	if m.config.Schedule == "" {
		m.config.Schedule = DefaultSchedule
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger
	m.scheduler = NewScheduler(m.logger)
	ctx.RegisterService(SchedulerService, m.scheduler)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.Timeout <= 0 {
		return errors.New("reaper: timeout must be positive")
	}
	return ValidateSchedule(m.config.Schedule)
}

// Start implements core.Starter.
func (m *Module) Start() error {
	expirer, ok := core.ServiceAs[Expirer](m.appCtx, StoreService)
	if !ok {
		return fmt.Errorf("reaper: no store registered as %q", StoreService)
	}
	job := &ExpiryJob{
		Store:        expirer,
		Timeout:      m.config.Timeout,
		Logger:       m.logger,
		ScheduleExpr: m.config.Schedule,
	}
	if err := m.scheduler.RegisterJob(job); err != nil {
		return err
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}
