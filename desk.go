package sshdesk

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/sshdesk/core"
	"pkt.systems/sshdesk/internal/appconfig"
	"pkt.systems/sshdesk/internal/command"
	"pkt.systems/sshdesk/internal/eventbus"
	"pkt.systems/sshdesk/internal/savedhosts"
	"pkt.systems/sshdesk/schema"
)

// Config configures a Desk.
type Config struct {
	Service schema.ServiceConfig
	// HostsFile and HostsKeyStore locate the saved-connection store. Both
	// empty disables saved connections.
	HostsFile           string
	HostsKeyStore       string
	DisableAuditLogging bool
}

// ConfigFromApp maps the file configuration onto a desk config.
func ConfigFromApp(cfg appconfig.Config) Config {
	return Config{
		Service:             cfg.ServiceConfig(),
		HostsFile:           cfg.Hosts.File,
		HostsKeyStore:       cfg.Hosts.KeyStorePath,
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	}
}

// Deps captures dependencies required to build the desk.
type Deps struct {
	ServiceDeps core.ServiceDeps
	// EditFunc overrides how /edit launches the local editor.
	EditFunc command.EditFunc
}

// Desk owns one session service and the pieces a console needs around it.
type Desk struct {
	cfg      Config
	service  core.Service
	bus      *eventbus.Bus
	hosts    *savedhosts.Store
	editFunc command.EditFunc
	logger   pslog.Logger

	mu      sync.Mutex
	handler *command.Handler
}

// New constructs a desk. Events reach the bus and any sink supplied in deps.
func New(cfg Config, deps Deps) (*Desk, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized
	cfg.Service.DisableAuditLogging = cfg.Service.DisableAuditLogging || cfg.DisableAuditLogging

	serviceDeps := deps.ServiceDeps
	logger := serviceDeps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
		serviceDeps.Logger = logger
	}
	bus := eventbus.New(logger)
	if serviceDeps.EventSink == nil {
		serviceDeps.EventSink = bus
	} else if serviceDeps.EventSink != bus {
		serviceDeps.EventSink = eventFanout{sinks: []core.EventSink{serviceDeps.EventSink, bus}}
	}

	var hosts *savedhosts.Store
	if cfg.HostsFile != "" || cfg.HostsKeyStore != "" {
		hosts, err = savedhosts.NewStoreWithLogger(cfg.HostsFile, cfg.HostsKeyStore, logger)
		if err != nil {
			return nil, err
		}
	}

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}
	return &Desk{
		cfg:      cfg,
		service:  service,
		bus:      bus,
		hosts:    hosts,
		editFunc: deps.EditFunc,
		logger:   logger,
	}, nil
}

// Service returns the session service.
func (d *Desk) Service() core.Service { return d.service }

// Bus returns the event bus presentation layers subscribe to.
func (d *Desk) Bus() *eventbus.Bus { return d.bus }

// Hosts returns the saved-connection store, or nil when disabled.
func (d *Desk) Hosts() *savedhosts.Store { return d.hosts }

// Connect opens a session and prepares the command handler for it.
func (d *Desk) Connect(ctx context.Context, entry schema.HostEntry, port int) error {
	if _, err := d.service.Connect(ctx, schema.ConnectRequest{Entry: entry, Port: port}); err != nil {
		return err
	}
	cfg := command.HandlerConfig{
		Entry:               entry,
		EditFunc:            d.editFunc,
		TempDir:             d.cfg.Service.TempDir,
		DisableAuditLogging: d.cfg.Service.DisableAuditLogging,
	}
	if d.hosts != nil {
		cfg.Hosts = d.hosts
	}
	d.mu.Lock()
	d.handler = command.NewHandler(d.service, cfg)
	d.mu.Unlock()
	return nil
}

// Handler returns the command handler for the last successful connect.
func (d *Desk) Handler() (*command.Handler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler == nil {
		return nil, errors.New("desk not connected")
	}
	return d.handler, nil
}

// SaveCurrent stores entry in the saved-connection store.
func (d *Desk) SaveCurrent(entry schema.HostEntry) error {
	if d.hosts == nil {
		return errors.New("saved connections not configured")
	}
	return d.hosts.Add(entry)
}

// Close disconnects and stops the task runner.
func (d *Desk) Close() error {
	err := d.service.Close()
	if err != nil {
		d.logger.Warn("desk close failed", "err", err)
	}
	return err
}
