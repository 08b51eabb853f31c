// Package core wires the bus, reactor, session engine, and drivers into one
// explicit value instead of the global singletons the base spec's redesign
// notes call out (§9: "Global singletons for drivers and the reactor in the
// source should become an explicit Core value threaded through
// constructors").
package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"duskcat/internal/bus"
	"duskcat/internal/config"
	"duskcat/internal/driver"
	"duskcat/internal/packet"
	"duskcat/internal/reactor"
	"duskcat/internal/session"
)

// Core owns every long-lived component for one duskcat client run.
type Core struct {
	Bus     *bus.Bus
	Reactor *reactor.Reactor

	dns    *driver.DNS
	engine *session.Engine
	input  driver.InputDriver // the Ping driver in ping mode, where engine is nil
}

// New builds a Core from a validated Config: it creates the bus, reactor,
// DNS output driver, and whichever single input driver cfg.Driver selects
// (§4.5: "Exactly one output driver and zero-or-one input driver are
// attached per process").
func New(cfg *config.Config) (*Core, error) {
	b := bus.New()
	r := reactor.New()

	dnsDriver, err := driver.NewDNS(cfg.Resolver, cfg.Domain, cfg.RecordTypes)
	if err != nil {
		return nil, fmt.Errorf("core: failed to create DNS driver: %w", err)
	}

	c := &Core{Bus: b, Reactor: r, dns: dnsDriver}

	if cfg.Driver == config.DriverPing {
		c.input = driver.NewPing(dnsDriver)
		return c, nil
	}

	opts := session.Options{
		Name:     cfg.Name,
		Download: cfg.Download,
		Chunk:    cfg.Chunk,
	}
	if cfg.Name != "" {
		opts.SYNOptions |= packet.OptName
	}

	var input driver.InputDriver
	switch cfg.Driver {
	case config.DriverConsole:
		input = driver.NewConsole()
	case config.DriverExec:
		input = driver.NewExec(cfg.ExecCommand)
	case config.DriverListener:
		input = driver.NewListener(cfg.ListenAddr)
	case config.DriverCommand:
		cmdDriver := driver.NewCommand()
		opts.SYNOptions |= cmdDriver.SYNOptions()
		input = cmdDriver
	default:
		return nil, fmt.Errorf("core: unknown driver kind %d", cfg.Driver)
	}
	c.input = input

	engine := session.NewEngine(b, r, dnsDriver, opts)
	c.engine = engine
	dnsDriver.SetHandler(engine.HandleReply)

	return c, nil
}

// Run starts every driver (registering the Ping driver sends its probe),
// kicks the session via the start bus event, and blocks until ctx is
// cancelled. In ping mode the shutdown event also ends the run.
func (c *Core) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.engine == nil {
		c.Bus.Subscribe(bus.EventShutdown, func(any) { cancel() })
	}

	c.dns.Register(c.Reactor)
	if c.input != nil {
		c.input.Register(c.Reactor, c.Bus)
	}

	c.Bus.Publish(bus.EventStart, nil)
	c.Reactor.Run(ctx)
}

// Shutdown releases every component in the exact order §5 specifies:
// session engine, then input drivers, then the output driver, then the bus,
// then the reactor (dnscat.c's cleanup() teardown order, per §12).
func (c *Core) Shutdown() {
	if c.engine != nil && c.engine.Session() != nil {
		c.engine.Session().Close()
	}
	if c.input != nil {
		if err := c.input.Close(); err != nil {
			log.Warn().Err(err).Msg("core: input driver close failed")
		}
	}
	if err := c.dns.Close(); err != nil {
		log.Warn().Err(err).Msg("core: DNS driver close failed")
	}
	// The bus and reactor hold no OS resources of their own; releasing them
	// is simply ceasing to use them, which happens once Run's ctx is
	// cancelled by the caller.
}
