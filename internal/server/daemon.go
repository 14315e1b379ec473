// Package server assembles the posternd process: state directories, the
// stores, the provider adapter, and the HTTP API, with signal-driven
// shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/postern-ai/postern/internal/api"
	"github.com/postern-ai/postern/internal/audit"
	"github.com/postern-ai/postern/internal/auth"
	"github.com/postern-ai/postern/internal/config"
	"github.com/postern-ai/postern/internal/provider"
	"github.com/postern-ai/postern/internal/quota"
	"github.com/postern-ai/postern/internal/ratelimit"
	"github.com/postern-ai/postern/internal/replay"
)

// Daemon is the posternd process.
type Daemon struct {
	cfg       config.Config
	layout    config.Layout
	logger    zerolog.Logger
	apiServer *api.Server
	replays   *replay.Store
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewDaemon creates a Daemon from validated config and a resolved layout.
func NewDaemon(cfg config.Config, layout config.Layout, logger zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:    cfg,
		layout: layout,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run starts all subsystems and blocks until a signal is received or Stop
// is called.
func (d *Daemon) Run() error {
	if err := d.layout.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}

	auditLog := audit.New(d.layout.AuditPath)
	d.replays = replay.New(d.layout.ReplayDir, d.logger)
	authn := auth.New(d.cfg.Auth, d.replays)
	limiter := ratelimit.New(d.cfg.Server.RequestsPerMinute)
	sendQuota := quota.New(d.layout.SendCountersPath,
		d.cfg.Outbound.MaxEmailsPerHour, d.cfg.Outbound.MaxEmailsPerDay)
	calendarQuota := quota.New(d.layout.CalendarCountersPath,
		d.cfg.CalendarWrite.MaxEventsPerHour, d.cfg.CalendarWrite.MaxEventsPerDay)

	prov, err := d.buildProvider()
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	d.apiServer = api.New(d.cfg, authn, limiter, auditLog, sendQuota, calendarQuota, prov, d.logger)
	apiErrCh := make(chan error, 1)
	go func() {
		apiErrCh <- d.apiServer.Start()
	}()

	// Expired replay markers also get swept on admission; this keeps the
	// directory tidy through idle stretches.
	go d.sweepLoop()

	d.logger.Info().
		Str("host", d.cfg.Server.Host).
		Int("port", d.cfg.Server.Port).
		Str("dataDir", d.layout.DataDir).
		Str("provider", d.cfg.Provider.Mode).
		Msg("posternd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-d.stopCh:
		d.logger.Info().Msg("stop requested, shutting down")
	case err := <-apiErrCh:
		if err != nil {
			d.logger.Error().Err(err).Msg("API server error")
		}
	}

	return d.shutdown()
}

// Stop signals the daemon to shut down. Safe to call from another goroutine.
func (d *Daemon) Stop() {
	close(d.stopCh)
}

func (d *Daemon) buildProvider() (provider.Provider, error) {
	switch d.cfg.Provider.Mode {
	case config.ProviderModeCLI:
		return provider.NewCLI(d.cfg.Provider.Command, d.cfg.Gmail.Account, d.logger), nil
	case config.ProviderModeGoogle:
		return provider.NewGoogle(context.Background(), d.cfg.Provider.Google, d.cfg.Gmail.Account, d.logger)
	default:
		return nil, fmt.Errorf("unknown provider mode %q", d.cfg.Provider.Mode)
	}
}

func (d *Daemon) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.replays.Sweep()
		case <-d.doneCh:
			return
		}
	}
}

func (d *Daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(d.doneCh)
	if d.apiServer != nil {
		d.apiServer.Shutdown(ctx)
	}
	return nil
}
