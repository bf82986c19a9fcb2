package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blereader/internal/connection"
	"github.com/srg/blereader/internal/device"
	goble "github.com/srg/blereader/internal/device/go-ble"
	"github.com/srg/blereader/pkg/config"
)

// adapterFactory opens the BLE adapter and returns it with its release func.
// This is a variable so that it can be overridden in tests.
var adapterFactory = func(logger *logrus.Logger) (device.Adapter, func()) {
	a := goble.NewAdapter(logger)
	return a, func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close BLE adapter")
		}
	}
}

// session bundles what every link command needs
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	manager *connection.Manager
	release func()
}

// loadConfig reads --config and applies the --target override
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if target, _ := cmd.Flags().GetString("target"); target != "" {
		cfg.Target.DeviceID = target
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openSession loads the config, opens the adapter and starts a connection manager
func openSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts ...connection.Option) (*session, error) {
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	adapter, release := adapterFactory(logger)
	mgr := connection.NewManager(adapter, cfg, logger, opts...)
	if err := mgr.Start(ctx); err != nil {
		release()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, manager: mgr, release: release}, nil
}

// Close stops the manager, then drops every link the adapter still holds
func (s *session) Close() {
	s.manager.Close()
	s.release()
}

// targetState returns the current state of the configured target
func (s *session) targetState() device.ConnectionState {
	state, _ := s.manager.ConnectionStatus(s.cfg.Target.DeviceID)
	return state
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM
func signalContext(parent context.Context, cmd *cobra.Command, message string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\n"+message)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
