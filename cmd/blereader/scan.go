package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blereader/internal/connection"
	"github.com/srg/blereader/internal/device"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan once and list the target if it is visible",
	Long: `Runs a single discovery scan and prints the peripherals the reader manages.
Only the configured target is tracked; when it advertises during the scan the
reader also starts connecting to it.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanServices []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to scan.duration from the config)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Only report peripherals advertising these service UUIDs")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if scanDuration > 0 {
		cfg.Scan.Duration = scanDuration
	}
	if len(scanServices) > 0 {
		filters, err := device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
		cfg.Scan.ServiceFilters = filters
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ctx, stop := signalContext(cmd.Context(), cmd, "Ctrl+C pressed, cancelling scan...")
	defer stop()

	s, err := openSession(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	progress := NewCountdownPrinter(cmd.ErrOrStderr(), "Scanning for peripherals", cfg.Scan.Duration)
	progress.Start()

	if err := s.manager.RequestScan(); err != nil {
		progress.Stop()
		return err
	}
	err = waitScan(ctx, s)
	progress.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return printPeripherals(out, s.manager.VisiblePeripherals())
}

// waitScan blocks until the running scan stops or fails
func waitScan(ctx context.Context, s *session) error {
	events := s.manager.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			switch {
			case ev.Type == connection.EventScanStopped:
				return ev.Err
			case ev.Type == connection.EventError && ev.PeripheralID == "":
				return ev.Err
			}
		}
	}
}
