package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blereader/internal/connection"
	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/pizza"
	"github.com/srg/blereader/internal/sequence"
	"github.com/srg/blereader/pkg/config"
)

// bakeCmd represents the bake command
var bakeCmd = &cobra.Command{
	Use:   "bake [sequence]",
	Short: "Connect and run a command sequence",
	Long: `Connects to the target, waits for the link to settle and runs a configured
command sequence (the bake sequence by default), printing each step and every
notification the sequence subscribed to.

--crust and --temp build a bake order for the pizza peripheral instead of using a
configured sequence.`,
	Example: `  blereader bake
  blereader bake --crust thin --temp 425
  blereader bake my-sequence --config reader.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBake,
}

var (
	bakeCrust string
	bakeTemp  uint16
	bakeWait  time.Duration
)

func init() {
	bakeCmd.Flags().StringVar(&bakeCrust, "crust", "normal", "Crust for a bake order (normal, deep-dish, thin)")
	bakeCmd.Flags().Uint16Var(&bakeTemp, "temp", 351, "Oven temperature for a bake order")
	bakeCmd.Flags().DurationVarP(&bakeWait, "wait", "w", 10*time.Second, "How long to wait for a notification after the last step")
}

// bakeSequence picks the sequence to run from the arguments and flags
func bakeSequence(cmd *cobra.Command, cfg *config.Config, args []string) (sequence.Sequence, error) {
	if len(args) == 0 && (cmd.Flags().Changed("crust") || cmd.Flags().Changed("temp")) {
		crust, err := pizza.ParseCrust(bakeCrust)
		if err != nil {
			return sequence.Sequence{}, err
		}
		order := pizza.DefaultOrder()
		order.Crust = crust
		order.Temperature = bakeTemp
		return order.Sequence(), nil
	}

	name := cfg.Bake.Sequence
	if len(args) == 1 {
		name = args[0]
	}
	return sequence.Lookup(cfg, name)
}

func runBake(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	seq, err := bakeSequence(cmd, cfg, args)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ctx, stop := signalContext(cmd.Context(), cmd, "Ctrl+C pressed, aborting...")
	defer stop()

	s, err := openSession(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "Connecting to %s...\n", cfg.Target.DeviceID)
	if err := s.manager.RequestScan(); err != nil {
		return err
	}
	if err := waitReady(ctx, s); err != nil {
		return err
	}

	// Let the peripheral finish its own post-connect work before commands arrive
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cfg.Bake.SettleDelay):
	}

	values := make(chan device.ValueUpdated, 8)
	seq.OnValue = func(ev device.ValueUpdated) {
		select {
		case values <- ev:
		default:
		}
	}

	fmt.Fprintf(out, "Running %q (%d steps)\n", seq.Name, len(seq.Steps))
	report, err := s.manager.RunSequence(ctx, cfg.Target.DeviceID, seq)
	printReport(out, seq, report)
	if err != nil {
		return err
	}

	return awaitValue(ctx, out, values, bakeWait)
}

// waitReady blocks until the target streams, or fails if the link cannot come up
func waitReady(ctx context.Context, s *session) error {
	var lastErr error
	events := s.manager.Events()
	for {
		if s.targetState() == device.StateStreaming {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrConnectionLost
			}
			switch ev.Type {
			case connection.EventError:
				lastErr = ev.Err
			case connection.EventStateChanged:
				if ev.State == device.StateFailed && lastErr != nil {
					return lastErr
				}
				if ev.State == device.StateDisconnected || ev.State == device.StateFailed {
					return ErrConnectionLost
				}
			case connection.EventScanStopped:
				state := s.targetState()
				if state.CanConnect() {
					if ev.Err != nil {
						return ev.Err
					}
					return fmt.Errorf("%w: %s", ErrTargetNotFound, s.cfg.Target.DeviceID)
				}
			}
		}
	}
}

// printReport lists the steps that completed
func printReport(out io.Writer, seq sequence.Sequence, report *sequence.Report) {
	if report == nil {
		return
	}
	for _, r := range report.Steps {
		step := seq.Steps[r.Index]
		fmt.Fprintf(out, "  %d. %-9s %s", r.Index+1, r.Op, device.NormalizeUUID(step.Characteristic))
		if len(step.Payload) > 0 {
			fmt.Fprintf(out, " [% x]", step.Payload)
		}
		fmt.Fprintf(out, " (%s)\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if report.Completed(len(seq.Steps)) {
		fmt.Fprintf(out, "Sequence %q completed in %s\n", seq.Name, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
}

// awaitValue prints the first notification the sequence receives, or gives up after wait
func awaitValue(ctx context.Context, out io.Writer, values <-chan device.ValueUpdated, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		fmt.Fprintf(out, "No notification within %s\n", wait)
		return nil
	case ev := <-values:
		fmt.Fprintln(out, formatNotification(ev))
		return nil
	}
}

// formatNotification decodes bake results and prints anything else as hex
func formatNotification(ev device.ValueUpdated) string {
	if device.EqualUUID(ev.CharacteristicID, config.BakeCharacteristicUUID) {
		if r, err := pizza.DecodeBakeResult(ev.Value); err == nil {
			return fmt.Sprintf("Bake result: %s", okColor.Sprint(r.String()))
		}
	}
	return fmt.Sprintf("Notification %s: [% x]", device.NormalizeUUID(ev.CharacteristicID), ev.Value)
}
