package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blereader/internal/connection"
	"github.com/srg/blereader/internal/device"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the target and stream measurements",
	Long: `Scans for the configured target, connects as soon as it advertises and prints
every measurement notification until interrupted.

With --reconnect the command rescans with exponential backoff after the link drops
or a scan ends without the target; otherwise it exits with an error.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runReconnect bool
	runDuration  time.Duration
)

func init() {
	runCmd.Flags().BoolVarP(&runReconnect, "reconnect", "r", false, "Rescan and reconnect after the link drops")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
}

// backoffDelay returns the wait before reconnect attempt n: 1s, 2s, 4s... capped at maxDelay
func backoffDelay(attempt int, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 30 {
		return maxDelay
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ctx, stop := signalContext(cmd.Context(), cmd, "Ctrl+C pressed, disconnecting...")
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	s, err := openSession(ctx, cmd, cfg, connection.WithMeasurementConsumer(func(ev device.ValueUpdated) {
		fmt.Fprintln(out, formatMeasurement(ev))
	}))
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "Waiting for %s...\n", cfg.Target.DeviceID)
	if err := s.manager.RequestScan(); err != nil {
		return err
	}

	err = watchLink(ctx, s, out, runReconnect)
	if errors.Is(err, context.DeadlineExceeded) && runDuration > 0 {
		return nil
	}
	return err
}

// watchLink prints link events until ctx ends. Without reconnect it returns on the
// first disconnect or failure, or when a scan ends and the target never showed up.
func watchLink(ctx context.Context, s *session, out io.Writer, reconnect bool) error {
	var (
		attempt int
		retry   <-chan time.Time
		lastErr error
	)

	schedule := func(reason string) {
		delay := backoffDelay(attempt, s.cfg.Reconnect.MaxBackoff)
		attempt++
		s.logger.WithFields(logrus.Fields{"attempt": attempt, "delay": delay, "reason": reason}).Info("Scheduling rescan")
		fmt.Fprintf(out, "%s, retrying in %s\n", reason, delay)
		retry = time.After(delay)
	}

	// scanEnded handles a scan that finished or failed; done is true when watching should stop
	scanEnded := func(scanErr error) (done bool, err error) {
		state := s.targetState()
		if state.IsConnected() || state == device.StateConnecting || retry != nil {
			return false, nil
		}
		if !reconnect {
			if scanErr != nil {
				return true, scanErr
			}
			return true, fmt.Errorf("%w: %s", ErrTargetNotFound, s.cfg.Target.DeviceID)
		}
		schedule("Target not found")
		return false, nil
	}

	events := s.manager.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-retry:
			retry = nil
			if err := s.manager.RequestScan(); err != nil {
				return err
			}

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrConnectionLost
			}
			if line, show := formatEvent(ev); show {
				fmt.Fprintln(out, line)
			}

			switch ev.Type {
			case connection.EventError:
				lastErr = ev.Err
				// scan-level failures carry no peripheral id
				if ev.PeripheralID == "" {
					if done, err := scanEnded(ev.Err); done {
						return err
					}
				}

			case connection.EventStateChanged:
				if !device.EqualID(ev.PeripheralID, s.cfg.Target.DeviceID) {
					continue
				}
				switch ev.State {
				case device.StateStreaming:
					attempt, lastErr = 0, nil
				case device.StateDisconnected, device.StateFailed:
					if !reconnect {
						if ev.State == device.StateFailed && lastErr != nil {
							return lastErr
						}
						return ErrConnectionLost
					}
					if retry == nil {
						schedule("Link lost")
					}
				}

			case connection.EventScanStopped:
				if done, err := scanEnded(ev.Err); done {
					return err
				}
			}
		}
	}
}
