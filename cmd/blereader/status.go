package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/srg/blereader/internal/connection"
	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/measurement"
	"github.com/srg/blereader/internal/registry"
)

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	activeColor  = color.New(color.FgCyan)
	pendingColor = color.New(color.FgYellow)
	failedColor  = color.New(color.FgRed, color.Bold)
	idleColor    = color.New(color.Faint)
)

// formatState renders a connection state with a color matching its health
func formatState(state device.ConnectionState) string {
	switch state {
	case device.StateStreaming:
		return okColor.Sprint(state.String())
	case device.StateConnected, device.StateServicesResolved:
		return activeColor.Sprint(state.String())
	case device.StateConnecting:
		return pendingColor.Sprint(state.String())
	case device.StateFailed:
		return failedColor.Sprint(state.String())
	default:
		return idleColor.Sprint(state.String())
	}
}

// formatEvent renders a manager event as one status line; ok is false for events not worth printing
func formatEvent(ev connection.Event) (line string, ok bool) {
	ts := ev.At.Format("15:04:05.000")
	switch ev.Type {
	case connection.EventStateChanged:
		return fmt.Sprintf("%s %s %s → %s", ts, ev.PeripheralID, formatState(ev.Previous), formatState(ev.State)), true
	case connection.EventError:
		return fmt.Sprintf("%s %s %s", ts, failedColor.Sprint("error"), FormatUserError(ev.Err)), true
	case connection.EventScanStarted:
		return fmt.Sprintf("%s scanning...", ts), true
	default:
		return "", false
	}
}

// formatMeasurement decodes a weight measurement notification, falling back to hex
func formatMeasurement(ev device.ValueUpdated) string {
	w, err := measurement.Decode(ev.Value)
	if err != nil {
		return fmt.Sprintf("%s % x (%v)", ev.CharacteristicID, ev.Value, err)
	}

	var b strings.Builder
	b.WriteString(okColor.Sprint(w.String()))
	if w.Timestamp != nil {
		fmt.Fprintf(&b, " at %s", w.Timestamp.Format(time.DateTime))
	}
	if w.UserID != nil {
		fmt.Fprintf(&b, " user %d", *w.UserID)
	}
	if w.BMI != nil {
		fmt.Fprintf(&b, " bmi %.1f", *w.BMI)
	}
	return b.String()
}

// printPeripherals writes the registry as a table
func printPeripherals(out io.Writer, records []registry.PeripheralRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No peripherals")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tRSSI\tSTATE\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, rec := range records {
		name := rec.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			name, rec.ID, rec.RSSI, formatState(rec.State), formatAge(time.Since(rec.LastSeen)))
	}
	return w.Flush()
}

// formatAge renders how long ago something happened, rounded for display
func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
}
