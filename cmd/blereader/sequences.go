package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/sequence"
)

// sequencesCmd represents the sequences command
var sequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "List configured command sequences",
	Args:  cobra.NoArgs,
	RunE:  runSequences,
}

var sequencesVerbose bool

func init() {
	sequencesCmd.Flags().BoolVarP(&sequencesVerbose, "verbose", "V", false, "Show every step")
}

func runSequences(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	names := sequence.Names(cfg)
	if len(names) == 0 {
		_, err := fmt.Fprintln(out, "No sequences configured")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTEPS\tDESCRIPTION")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, name := range names {
		sc := cfg.Sequences[name]
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(sc.Steps), sc.Description)
		if !sequencesVerbose {
			continue
		}
		for i, st := range sc.Steps {
			line := fmt.Sprintf("  %d. %s %s", i+1, strings.ToLower(st.Op), device.NormalizeUUID(st.Characteristic))
			if len(st.Payload) > 0 {
				line += fmt.Sprintf(" %v", st.Payload)
			}
			if st.Delay > 0 {
				line += fmt.Sprintf(" after %s", st.Delay)
			}
			fmt.Fprintf(w, "%s\t\t\n", line)
		}
	}
	return w.Flush()
}
