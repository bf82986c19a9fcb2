package main

import (
	"bytes"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/testutils"
)

// CommandTestSuite runs cobra commands against the fake adapter.
// All cmd/blereader test suites should embed this instead of LinkSuite.
type CommandTestSuite struct {
	testutils.LinkSuite

	originalFactory func(*logrus.Logger) (device.Adapter, func())
}

func (s *CommandTestSuite) SetupTest() {
	s.LinkSuite.SetupTest()

	color.NoColor = true
	resetFlags(rootCmd)

	s.originalFactory = adapterFactory
	adapter := s.Adapter
	adapterFactory = func(*logrus.Logger) (device.Adapter, func()) {
		return adapter, adapter.Close
	}
}

func (s *CommandTestSuite) TearDownTest() {
	adapterFactory = s.originalFactory
	s.LinkSuite.TearDownTest()
}

// syncBuffer is written by the event loop and the command goroutine at once
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(syncBuffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append(args, "--log-level", "silent"))
	err := rootCmd.ExecuteContext(s.Ctx)
	return buf.String(), err
}

// resetFlags restores every flag to its default so tests do not leak into each other
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
