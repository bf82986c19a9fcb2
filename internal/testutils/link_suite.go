package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/pkg/config"
)

// Default target used by LinkSuite
const (
	TargetID             = "1C9C427C-6039-4455-A973-405D28655412"
	TargetService        = "181D"
	TargetCharacteristic = "2A9D"
)

// LinkSuite provides a reusable test suite with a scriptable fake adapter and a
// configuration pointing at the default target with short timeouts.
//
//	type ManagerSuite struct {
//	    testutils.LinkSuite
//	}
//
//	func (s *ManagerSuite) TestSomething() {
//	    s.Adapter.OnConnect(func(ctx context.Context, id string) error { return errors.New("refused") })
//	    s.Adapter.EmitDiscovered(device.PeripheralInfo{ID: testutils.TargetID})
//	}
//
// Suites that embed LinkSuite and override SetupTest must call LinkSuite.SetupTest first.
type LinkSuite struct {
	suite.Suite

	Adapter *FakeAdapter
	Config  *config.Config
	Logger  *logrus.Logger
	Ctx     context.Context
	Cancel  context.CancelFunc
}

// SetupTest creates a fresh adapter, config and context per test
func (s *LinkSuite) SetupTest() {
	s.Adapter = NewFakeAdapter()
	s.Logger = NewTestLogger()

	s.Config = config.DefaultConfig()
	s.Config.Timeouts = config.TimeoutConfig{
		Connect:    500 * time.Millisecond,
		Services:   500 * time.Millisecond,
		Subscribe:  500 * time.Millisecond,
		Write:      500 * time.Millisecond,
		Disconnect: 500 * time.Millisecond,
		ScanStart:  500 * time.Millisecond,
		Query:      500 * time.Millisecond,
	}

	s.Ctx, s.Cancel = context.WithTimeout(context.Background(), 10*time.Second)
}

// TearDownTest cancels the per-test context
func (s *LinkSuite) TearDownTest() {
	if s.Cancel != nil {
		s.Cancel()
	}
}

// Target returns the PeripheralInfo the target advertises
func (s *LinkSuite) Target() device.PeripheralInfo {
	return device.PeripheralInfo{ID: TargetID, Name: "Scale", RSSI: -50, Connectable: true, Services: []string{TargetService}}
}

// WaitFor waits until cond holds, failing the test with msg otherwise
func (s *LinkSuite) WaitFor(cond func() bool, msg string, args ...any) {
	s.T().Helper()
	s.Require().Eventually(cond, 2*time.Second, 5*time.Millisecond, append([]any{msg}, args...)...)
}

// NeverTrue asserts cond stays false for a short window
func (s *LinkSuite) NeverTrue(cond func() bool, msg string, args ...any) {
	s.T().Helper()
	s.Require().Never(cond, 150*time.Millisecond, 5*time.Millisecond, append([]any{msg}, args...)...)
}
