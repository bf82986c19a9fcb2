package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/testutils"
	"github.com/srg/blereader/pkg/config"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

// scanFinds makes every scan report the given peripherals and then stop
func (s *CommandsTestSuite) scanFinds(peripherals ...device.PeripheralInfo) {
	s.Adapter.OnScan(func(context.Context, device.ScanOptions) error {
		for _, p := range peripherals {
			s.Adapter.EmitDiscovered(p)
		}
		s.Adapter.EmitScanStopped(nil)
		return nil
	})
}

func (s *CommandsTestSuite) TestSequencesCommand() {
	out, err := s.ExecuteCommand("sequences", "--verbose")

	s.Require().NoError(err)
	s.Assert().Contains(out, "bake", "default bake sequence MUST be listed")
	s.Assert().Contains(out, "1. subscribe", "verbose listing MUST show steps")
	s.Assert().Contains(out, "[1 95]", "payload MUST be shown")
	s.Assert().Contains(out, "after 500ms", "delay MUST be shown")
}

func (s *CommandsTestSuite) TestSequencesCommand_InvalidConfig() {
	path := testutils.NewTestHelper(s.T()).WriteFile("reader.yaml", "target:\n  device_id: \"\"\n")

	_, err := s.ExecuteCommand("sequences", "--config", path)

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "device_id")
}

// GOAL: Verify scan prints an explicit message when the target never advertises
//
// TEST SCENARIO: scan reports only a foreign peripheral → scan stops → "No peripherals"
func (s *CommandsTestSuite) TestScanCommand_NoPeripherals() {
	s.scanFinds(device.PeripheralInfo{ID: "other"})

	out, err := s.ExecuteCommand("scan")

	s.Require().NoError(err)
	s.Assert().Contains(out, "No peripherals")
	s.Assert().Equal(0, s.Adapter.CallCount("connect"), "foreign peripherals MUST NOT be connected")
}

// GOAL: Verify scan lists the target once it advertised
//
// TEST SCENARIO: scan reports the target → scan stops → table lists target id and name
func (s *CommandsTestSuite) TestScanCommand_ListsTarget() {
	s.scanFinds(s.Target())

	out, err := s.ExecuteCommand("scan")

	s.Require().NoError(err)
	s.Assert().Contains(out, testutils.TargetID)
	s.Assert().Contains(out, "Scale")
}

func (s *CommandsTestSuite) TestScanCommand_InvalidServiceFilter() {
	_, err := s.ExecuteCommand("scan", "--services", "zz-not-hex")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "invalid service UUID")
	s.Assert().Equal(0, s.Adapter.CallCount("scan"), "no scan MUST start on invalid input")
}

// GOAL: Verify run gives up without --reconnect when the target does not show up
//
// TEST SCENARIO: scan stops without the target → run fails with ErrTargetNotFound
func (s *CommandsTestSuite) TestRunCommand_TargetNotFound() {
	s.scanFinds()

	_, err := s.ExecuteCommand("run")

	s.Require().Error(err)
	s.Assert().ErrorIs(err, ErrTargetNotFound)
}

// GOAL: Verify run streams decoded measurements until --duration elapses
//
// TEST SCENARIO: target discovered → streaming → weight notification → decoded line printed → clean exit
func (s *CommandsTestSuite) TestRunCommand_StreamsMeasurements() {
	s.scanFinds(s.Target())
	s.Adapter.OnStartNotification(func(_ context.Context, id, service, characteristic string) error {
		// 15000 * 0.005 kg
		s.Adapter.EmitValue(id, service, characteristic, []byte{0x00, 0x98, 0x3A})
		return nil
	})

	out, err := s.ExecuteCommand("run", "--duration", "400ms")

	s.Require().NoError(err, "an elapsed --duration MUST be a clean exit")
	s.Assert().Contains(out, "75.00 kg")
	s.Assert().Contains(out, "streaming")
}

// GOAL: Verify run reports the link failure when it cannot subscribe and no reconnect was asked for
//
// TEST SCENARIO: target discovered → start notification rejected → Failed → error returned
func (s *CommandsTestSuite) TestRunCommand_SubscribeFailure() {
	s.scanFinds(s.Target())
	s.Adapter.OnStartNotification(func(context.Context, string, string, string) error {
		return errors.New("att: insufficient authentication")
	})

	_, err := s.ExecuteCommand("run")

	s.Require().Error(err)
	s.Assert().ErrorIs(err, device.ErrSubscribe)
}

// GOAL: Verify bake runs the configured sequence after the link settles and prints the bake result
//
// TEST SCENARIO: target streaming → settle → subscribe, crust, bake writes → bake notification → result printed
func (s *CommandsTestSuite) TestBakeCommand() {
	path := testutils.NewTestHelper(s.T()).WriteFile("reader.yaml", "bake:\n  settle_delay: 10ms\n")
	s.scanFinds(s.Target())
	s.Adapter.OnWrite(func(_ context.Context, id, _, characteristic string, _ []byte) error {
		if device.EqualUUID(characteristic, config.BakeCharacteristicUUID) {
			s.Adapter.EmitValue(id, config.BakeServiceUUID, config.BakeCharacteristicUUID, []byte{2})
		}
		return nil
	})

	out, err := s.ExecuteCommand("bake", "--config", path, "--wait", "2s")

	s.Require().NoError(err)
	s.Assert().Contains(out, `Sequence "bake" completed`)
	s.Assert().Contains(out, "Bake result: crispy")

	writes := s.Adapter.CallsOf("write")
	s.Require().Len(writes, 2, "crust and bake MUST be written")
	s.Assert().Equal([]byte{0}, writes[0].Payload)
	s.Assert().Equal([]byte{1, 95}, writes[1].Payload)
}

func (s *CommandsTestSuite) TestBakeCommand_OrderFlags() {
	path := testutils.NewTestHelper(s.T()).WriteFile("reader.yaml", "bake:\n  settle_delay: 10ms\n")
	s.scanFinds(s.Target())

	_, err := s.ExecuteCommand("bake", "--config", path, "--crust", "thin", "--temp", "425", "--wait", "0")

	s.Require().NoError(err)
	writes := s.Adapter.CallsOf("write")
	s.Require().Len(writes, 2)
	s.Assert().Equal([]byte{2}, writes[0].Payload, "thin crust")
	s.Assert().Equal([]byte{1, 169}, writes[1].Payload, "425 big-endian")
}

func (s *CommandsTestSuite) TestBakeCommand_UnknownSequence() {
	_, err := s.ExecuteCommand("bake", "nope")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), `unknown sequence "nope"`)
	s.Assert().Equal(0, s.Adapter.CallCount("scan"), "nothing MUST run for an unknown sequence")
}

func TestCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}
