package dispatch

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blereader/internal/device"
)

type DispatcherTestSuite struct {
	suite.Suite
	d *Dispatcher
}

func (suite *DispatcherTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	suite.d = New(logger)
}

func collector() (Consumer, *[]device.ValueUpdated) {
	var got []device.ValueUpdated
	return func(ev device.ValueUpdated) { got = append(got, ev) }, &got
}

func (suite *DispatcherTestSuite) TestRouting() {
	suite.Run("delivers to the matching key with normalized UUIDs", func() {
		// GOAL: Verify UUID form does not matter for routing
		//
		// TEST SCENARIO: Subscribe with short UUIDs → dispatch with full SIG UUIDs → consumer called once

		consumer, got := collector()
		suite.d.Subscribe(NewKey("P1", "181D", "2A9D"), consumer)

		ok := suite.d.Dispatch(device.ValueUpdated{
			PeripheralID:     "p1",
			ServiceID:        "0000181d-0000-1000-8000-00805f9b34fb",
			CharacteristicID: "00002a9d-0000-1000-8000-00805f9b34fb",
			Value:            []byte{0x02, 0x10, 0x27},
		})

		suite.Assert().True(ok, "MUST report delivery")
		suite.Require().Len(*got, 1)
		suite.Assert().Equal([]byte{0x02, 0x10, 0x27}, (*got)[0].Value)
	})

	suite.Run("event without service matches any service", func() {
		consumer, got := collector()
		suite.d.Subscribe(NewKey("p2", "13333333-3333-3333-3333-333333333337", "13333333-3333-3333-3333-333333330003"), consumer)

		ok := suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p2", CharacteristicID: "13333333-3333-3333-3333-333333330003", Value: []byte{4}})

		suite.Assert().True(ok)
		suite.Assert().Len(*got, 1)
	})

	suite.Run("unmatched events are dropped", func() {
		suite.Assert().False(suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p1", ServiceID: "181d", CharacteristicID: "2a9e"}))
		suite.Assert().False(suite.d.Dispatch(device.ValueUpdated{PeripheralID: "other", CharacteristicID: "2a9d"}))
	})
}

func (suite *DispatcherTestSuite) TestValueIsCopied() {
	var delivered []byte
	suite.d.Subscribe(NewKey("p1", "181d", "2a9d"), func(ev device.ValueUpdated) { delivered = ev.Value })

	raw := []byte{1, 2, 3}
	suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p1", ServiceID: "181d", CharacteristicID: "2a9d", Value: raw})
	raw[0] = 9

	suite.Assert().Equal([]byte{1, 2, 3}, delivered, "MUST NOT alias the adapter buffer")
}

func (suite *DispatcherTestSuite) TestLastSubscriberWins() {
	// GOAL: Verify at most one consumer per key and the latest one receives values
	//
	// TEST SCENARIO: Subscribe A → subscribe B on same key → dispatch → only B called → A.Unsubscribe is a no-op

	consumerA, gotA := collector()
	consumerB, gotB := collector()
	key := NewKey("p1", "181d", "2a9d")

	subA := suite.d.Subscribe(key, consumerA)
	subB := suite.d.Subscribe(key, consumerB)
	suite.Assert().Equal(1, suite.d.Len())

	suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p1", ServiceID: "181d", CharacteristicID: "2a9d"})
	suite.Assert().Empty(*gotA)
	suite.Assert().Len(*gotB, 1)

	suite.Assert().False(subA.Active())
	suite.Assert().False(subA.Unsubscribe(), "MUST NOT remove the newer subscription")
	suite.Assert().True(subB.Active())

	suite.Assert().True(subB.Unsubscribe())
	suite.Assert().False(subB.Unsubscribe())
	suite.Assert().Equal(0, suite.d.Len())
}

func (suite *DispatcherTestSuite) TestRevert() {
	suite.Run("restores the replaced consumer", func() {
		// GOAL: Verify a reverted subscription hands the key back to the consumer it replaced
		//
		// TEST SCENARIO: Subscribe A → subscribe B on same key → B.Revert → dispatch → only A called

		consumerA, gotA := collector()
		consumerB, gotB := collector()
		key := NewKey("p1", "181d", "2a9d")

		subA := suite.d.Subscribe(key, consumerA)
		subB := suite.d.Subscribe(key, consumerB)

		suite.Require().True(subB.Revert(), "MUST revert the active subscription")
		suite.Assert().True(subA.Active(), "replaced subscription MUST be active again")
		suite.Assert().False(subB.Active())

		suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p1", ServiceID: "181d", CharacteristicID: "2a9d"})
		suite.Assert().Len(*gotA, 1)
		suite.Assert().Empty(*gotB)
		suite.Assert().False(subB.Revert(), "second revert MUST be a no-op")
	})

	suite.Run("removes the key when nothing was replaced", func() {
		consumer, _ := collector()
		sub := suite.d.Subscribe(NewKey("p3", "181d", "2a9d"), consumer)

		suite.Assert().True(sub.Revert())
		suite.Assert().False(sub.Active())
		suite.Assert().False(suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p3", ServiceID: "181d", CharacteristicID: "2a9d"}))
	})

	suite.Run("outdated subscription leaves the newer one alone", func() {
		consumerA, _ := collector()
		consumerB, gotB := collector()
		key := NewKey("p4", "181d", "2a9d")

		subA := suite.d.Subscribe(key, consumerA)
		suite.d.Subscribe(key, consumerB)

		suite.Assert().False(subA.Revert(), "MUST NOT touch a newer subscription")
		suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p4", ServiceID: "181d", CharacteristicID: "2a9d"})
		suite.Assert().Len(*gotB, 1)
	})
}

func (suite *DispatcherTestSuite) TestDistinctKeysCoexist() {
	c1, got1 := collector()
	c2, got2 := collector()
	suite.d.Subscribe(NewKey("p1", "svc", "0001"), c1)
	suite.d.Subscribe(NewKey("p1", "svc", "0003"), c2)

	suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p1", ServiceID: "svc", CharacteristicID: "0003"})

	suite.Assert().Empty(*got1)
	suite.Assert().Len(*got2, 1)
	suite.Assert().Equal(2, suite.d.Len())
}

func (suite *DispatcherTestSuite) TestNotificationAfterUnsubscribe() {
	// GOAL: Verify a late notification after unsubscribe reaches no consumer and raises nothing
	//
	// TEST SCENARIO: Subscribe → unsubscribe → dispatch → no callback, returns false

	consumer, got := collector()
	key := NewKey("p1", "181d", "2a9d")
	suite.d.Subscribe(key, consumer)
	suite.Require().True(suite.d.Unsubscribe(key))

	suite.Assert().NotPanics(func() {
		suite.Assert().False(suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p1", ServiceID: "181d", CharacteristicID: "2a9d"}))
	})
	suite.Assert().Empty(*got)
}

func (suite *DispatcherTestSuite) TestRemovePeripheral() {
	c, got := collector()
	suite.d.Subscribe(NewKey("p1", "svc", "0001"), c)
	suite.d.Subscribe(NewKey("p1", "svc", "0003"), c)
	suite.d.Subscribe(NewKey("p2", "svc", "0001"), c)

	suite.Assert().Equal(2, suite.d.RemovePeripheral("P1"))
	suite.Assert().Equal(1, suite.d.Len())

	suite.Assert().False(suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p1", ServiceID: "svc", CharacteristicID: "0001"}))
	suite.Assert().True(suite.d.Dispatch(device.ValueUpdated{PeripheralID: "p2", ServiceID: "svc", CharacteristicID: "0001"}))
	suite.Assert().Len(*got, 1)
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}
