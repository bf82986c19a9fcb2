package sequence

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/dispatch"
)

// Link is what the sequencer needs from the connection layer.
type Link interface {
	// Session returns a context that lives as long as the peripheral link,
	// or an ErrNotConnected-kind error if the peripheral is not connected.
	Session(peripheralID string) (context.Context, error)
	// Subscribe registers consumer and enables notifications.
	Subscribe(ctx context.Context, peripheralID, service, characteristic string, consumer dispatch.Consumer) error
	Write(ctx context.Context, peripheralID, service, characteristic string, payload []byte) error
}

// Sequencer executes sequences one step at a time. It never retries.
type Sequencer struct {
	link   Link
	logger *logrus.Logger
	now    func() time.Time
}

// New creates a sequencer bound to link
func New(link Link, logger *logrus.Logger) *Sequencer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sequencer{link: link, logger: logger, now: time.Now}
}

// Run executes seq against peripheralID.
//
// The peripheral must already be connected, otherwise Run fails with ErrNotConnected
// without touching the link. Each step waits its delay after the previous step completes.
// The first failure aborts the run with a *StepError. A disconnect or cancellation of ctx,
// during a delay or an in-flight step, ends the run with an ErrCancelled-kind *StepError.
// The returned report lists the steps that completed.
func (s *Sequencer) Run(ctx context.Context, peripheralID string, seq Sequence) (*Report, error) {
	seq = seq.clone()
	report := &Report{Sequence: seq.Name, PeripheralID: peripheralID, StartedAt: s.now()}
	defer func() { report.FinishedAt = s.now() }()

	session, err := s.link.Session(peripheralID)
	if err != nil {
		return report, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(session, func() {
		cancel(context.Cause(session))
	})
	defer stop()

	logger := s.logger.WithFields(logrus.Fields{"peripheral": peripheralID, "sequence": seq.Name})
	logger.WithField("steps", len(seq.Steps)).Info("Sequence started")

	for i, step := range seq.Steps {
		if err := s.wait(runCtx, session, step.Delay); err != nil {
			return report, s.abort(logger, i, step, cancelled(step, peripheralID, err))
		}

		started := s.now()
		err := s.issue(runCtx, peripheralID, seq, step)
		if cause := interrupted(runCtx, session); cause != nil {
			// the link went away while the step was in flight, whatever the adapter answered
			if err == nil {
				err = cause
			}
			return report, s.abort(logger, i, step, cancelled(step, peripheralID, err))
		}
		if err != nil {
			return report, s.abort(logger, i, step, err)
		}

		report.Steps = append(report.Steps, StepResult{Index: i, Op: step.Op, StartedAt: started, FinishedAt: s.now()})
		logger.WithFields(logrus.Fields{
			"step":           i,
			"op":             step.Op.String(),
			"characteristic": step.Characteristic,
		}).Info("Sequence step completed")
	}

	logger.Info("Sequence completed")
	return report, nil
}

func (s *Sequencer) wait(ctx, session context.Context, d time.Duration) error {
	if d <= 0 {
		return interrupted(ctx, session)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return interrupted(ctx, session)
	case <-session.Done():
		return context.Cause(session)
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// interrupted returns the cause if the session or the caller context is done
func interrupted(ctx, session context.Context) error {
	if session.Err() != nil {
		return context.Cause(session)
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func (s *Sequencer) issue(ctx context.Context, peripheralID string, seq Sequence, step Step) error {
	switch step.Op {
	case OpSubscribe:
		consumer := step.Consumer
		if consumer == nil {
			consumer = seq.OnValue
		}
		if consumer == nil {
			consumer = s.logValue
		}
		return s.link.Subscribe(ctx, peripheralID, step.Service, step.Characteristic, consumer)
	case OpWrite:
		return s.link.Write(ctx, peripheralID, step.Service, step.Characteristic, step.Payload)
	default:
		return &device.Error{Kind: device.KindUnsupported, Op: step.Op.String(), PeripheralID: peripheralID}
	}
}

func (s *Sequencer) abort(logger *logrus.Entry, i int, step Step, err error) error {
	serr := &StepError{Index: i, Op: step.Op, Err: err}
	logger.WithFields(logrus.Fields{
		"step": i,
		"op":   step.Op.String(),
		"kind": serr.Kind(),
	}).WithError(err).Warn("Sequence aborted")
	return serr
}

func (s *Sequencer) logValue(ev device.ValueUpdated) {
	s.logger.WithFields(logrus.Fields{
		"peripheral":     ev.PeripheralID,
		"characteristic": ev.CharacteristicID,
		"value":          ev.Value,
	}).Info("Notification received")
}

func cancelled(step Step, peripheralID string, cause error) error {
	return &device.Error{Kind: device.KindCancelled, Op: step.Op.String(), PeripheralID: peripheralID, Err: cause}
}
