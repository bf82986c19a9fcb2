package device

import (
	"context"
	"fmt"
	"time"
)

// Await runs fn and waits at most timeout for it to return.
// fn receives a context that is cancelled when Await gives up, so well-behaved adapters
// release resources; fn that ignores it keeps running in the background and its result is discarded.
// A timeout yields an ErrTimeout-kind error, caller cancellation an ErrCancelled-kind error.
// A non-positive timeout waits only for ctx.
func Await(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		return err
	case <-expired:
		return &Error{Kind: KindTimeout, Err: fmt.Errorf("no answer within %s", timeout)}
	case <-ctx.Done():
		return &Error{Kind: KindCancelled, Err: context.Cause(ctx)}
	}
}
