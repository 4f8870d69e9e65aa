package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// SignalError is the cancellation cause recorded when the supervisor receives
// a termination signal.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received signal %v", e.Signal)
}

// WithSignals returns a context that is cancelled with a *SignalError cause on
// SIGINT or SIGTERM. stop releases the signal registration.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel(context.Canceled)
	}
}

// signalFrom extracts the signal that cancelled ctx. Any other cancellation
// is treated as SIGTERM.
func signalFrom(ctx context.Context) os.Signal {
	var sigErr *SignalError
	if errors.As(context.Cause(ctx), &sigErr) {
		return sigErr.Signal
	}
	return syscall.SIGTERM
}
