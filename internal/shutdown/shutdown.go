// Package shutdown turns process signals into observables and cancellable contexts.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/samber/ro"
)

// Signals stop a running pipeline or scheduler.
var Signals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// Watch emits the first of signals received and completes. The subscription
// errors with the context error if the subscriber's context ends first.
func Watch(signals ...os.Signal) ro.Observable[os.Signal] {
	if len(signals) == 0 {
		signals = Signals
	}

	return ro.NewObservableWithContext(func(ctx context.Context, observer ro.Observer[os.Signal]) ro.Teardown {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)

		go func() {
			select {
			case sig := <-ch:
				observer.NextWithContext(ctx, sig)
				observer.CompleteWithContext(ctx)
			case <-ctx.Done():
				observer.ErrorWithContext(ctx, ctx.Err())
			}
		}()

		return func() {
			signal.Stop(ch)
		}
	})
}

// OnSignal calls fn with the first shutdown signal received while ctx is live.
func OnSignal(ctx context.Context, fn func(os.Signal)) ro.Subscription {
	return Watch().SubscribeWithContext(ctx, ro.OnNextWithContext(func(_ context.Context, sig os.Signal) {
		fn(sig)
	}))
}

// Context returns a child of parent that is cancelled on SIGINT or SIGTERM.
// The returned stop func releases the signal handler.
func Context(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	sub := OnSignal(ctx, func(sig os.Signal) {
		zerolog.Ctx(ctx).Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	})
	return ctx, func() {
		cancel()
		sub.Unsubscribe()
	}
}
