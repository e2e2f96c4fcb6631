package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tftstats/internal/logging"
)

// SetupSignalHandler returns a context cancelled on the first SIGINT or
// SIGTERM. shutdownFunc runs before the cancel; a second signal exits
// immediately.
func SetupSignalHandler(logger *logging.Logger, shutdownFunc func(context.Context)) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Warn("Shutdown signal received, finishing current work", "signal", sig.String())

		if shutdownFunc != nil {
			shutdownFunc(ctx)
		}
		cancel()

		sig = <-sigCh
		logger.Error("Second signal received, exiting now", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx
}
