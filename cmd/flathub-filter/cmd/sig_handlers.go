package cmd

import (
	"context"
	"os"
	"os/signal"
)

// registerSIGINTHandler cancels the command's context on SIGINT, so the run cleans up
// before exiting. The handler goes away with the context.
func registerSIGINTHandler(ctx context.Context, cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		defer signal.Stop(signalChan)
		select {
		case <-signalChan:
			warningf("received SIGINT, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()
}

// commandContext returns the context of a command, cancelled on SIGINT
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	registerSIGINTHandler(ctx, cancel)
	return ctx, cancel
}
