package main

import (
	"context"
	"log/slog"
	"time"

	"launchsync/cmd/launchsync/commands"
	"launchsync/lib/telemetry"
	"launchsync/lib/util/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()

	err := telemetry.SetupFromEnv(ctx, "launchsync")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := telemetry.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()

	commands.ExecuteContext(ctx)
}
