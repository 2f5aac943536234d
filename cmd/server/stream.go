package main

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cnpjota/internal/audit/publisher"
)

// startAuditStream runs the audit flush loop detached from ctx. Entries that
// in-flight requests record while the HTTP server shuts down are still
// streamed; the returned stop cancels the loop and blocks until its final
// flush returns. Close the sink only after stop.
func startAuditStream(ctx context.Context, audit *publisher.Publisher, log *slog.Logger) (stop func()) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var g errgroup.Group
	g.Go(func() error {
		return audit.Run(runCtx)
	})
	return func() {
		cancel()
		if err := g.Wait(); err != nil {
			log.Error("audit stream stopped", "error", err)
			return
		}
		log.Info("audit stream drained", "pending", audit.Pending())
	}
}
