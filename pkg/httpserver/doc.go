// Package httpserver runs the API's http.Server with graceful shutdown and
// serves the health endpoint.
//
// Run binds the listener, blocks until the context is cancelled and then
// drains in-flight requests within the shutdown timeout. Request contexts
// derive from a base context that is cancelled as shutdown starts, so
// server-sent event streams end promptly. Signal handling belongs to the
// caller:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, router)
//
// HealthHandler turns a set of named dependency checks into a JSON
// readiness report that answers 503 when any check fails.
package httpserver
