// Package api implements the HTTP REST API and socket endpoint for valuecore.
//
// This package provides:
//   - REST endpoints for value CRUD under /api/v1
//   - The socket endpoint, served on the same listener by the realtime package
//   - A fixed middleware pipeline with a signed session cookie
//   - An error boundary translating apperror values into structured responses
//   - Monitoring: a JSON summary and a Prometheus exposition
//
// # Startup
//
// Server.Start runs its bootstrap steps in a fixed order: pipeline, routes,
// monitoring, error boundary, listener. The listener step connects the
// fan-out broker before the TCP port is bound. When the broker is down,
// realtime.require_broker decides between failing startup and serving with
// node-local broadcasts only.
//
// # Request flow
//
// Every request passes the outer wrappers (request ID, panic recovery,
// instrumentation, tracing) and then the pipeline stages in order: session,
// parameter pollution, security headers, CORS, compression, body parsing
// and development request logging. Handlers return errors instead of
// writing them; the boundary turns taxonomy errors into their declared
// status and anything else into a generic 500.
//
// The socket path bypasses the pipeline: the upgrade is handed straight to
// the socket server, which checks the origin itself.
//
// # Realtime
//
// Value mutations broadcast value:created, value:updated and value:deleted
// to the "values" room. Sockets join and leave it with the
// values:subscribe and values:unsubscribe events.
package api
