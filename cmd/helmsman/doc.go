/*
Package main is the Helmsman server executable.

Subcommands:

  - serve: start the HTTP API and metrics listeners
  - migrate: apply schema migrations and seed the default agent team
  - version: print build information
  - health: probe a running server's liveness endpoint

The middleware chain on the API listener is Recovery, RequestID,
SecurityHeaders, RequestLogger, MetricsMiddleware, RateLimiter (per IP),
and JWTAuth (HS256 bearer tokens carrying the caller identity). The
metrics listener serves /metrics on its own port with no middleware.
Version, BuildTime, and GitCommit are injected through ldflags.
*/
package main
