// Package server manages HTTP listener lifecycle: non-blocking start,
// graceful shutdown, and signal handling.
package server
