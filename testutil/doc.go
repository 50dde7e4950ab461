// Package testutil provides shared test doubles for the orchestration core,
// chiefly a configurable in-memory SessionContext so capability and registry
// tests do not need a full orchestrator.
package testutil
