// Package api defines the request and response types of the Helmsman HTTP
// API.
//
// # API Overview
//
// Helmsman exposes a RESTful API for:
//   - Session lifecycle and chat turns against the agent team
//   - Trace history retrieval and live streaming over WebSocket
//   - Agent template and tool catalogue management
//   - Health monitoring and metrics
//
// # Authentication
//
// All /api/v1 endpoints require a JWT bearer token:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
