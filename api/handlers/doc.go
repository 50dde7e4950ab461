// Package handlers implements the HTTP handlers of the Helmsman API.
package handlers
