// Package server implements the HTTP and WebSocket surface of the Hood chat relay.
//
// The implementation is organized into specialized files for configuration, the
// hub event loop, clients, operation dispatch, routing, and HTTP handlers. Room
// membership itself lives in the presence package; the hub only turns its
// results into events on the right connections.
package server
