// Package server implements the HTTP and WebSocket transport for the crowd
// zone hub.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, metrics, and HTTP handlers. All zone and
// session state lives in a geofence.Tracker owned by the Hub goroutine.
package server
