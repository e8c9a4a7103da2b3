// Package geofence holds the in-memory model of connected sessions and
// circular zones, the crowd recount, the role-specific state views and the
// per-connection message protocol.
//
// A Tracker is owned by exactly one goroutine (the server hub). Every
// mutating message runs mutate, recount and broadcast back to back on that
// goroutine, so no partially updated state is ever observable by clients.
package geofence
