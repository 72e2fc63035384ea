// Package registry provides the directory of game servers registered with the hub.
//
// The registry package implements:
//   - Thread-safe registration, update and removal of server records
//   - Sequential server ID assignment
//   - Eviction of stale duplicate registrations
//   - Stable, insertion-ordered pagination for directory queries
//
// Core Types:
//
// Registry is the shared container. Record is the directory entry of one game
// server. Owner is the handle of the connection that registered a record;
// removing a record closes its owner, which cancels the connection worker
// and releases the socket. Release removes a record without closing the
// owner, for connections deregistering themselves.
//
// Server Identifiers:
//
// A new record gets one more than the highest active ID, or 0 when the
// registry is empty. PendingID (-1) marks a connection that has not completed
// its handshake; such connections never hold a record.
//
// Duplicates:
//
// A game server that restarts without shutting down cleanly reconnects with
// the same (name, port, address). Register evicts every active record with
// that identity before inserting the new one, inside the same critical
// section, so two racing registrations can never both survive.
//
// Usage:
//
//	reg := registry.New()
//
//	rec, evicted := reg.Register(registry.Record{Name: "Friday", IPv4: "10.0.0.2", Port: 3700}, conn)
//
//	page := reg.Page(0, protocol.PageSize)
//
//	reg.Remove(conn)
package registry
