// Package websocket provides live WebSocket status feeds for the ServerHub.
//
// The websocket package implements:
//   - Topic subscriptions ("stats" and "room:<id>")
//   - Snapshot fan-out after every hub loop tick
//   - Current state on subscribe
//   - Connection lifecycle management
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client connection is handled by a reader and a
// writer goroutine. The Hub implements service.Publisher; the hub loop hands
// it one snapshot per tick and the Hub hands every topic its part of it.
//
// Message Protocol:
//
// Feeds are read-only. Outgoing messages are JSON-encoded:
//   - {"topic": "stats", "event": "stats", "data": {...counters...}}
//   - {"topic": "room:3", "event": "room", "data": {...room info...}}
//   - {"topic": "room:3", "event": "room_closed"} once the room is gone
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//
//	loop := service.NewLoop(interval, registry, controller, hub)
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("topic"))
//	})
//
// Concurrency:
//
// Publish never blocks; when the hub falls behind, snapshots are dropped.
// A client whose send buffer is full is disconnected. When Run returns,
// every client is closed.
package websocket
