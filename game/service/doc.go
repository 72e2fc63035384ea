// Package service provides the read side and the clock of the ServerHub.
//
// The service package implements:
//   - Paginated server directory reads
//   - Room snapshots for the status API
//   - Hub-wide counters (servers, rooms, lobby and room clients)
//   - The hub loop that advances room timers and publishes snapshots
//
// Core Interfaces:
//
// HubService is the read-only facade used by the REST API and the MCP tools.
// ServerDirectory and RoomDirectory are the views of the registry and the
// room controller it reads from. Publisher receives a Snapshot after every
// tick of the Loop.
//
// Architecture:
//
// The service layer sits between the transports that report status (HTTP,
// WebSocket, MCP) and the hub state owned by the registry and the room
// controller. It never mutates that state; the only writer it drives is the
// room clock, through Loop.
//
// Usage:
//
//	hubService := service.NewHubService(reg, ctrl)
//	page, err := hubService.ListServers(ctx, 0)
//
//	loop := service.NewLoop(time.Second, reg, ctrl, wsHub, titlePublisher)
//	go loop.Run(ctx)
//
// Hub Loop:
//
// Each tick passes the real elapsed time to the room controller, so timers
// stay accurate when a tick is late. Stats are then recomputed, stored for
// Loop.Stats and published. Publishers run on the loop goroutine and must
// hand work off instead of blocking.
package service
