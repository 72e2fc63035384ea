// Package mcp provides a Model Context Protocol interface to the ServerHub.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Read-only tools over the hub's status API
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - hub_stats: Servers, rooms, clients in lobby and clients total
//   - list_servers: One page of the server directory (optional page argument)
//   - get_server: One directory entry by ID
//   - list_rooms: Every hub-hosted room with state and player count
//   - get_room: One room with selected song, scoreboard and song list
//
// Every tool proxies to the REST API, so the MCP process does not need to
// share memory with the hub. API failures come back as tool errors, never as
// protocol errors.
//
// Transport Modes:
//
// The server supports two transport modes:
//   - Stdio: Direct stdio communication for local MCP clients (serverhub mcp)
//   - HTTP: POST /mcp on the status API listener
//
// Usage:
//
//	// Stdio mode
//	client := mcp.NewClient("http://localhost:8080", version)
//	if err := client.ServeStdio(); err != nil {
//		log.Fatal(err)
//	}
//
//	// HTTP mode
//	router.HandleFunc("/mcp", client.HandleHTTP).Methods("POST")
package mcp
