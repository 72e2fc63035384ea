// Package api provides the HTTP status API for the ServerHub.
//
// The api package implements:
//   - Read-only REST endpoints over the server directory and rooms
//   - WebSocket upgrade for live feeds
//   - An optional MCP JSON-RPC endpoint
//   - CORS and access logging via gorilla/handlers
//
// Endpoints:
//
// Server Directory:
//   - GET /api/servers?page=N - One page of registered servers (6 per page)
//   - GET /api/servers/{id} - One registered server
//
// Rooms:
//   - GET /api/rooms - Every hub-hosted room
//   - GET /api/rooms/{id} - One room with songs and scoreboard
//
// Hub:
//   - GET /api/stats - Counters from the last hub loop tick
//   - GET /health - Liveness probe
//   - GET /ws?topic=stats|room:<id> - Live feed (see transport/websocket)
//   - POST /mcp - MCP JSON-RPC (when mounted with WithMCP)
//
// Usage:
//
//	srv := api.NewServer(hubService, wsHub,
//		api.WithMCP(mcpClient.HandleHTTP),
//		api.WithAccessLog(os.Stdout),
//	)
//	http.ListenAndServe(":8080", srv)
//
// Error Handling:
//
// Errors are returned as JSON with an HTTP status code:
//
//	{"error": "server 42: server not found"}
//
// Unknown servers and rooms map to 404, malformed IDs and pages to 400,
// anything else to 500.
package api
