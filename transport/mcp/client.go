package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/serverhub/game/protocol"
	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
	"github.com/wricardo/serverhub/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string, version string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer(version)
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer(version string) {
	c.mcpServer = server.NewMCPServer(
		"ServerHub",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`ServerHub - MCP Interface

This is a thin client that proxies all requests to the hub's status API.

The hub keeps a directory of multiplayer game servers that announce themselves
over TCP, and runs hub-hosted rooms where players vote on a song and play it
together.

AVAILABLE TOOLS:
- hub_stats: Counters for servers, rooms and connected clients
- list_servers: One page of the server directory (6 servers per page)
- get_server: One directory entry by ID
- list_rooms: Every hub-hosted room with its state
- get_room: One room with its members, songs and players

All tools are read-only.`),
	)

	// Register all tools
	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "hub_stats",
		Description: "Get the hub counters (servers, rooms, clients in lobby, clients total)",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHubStats)

	// Directory
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_servers",
		Description: "List one page of registered game servers",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Zero-based page number (default 0)",
					"minimum":     0,
				},
			},
		},
	}, c.handleListServers)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_server",
		Description: "Get one registered game server by ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "integer",
					"description": "Server ID from list_servers",
				},
			},
			Required: []string{"id"},
		},
	}, c.handleGetServer)

	// Rooms
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List every hub-hosted room",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get one hub-hosted room by ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "integer",
					"description": "Room ID from list_rooms",
				},
			},
			Required: []string{"id"},
		},
	}, c.handleGetRoom)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeStdio serves the tools over stdin/stdout until the input closes
func (c *Client) ServeStdio() error {
	return server.ServeStdio(c.mcpServer)
}

// HandleHTTP answers one JSON-RPC message posted to /mcp
func (c *Client) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// intArg reads an integer argument. JSON numbers arrive as float64.
func intArg(args map[string]interface{}, name string) (int, bool) {
	switch v := args[name].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Tool handlers

func (c *Client) handleHubStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats service.Stats
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStats(&stats)), nil
}

func (c *Client) handleListServers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	page := 0
	if _, present := args["page"]; present {
		var ok bool
		if page, ok = intArg(args, "page"); !ok || page < 0 {
			return mcp.NewToolResultError("page must be a non-negative integer"), nil
		}
	}

	var result service.ServerPage
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/servers?page=%d", page), nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatServerPage(&result)), nil
}

func (c *Client) handleGetServer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	id, ok := intArg(args, "id")
	if !ok {
		return mcp.NewToolResultError("id is required"), nil
	}

	var rec registry.Record
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/servers/%d", id), nil, &rec); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatServer(&rec)), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int              `json:"count"`
		Rooms []rooms.RoomInfo `json:"rooms"`
	}
	if err := c.apiCall(ctx, "GET", "/api/rooms", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(response.Rooms) == 0 {
		return mcp.NewToolResultText("No rooms are open.\n"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Rooms (%d):\n\n", len(response.Rooms))
	for _, r := range response.Rooms {
		lock := ""
		if r.HasPassword {
			lock = " [password]"
		}
		fmt.Fprintf(&sb, "- #%d %s%s: %s, %d/%d players\n",
			r.ID, r.Name, lock, r.StateName, len(r.Members), r.MaxPlayers)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	id, ok := intArg(args, "id")
	if !ok || id < 0 {
		return mcp.NewToolResultError("id is required"), nil
	}

	var room rooms.RoomInfo
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/rooms/%d", id), nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRoom(&room)), nil
}

// Formatting helpers

func formatStats(s *service.Stats) string {
	var sb strings.Builder
	sb.WriteString("=== ServerHub ===\n")
	fmt.Fprintf(&sb, "Servers: %d\n", s.Servers)
	fmt.Fprintf(&sb, "Rooms: %d\n", s.Rooms)
	fmt.Fprintf(&sb, "Clients in lobby: %d\n", s.LobbyClients)
	fmt.Fprintf(&sb, "Clients in rooms: %d\n", s.RoomClients)
	fmt.Fprintf(&sb, "Clients total: %d\n", s.TotalClients)
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, "Updated: %s\n", s.UpdatedAt.Format("15:04:05"))
	}
	return sb.String()
}

func formatServerPage(p *service.ServerPage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Servers page %d of %d (%d registered):\n\n", p.Page+1, max(p.TotalPages, 1), p.Total)
	if len(p.Servers) == 0 {
		sb.WriteString("(empty page)\n")
	}
	for _, s := range p.Servers {
		fmt.Fprintf(&sb, "- #%d %s @ %s:%d (%d/%d players)\n",
			s.ID, s.Name, s.IPv4, s.Port, s.Players, s.MaxPlayers)
	}
	if p.HasNext {
		fmt.Fprintf(&sb, "\nNext page: %d\n", p.Page+1)
	}
	return sb.String()
}

func formatServer(r *registry.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Server #%d: %s\n", r.ID, r.Name)
	fmt.Fprintf(&sb, "Address: %s:%d\n", r.IPv4, r.Port)
	fmt.Fprintf(&sb, "Players: %d/%d\n", r.Players, r.MaxPlayers)
	if !r.RegisteredAt.IsZero() {
		fmt.Fprintf(&sb, "Registered: %s\n", r.RegisteredAt.Format(time.RFC3339))
	}
	if !r.LastSeen.IsZero() {
		fmt.Fprintf(&sb, "Last heartbeat: %s\n", r.LastSeen.Format(time.RFC3339))
	}
	return sb.String()
}

func formatRoom(r *rooms.RoomInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Room #%d: %s\n", r.ID, r.Name)
	fmt.Fprintf(&sb, "State: %s\n", r.StateName)
	fmt.Fprintf(&sb, "Players: %d/%d\n", len(r.Members), r.MaxPlayers)
	if r.HasPassword {
		sb.WriteString("Password protected\n")
	}

	switch r.State {
	case protocol.Voting:
		fmt.Fprintf(&sb, "Voting ends in %ds\n", r.LobbyTimer)
	case protocol.Preparing, protocol.Playing:
		fmt.Fprintf(&sb, "Selected song: %s\n", songName(r.Songs, r.SelectedLevelID))
		if r.State == protocol.Playing {
			fmt.Fprintf(&sb, "Play time: %.1fs\n", r.PlayTime)
		}
	}

	if len(r.Players) > 0 {
		sb.WriteString("\nScoreboard:\n")
		for _, p := range r.Players {
			fmt.Fprintf(&sb, "  %s: %d (combo %d)\n", p.PlayerName, p.PlayerScore, p.PlayerComboBlocks)
		}
	}

	fmt.Fprintf(&sb, "\nSongs (%d):\n", len(r.Songs))
	for _, s := range r.Songs {
		fmt.Fprintf(&sb, "  %s - %s [%s]\n", s.SongName, s.AuthorName, s.LevelID)
	}
	return sb.String()
}

func songName(songs []protocol.SongInfo, levelID string) string {
	for _, s := range songs {
		if s.LevelID == levelID {
			return s.SongName
		}
	}
	return levelID
}
