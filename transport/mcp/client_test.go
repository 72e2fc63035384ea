package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/serverhub/game/protocol"
	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
	"github.com/wricardo/serverhub/game/service"
)

// newAPIStub serves canned status API responses
func newAPIStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, service.Stats{Servers: 8, Rooms: 2, LobbyClients: 3, RoomClients: 5, TotalClients: 8})
	})
	mux.HandleFunc("/api/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			writeJSON(w, http.StatusOK, service.ServerPage{Servers: []registry.Record{}, Page: 0, PageSize: 6, Total: 8, TotalPages: 2, HasNext: true})
			return
		}
		writeJSON(w, http.StatusOK, service.ServerPage{
			Servers: []registry.Record{
				{ID: 6, Name: "alpha", IPv4: "10.0.0.6", Port: 3700, Players: 2, MaxPlayers: 10},
				{ID: 7, Name: "beta", IPv4: "10.0.0.7", Port: 3701},
			},
			Page: 1, PageSize: 6, Total: 8, TotalPages: 2, HasPrevious: true,
		})
	})
	mux.HandleFunc("/api/servers/6", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, registry.Record{ID: 6, Name: "alpha", IPv4: "10.0.0.6", Port: 3700, Players: 2, MaxPlayers: 10})
	})
	mux.HandleFunc("/api/servers/99", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "server 99: server not found"})
	})
	mux.HandleFunc("/api/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count": 1,
			"rooms": []rooms.RoomInfo{{ID: 3, Name: "Room 3", StateName: "voting", MaxPlayers: 16, Members: []string{"a"}, HasPassword: true}},
		})
	})
	mux.HandleFunc("/api/rooms/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rooms.RoomInfo{
			ID: 3, Name: "Room 3", State: protocol.Playing, StateName: "playing", MaxPlayers: 16,
			Members:         []string{"a", "b"},
			SelectedLevelID: "lvl1",
			PlayTime:        12.5,
			Songs:           []protocol.SongInfo{{LevelID: "lvl1", SongName: "Crab Rave", AuthorName: "Noisestorm", Duration: 160}},
			Players:         []protocol.PlayerInfo{{PlayerName: "alice", PlayerScore: 1200, PlayerComboBlocks: 30}},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func callTool(t *testing.T, client *Client, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"hub_stats":    client.handleHubStats,
		"list_servers": client.handleListServers,
		"get_server":   client.handleGetServer,
		"list_rooms":   client.handleListRooms,
		"get_room":     client.handleGetRoom,
	}
	handler, ok := handlers[name]
	if !ok {
		t.Fatalf("Unknown tool %s", name)
	}

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := handler(context.Background(), request)
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("Expected content in result")
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080/"
	client := NewClient(baseURL, "test")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}

	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}

	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := newAPIStub(t)
	client := NewClient(server.URL, "test")

	var stats service.Stats
	if err := client.apiCall(context.Background(), "GET", "/api/stats", nil, &stats); err != nil {
		t.Fatalf("API call failed: %v", err)
	}
	if stats.TotalClients != 8 {
		t.Errorf("Expected 8 clients, got %d", stats.TotalClients)
	}

	err := client.apiCall(context.Background(), "GET", "/api/servers/99", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "server not found") {
		t.Errorf("Expected API error message, got %v", err)
	}

	err = client.apiCall(context.Background(), "GET", "/missing", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestClient_apiCall_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test")
	if err := client.apiCall(context.Background(), "GET", "/api/stats", nil, nil); err == nil {
		t.Error("Expected error for unreachable API")
	}
}

func TestClient_Tools(t *testing.T) {
	server := newAPIStub(t)
	client := NewClient(server.URL, "test")

	tests := []struct {
		name    string
		tool    string
		args    map[string]interface{}
		isError bool
		expect  []string
	}{
		{"stats", "hub_stats", nil, false, []string{"Servers: 8", "Clients in lobby: 3", "Clients total: 8"}},
		{"second page", "list_servers", map[string]interface{}{"page": float64(1)}, false, []string{"page 2 of 2", "#6 alpha @ 10.0.0.6:3700 (2/10 players)", "#7 beta"}},
		{"default page", "list_servers", map[string]interface{}{}, false, []string{"(empty page)", "Next page: 1"}},
		{"negative page", "list_servers", map[string]interface{}{"page": float64(-1)}, true, []string{"non-negative"}},
		{"server", "get_server", map[string]interface{}{"id": float64(6)}, false, []string{"Server #6: alpha", "Players: 2/10"}},
		{"unknown server", "get_server", map[string]interface{}{"id": float64(99)}, true, []string{"server not found"}},
		{"server without id", "get_server", map[string]interface{}{}, true, []string{"id is required"}},
		{"rooms", "list_rooms", nil, false, []string{"Rooms (1)", "#3 Room 3 [password]: voting, 1/16 players"}},
		{"room", "get_room", map[string]interface{}{"id": float64(3)}, false, []string{"State: playing", "Selected song: Crab Rave", "alice: 1200", "Play time: 12.5s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, client, tt.tool, tt.args)
			if result.IsError != tt.isError {
				t.Errorf("Expected IsError=%v, got %v", tt.isError, result.IsError)
			}
			text := resultText(t, result)
			for _, want := range tt.expect {
				if !strings.Contains(text, want) {
					t.Errorf("Expected output to contain %q, got:\n%s", want, text)
				}
			}
		})
	}
}

func TestClient_HandleHTTP(t *testing.T) {
	server := newAPIStub(t)
	client := NewClient(server.URL, "test")

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		client.HandleHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})

	t.Run("tools list", func(t *testing.T) {
		body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
		rec := httptest.NewRecorder()
		client.HandleHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body)))

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		for _, tool := range []string{"hub_stats", "list_servers", "get_server", "list_rooms", "get_room"} {
			if !strings.Contains(rec.Body.String(), tool) {
				t.Errorf("Expected %s in tools list", tool)
			}
		}
	})
}

func TestIntArg(t *testing.T) {
	args := map[string]interface{}{"a": float64(3), "b": 2.5, "c": "x", "d": 4, "e": json.Number("7")}

	if v, ok := intArg(args, "a"); !ok || v != 3 {
		t.Errorf("Expected 3, got %d (%v)", v, ok)
	}
	if _, ok := intArg(args, "b"); ok {
		t.Error("Fractional numbers should be rejected")
	}
	if _, ok := intArg(args, "c"); ok {
		t.Error("Strings should be rejected")
	}
	if v, ok := intArg(args, "d"); !ok || v != 4 {
		t.Errorf("Expected 4, got %d", v)
	}
	if v, ok := intArg(args, "e"); !ok || v != 7 {
		t.Errorf("Expected 7, got %d", v)
	}
	if _, ok := intArg(args, "missing"); ok {
		t.Error("Missing argument should be rejected")
	}
}
