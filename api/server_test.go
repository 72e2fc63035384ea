package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
	"github.com/wricardo/serverhub/game/service"
	"github.com/wricardo/serverhub/transport/websocket"
)

// MockHubService implements service.HubService for testing
type MockHubService struct {
	ListServersFunc func(ctx context.Context, page int) (*service.ServerPage, error)
	GetServerFunc   func(ctx context.Context, id int) (*registry.Record, error)
	ListRoomsFunc   func(ctx context.Context) ([]rooms.RoomInfo, error)
	GetRoomFunc     func(ctx context.Context, id uint32) (*rooms.RoomInfo, error)
	StatsFunc       func(ctx context.Context) (*service.Stats, error)
}

func (m *MockHubService) ListServers(ctx context.Context, page int) (*service.ServerPage, error) {
	if m.ListServersFunc != nil {
		return m.ListServersFunc(ctx, page)
	}
	return &service.ServerPage{Servers: []registry.Record{}, Page: page, PageSize: 6}, nil
}

func (m *MockHubService) GetServer(ctx context.Context, id int) (*registry.Record, error) {
	if m.GetServerFunc != nil {
		return m.GetServerFunc(ctx, id)
	}
	return &registry.Record{ID: id, Name: "test-server"}, nil
}

func (m *MockHubService) ListRooms(ctx context.Context) ([]rooms.RoomInfo, error) {
	if m.ListRoomsFunc != nil {
		return m.ListRoomsFunc(ctx)
	}
	return nil, nil
}

func (m *MockHubService) GetRoom(ctx context.Context, id uint32) (*rooms.RoomInfo, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, id)
	}
	return &rooms.RoomInfo{ID: id, Name: "Room 1"}, nil
}

func (m *MockHubService) Stats(ctx context.Context) (*service.Stats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &service.Stats{UpdatedAt: time.Now()}, nil
}

// Test helpers
func setupTestServer(t *testing.T, mockService *MockHubService, opts ...Option) *Server {
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return NewServer(mockService, hub, opts...)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

// Directory Tests

func TestListServers(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(*MockHubService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name: "Default page",
			path: "/api/servers",
			setupMock: func(m *MockHubService) {
				m.ListServersFunc = func(ctx context.Context, page int) (*service.ServerPage, error) {
					if page != 0 {
						t.Errorf("Expected page 0, got %d", page)
					}
					return &service.ServerPage{
						Servers:    []registry.Record{{ID: 0, Name: "alpha"}, {ID: 1, Name: "beta"}},
						PageSize:   6,
						Total:      2,
						TotalPages: 1,
					}, nil
				}
			},
			expectedStatus: http.StatusOK,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.ServerPage
				parseResponse(t, w, &resp)
				if len(resp.Servers) != 2 || resp.Servers[1].Name != "beta" {
					t.Errorf("Unexpected servers: %+v", resp.Servers)
				}
			},
		},
		{
			name: "Explicit page",
			path: "/api/servers?page=2",
			setupMock: func(m *MockHubService) {
				m.ListServersFunc = func(ctx context.Context, page int) (*service.ServerPage, error) {
					if page != 2 {
						t.Errorf("Expected page 2, got %d", page)
					}
					return &service.ServerPage{Servers: []registry.Record{}, Page: page}, nil
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Non-numeric page",
			path:           "/api/servers?page=first",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Negative page",
			path: "/api/servers?page=-1",
			setupMock: func(m *MockHubService) {
				m.ListServersFunc = func(ctx context.Context, page int) (*service.ServerPage, error) {
					return nil, fmt.Errorf("page %d: %w", page, service.ErrInvalidPage)
				}
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Service error",
			path: "/api/servers",
			setupMock: func(m *MockHubService) {
				m.ListServersFunc = func(ctx context.Context, page int) (*service.ServerPage, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "service error" {
					t.Errorf("Expected error message 'service error', got %s", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockHubService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			server := setupTestServer(t, mockService)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", tt.path, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestGetServer(t *testing.T) {
	mockService := &MockHubService{
		GetServerFunc: func(ctx context.Context, id int) (*registry.Record, error) {
			if id == 42 {
				return nil, fmt.Errorf("server %d: %w", id, registry.ErrServerNotFound)
			}
			return &registry.Record{ID: id, Name: "alpha", IPv4: "10.0.0.1", Port: 3700}, nil
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"Existing server", "/api/servers/3", http.StatusOK},
		{"Unknown server", "/api/servers/42", http.StatusNotFound},
		{"Invalid id", "/api/servers/abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", tt.path, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/servers/3", nil))
	var rec registry.Record
	parseResponse(t, w, &rec)
	if rec.ID != 3 || rec.Port != 3700 {
		t.Errorf("Unexpected record: %+v", rec)
	}
}

// Room Tests

func TestListRooms(t *testing.T) {
	t.Run("No rooms", func(t *testing.T) {
		server := setupTestServer(t, &MockHubService{})
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/rooms", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"rooms":[]`) {
			t.Errorf("Expected an empty rooms array, got %s", w.Body.String())
		}
	})

	t.Run("With rooms", func(t *testing.T) {
		server := setupTestServer(t, &MockHubService{
			ListRoomsFunc: func(ctx context.Context) ([]rooms.RoomInfo, error) {
				return []rooms.RoomInfo{{ID: 1, Name: "Room 1"}, {ID: 2, Name: "expert"}}, nil
			},
		})
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/rooms", nil))

		var resp struct {
			Count int              `json:"count"`
			Rooms []rooms.RoomInfo `json:"rooms"`
		}
		parseResponse(t, w, &resp)
		if resp.Count != 2 || resp.Rooms[1].Name != "expert" {
			t.Errorf("Unexpected rooms: %+v", resp)
		}
	})
}

func TestGetRoom(t *testing.T) {
	mockService := &MockHubService{
		GetRoomFunc: func(ctx context.Context, id uint32) (*rooms.RoomInfo, error) {
			if id != 1 {
				return nil, fmt.Errorf("room %d: %w", id, rooms.ErrRoomNotFound)
			}
			return &rooms.RoomInfo{ID: 1, Name: "Room 1", StateName: "voting"}, nil
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"Existing room", "/api/rooms/1", http.StatusOK},
		{"Unknown room", "/api/rooms/2", http.StatusNotFound},
		{"Invalid id", "/api/rooms/-1", http.StatusBadRequest},
		{"Id out of range", "/api/rooms/4294967296", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", tt.path, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestStats(t *testing.T) {
	server := setupTestServer(t, &MockHubService{
		StatsFunc: func(ctx context.Context) (*service.Stats, error) {
			return &service.Stats{Servers: 8, Rooms: 1, LobbyClients: 2, RoomClients: 3, TotalClients: 5}, nil
		},
	})
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var stats service.Stats
	parseResponse(t, w, &stats)
	if stats.Servers != 8 || stats.TotalClients != 5 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestHealth(t *testing.T) {
	server := setupTestServer(t, &MockHubService{})
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/health", nil))

	var resp map[string]string
	parseResponse(t, w, &resp)
	if w.Code != http.StatusOK || resp["status"] != "healthy" {
		t.Errorf("Unexpected health response: %d %v", w.Code, resp)
	}
}

func TestCORS(t *testing.T) {
	server := setupTestServer(t, &MockHubService{})
	w := httptest.NewRecorder()
	req := makeRequest("GET", "/api/stats", nil)
	req.Header.Set("Origin", "http://status.example.com")
	server.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("Expected CORS header on cross-origin request")
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	server := setupTestServer(t, &MockHubService{}, WithAccessLog(&buf))
	server.ServeHTTP(httptest.NewRecorder(), makeRequest("GET", "/health", nil))

	if !strings.Contains(buf.String(), "GET /health") {
		t.Errorf("Expected access log line, got %q", buf.String())
	}
}

func TestMCPRoute(t *testing.T) {
	called := false
	mcpHandler := func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}

	t.Run("Mounted", func(t *testing.T) {
		server := setupTestServer(t, &MockHubService{}, WithMCP(mcpHandler))
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/mcp", map[string]string{"jsonrpc": "2.0"}))
		if !called || w.Code != http.StatusOK {
			t.Errorf("Expected MCP handler to be called, got status %d", w.Code)
		}

		w = httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/mcp", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405 for GET /mcp, got %d", w.Code)
		}
	})

	t.Run("Not mounted", func(t *testing.T) {
		server := setupTestServer(t, &MockHubService{})
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/mcp", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 without MCP, got %d", w.Code)
		}
	})
}

func TestWebSocket(t *testing.T) {
	server := setupTestServer(t, &MockHubService{})

	t.Run("Invalid topic", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest("GET", "/ws?topic=room:abc", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("Upgrade over a real listener", func(t *testing.T) {
		ts := httptest.NewServer(server)
		defer ts.Close()

		req, _ := http.NewRequest("GET", ts.URL+"/ws", nil)
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		req.Header.Set("Sec-WebSocket-Version", "13")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusSwitchingProtocols {
			t.Errorf("Expected status 101, got %d", resp.StatusCode)
		}
	})

	t.Run("No hub", func(t *testing.T) {
		server := NewServer(&MockHubService{}, nil)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 without hub, got %d", w.Code)
		}
	})
}
