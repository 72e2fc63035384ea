package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
	"github.com/wricardo/serverhub/game/service"
	"github.com/wricardo/serverhub/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.HubService
	hub     *websocket.Hub
	mcp     http.HandlerFunc
	router  *mux.Router
	handler http.Handler
}

// Option configures a Server
type Option func(*Server)

// WithMCP mounts an MCP JSON-RPC handler at POST /mcp.
func WithMCP(h http.HandlerFunc) Option {
	return func(s *Server) { s.mcp = h }
}

// WithAccessLog writes one Apache common log line per request to w.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.handler = handlers.LoggingHandler(w, s.handler)
	}
}

// NewServer creates a new API server. hub may be nil, in which case /ws is
// not served.
func NewServer(hubService service.HubService, hub *websocket.Hub, opts ...Option) *Server {
	s := &Server{
		service: hubService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Requested-With"}),
	)(s.router)

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Server directory
	api.HandleFunc("/servers", s.handleListServers).Methods("GET")
	api.HandleFunc("/servers/{id}", s.handleGetServer).Methods("GET")

	// Hub-hosted rooms
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")

	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}
	if s.mcp != nil {
		s.router.HandleFunc("/mcp", s.mcp).Methods("POST")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors onto status codes
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrServerNotFound), errors.Is(err, rooms.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidPage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Directory Handlers

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			respondError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		page = n
	}

	result, err := s.service.ListServers(r.Context(), page)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid server id")
		return
	}

	rec, err := s.service.GetServer(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListRooms(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []rooms.RoomInfo{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(list),
		"rooms": list,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	room, err := s.service.GetRoom(r.Context(), uint32(id))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, room)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = websocket.TopicStats
	}
	s.hub.ServeWS(w, r, topic)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
