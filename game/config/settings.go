package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wricardo/serverhub/game/protocol"
)

var (
	ErrConfigNotFound  = errors.New("settings file not found")
	ErrInvalidSettings = errors.New("invalid settings")
)

// DefaultFile is read when no settings file is given.
const DefaultFile = "serverhub.json"

// ServerSettings configure the TCP listener.
type ServerSettings struct {
	Host                string `json:"host"`
	Port                int    `json:"port" validate:"min=1,max=65535"`
	TryUPnP             bool   `json:"tryUPnP"`
	MaxConnections      int    `json:"maxConnections" validate:"min=1"`
	ReadPollMillis      int    `json:"readPollMillis" validate:"min=1"`
	NullPacketThreshold int    `json:"nullPacketThreshold" validate:"min=1"`
	WriteTimeoutMillis  int    `json:"writeTimeoutMillis" validate:"min=1"`
	SendBuffer          int    `json:"sendBuffer" validate:"min=1"`
}

// RoomSettings configure the lobby and its rooms.
type RoomSettings struct {
	LobbyTimeSeconds      int                 `json:"lobbyTimeSeconds" validate:"min=1"`
	PrepareTimeSeconds    int                 `json:"prepareTimeSeconds" validate:"min=0"`
	TickMillis            int                 `json:"tickMillis" validate:"min=10"`
	MaxRooms              int                 `json:"maxRooms" validate:"min=0"`
	DefaultMaxPlayers     int                 `json:"defaultMaxPlayers" validate:"min=0"`
	NoFailMode            bool                `json:"noFailMode"`
	ScoreboardScoreFormat string              `json:"scoreboardScoreFormat"`
	Songs                 []protocol.SongInfo `json:"songs" validate:"dive"`
}

// APISettings configure the HTTP status API.
type APISettings struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port" validate:"min=0,max=65535"`
	Ngrok       bool   `json:"ngrok"`
	NgrokDomain string `json:"ngrokDomain" validate:"omitempty,hostname"`
}

// Settings is the complete hub configuration.
type Settings struct {
	Server ServerSettings `json:"server"`
	Rooms  RoomSettings   `json:"rooms"`
	API    APISettings    `json:"api"`
}

// Default returns the settings used when nothing is configured
func Default() *Settings {
	return &Settings{
		Server: ServerSettings{
			Port:                3700,
			TryUPnP:             true,
			MaxConnections:      1024,
			ReadPollMillis:      100,
			NullPacketThreshold: 128,
			WriteTimeoutMillis:  10000,
			SendBuffer:          64,
		},
		Rooms: RoomSettings{
			LobbyTimeSeconds:      60,
			PrepareTimeSeconds:    15,
			TickMillis:            1000,
			DefaultMaxPlayers:     16,
			ScoreboardScoreFormat: "{0}",
			Songs:                 []protocol.SongInfo{},
		},
		API: APISettings{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load reads settings from path on top of the defaults. A missing file is
// not an error: the defaults are returned together with ErrConfigNotFound so
// callers can decide whether the file was required.
func Load(path string) (*Settings, error) {
	s := Default()

	// Read settings file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	// Parse settings
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidSettings, path, err)
	}

	return s, nil
}

// Save writes the settings to path as indented JSON
func (s *Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from SERVERHUB_* variables.
func (s *Settings) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	ints := map[string]*int{
		"SERVERHUB_PORT":                  &s.Server.Port,
		"SERVERHUB_MAX_CONNECTIONS":       &s.Server.MaxConnections,
		"SERVERHUB_READ_POLL_MS":          &s.Server.ReadPollMillis,
		"SERVERHUB_NULL_PACKET_THRESHOLD": &s.Server.NullPacketThreshold,
		"SERVERHUB_LOBBY_TIME":            &s.Rooms.LobbyTimeSeconds,
		"SERVERHUB_MAX_ROOMS":             &s.Rooms.MaxRooms,
		"SERVERHUB_API_PORT":              &s.API.Port,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidSettings, key, v)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"SERVERHUB_TRY_UPNP":    &s.Server.TryUPnP,
		"SERVERHUB_NO_FAIL":     &s.Rooms.NoFailMode,
		"SERVERHUB_API_ENABLED": &s.API.Enabled,
		"SERVERHUB_NGROK":       &s.API.Ngrok,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidSettings, key, v)
		}
		*dst = b
	}

	if v, ok := lookup("SERVERHUB_HOST"); ok {
		s.Server.Host = v
	}
	if v, ok := lookup("SERVERHUB_API_HOST"); ok {
		s.API.Host = v
	}
	if v, ok := lookup("NGROK_DOMAIN"); ok && v != "" {
		s.API.NgrokDomain = v
	}
	return nil
}

var validate = validator.New()

// Validate checks every section and reports all violations at once.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	if s.API.Enabled && s.API.Port == 0 {
		return fmt.Errorf("%w: api.port is required when the API is enabled", ErrInvalidSettings)
	}

	seen := make(map[string]bool, len(s.Rooms.Songs))
	for _, song := range s.Rooms.Songs {
		if seen[song.LevelID] {
			return fmt.Errorf("%w: duplicate song %q", ErrInvalidSettings, song.LevelID)
		}
		seen[song.LevelID] = true
	}
	return nil
}

// ListenAddr is the TCP listener address.
func (s *ServerSettings) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerSettings) ReadPoll() time.Duration {
	return time.Duration(s.ReadPollMillis) * time.Millisecond
}

func (s *ServerSettings) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMillis) * time.Millisecond
}

func (r *RoomSettings) LobbyTime() time.Duration {
	return time.Duration(r.LobbyTimeSeconds) * time.Second
}

func (r *RoomSettings) PrepareTime() time.Duration {
	return time.Duration(r.PrepareTimeSeconds) * time.Second
}

func (r *RoomSettings) TickInterval() time.Duration {
	return time.Duration(r.TickMillis) * time.Millisecond
}

// ListenAddr is the HTTP listener address.
func (a *APISettings) ListenAddr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
