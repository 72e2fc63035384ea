package service

import (
	"time"

	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
)

// ServerPage is one page of the server directory
type ServerPage struct {
	Servers     []registry.Record `json:"servers"`
	Page        int               `json:"page"`
	PageSize    int               `json:"page_size"`
	Total       int               `json:"total"`
	TotalPages  int               `json:"total_pages"`
	HasNext     bool              `json:"has_next"`
	HasPrevious bool              `json:"has_previous"`
}

// Stats summarizes the hub
type Stats struct {
	Servers      int       `json:"servers"`
	Rooms        int       `json:"rooms"`
	LobbyClients int       `json:"lobby_clients"`
	RoomClients  int       `json:"room_clients"`
	TotalClients int       `json:"total_clients"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot is published after every hub loop tick
type Snapshot struct {
	Stats Stats            `json:"stats"`
	Rooms []rooms.RoomInfo `json:"rooms"`
}

func computeStats(servers ServerDirectory, rms RoomDirectory, now time.Time) Stats {
	rs := rms.Stats()
	return Stats{
		Servers:      servers.Count(),
		Rooms:        rs.Rooms,
		LobbyClients: rs.LobbyClients,
		RoomClients:  rs.RoomClients,
		TotalClients: rs.LobbyClients + rs.RoomClients,
		UpdatedAt:    now,
	}
}
