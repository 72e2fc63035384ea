package service

import (
	"context"
	"time"

	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
)

// HubService defines the read-only operations of the status API
type HubService interface {
	// Directory
	ListServers(ctx context.Context, page int) (*ServerPage, error)
	GetServer(ctx context.Context, id int) (*registry.Record, error)

	// Rooms
	ListRooms(ctx context.Context) ([]rooms.RoomInfo, error)
	GetRoom(ctx context.Context, id uint32) (*rooms.RoomInfo, error)

	// Counters
	Stats(ctx context.Context) (*Stats, error)
}

// ServerDirectory is the registry as seen by the service
type ServerDirectory interface {
	Page(offset, size int) []registry.Record
	Get(id int) (registry.Record, error)
	Count() int
}

// RoomDirectory reads room snapshots
type RoomDirectory interface {
	Rooms() []rooms.RoomInfo
	Room(id uint32) (rooms.RoomInfo, error)
	Stats() rooms.Stats
}

// RoomClock is driven by the hub loop
type RoomClock interface {
	RoomDirectory
	Tick(ctx context.Context, elapsed time.Duration) error
}
