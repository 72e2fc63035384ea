package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/serverhub/game/protocol"
	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
)

var ErrInvalidPage = errors.New("page must not be negative")

// hubServiceImpl implements the HubService interface
type hubServiceImpl struct {
	servers  ServerDirectory
	rooms    RoomDirectory
	pageSize int
	now      func() time.Time
}

// NewHubService creates a hub service reading from the given directories
func NewHubService(servers ServerDirectory, rms RoomDirectory) HubService {
	return &hubServiceImpl{
		servers:  servers,
		rooms:    rms,
		pageSize: protocol.PageSize,
		now:      time.Now,
	}
}

// ListServers returns one page of the directory, in the order game clients see it
func (s *hubServiceImpl) ListServers(ctx context.Context, page int) (*ServerPage, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}

	total := s.servers.Count()
	totalPages := (total + s.pageSize - 1) / s.pageSize

	return &ServerPage{
		Servers:     s.servers.Page(page, s.pageSize),
		Page:        page,
		PageSize:    s.pageSize,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page+1 < totalPages,
		HasPrevious: page > 0,
	}, nil
}

// GetServer returns one registered server
func (s *hubServiceImpl) GetServer(ctx context.Context, id int) (*registry.Record, error) {
	rec, err := s.servers.Get(id)
	if err != nil {
		return nil, fmt.Errorf("server %d: %w", id, err)
	}
	return &rec, nil
}

// ListRooms returns every room ordered by ID
func (s *hubServiceImpl) ListRooms(ctx context.Context) ([]rooms.RoomInfo, error) {
	return s.rooms.Rooms(), nil
}

// GetRoom returns one room
func (s *hubServiceImpl) GetRoom(ctx context.Context, id uint32) (*rooms.RoomInfo, error) {
	info, err := s.rooms.Room(id)
	if err != nil {
		return nil, fmt.Errorf("room %d: %w", id, err)
	}
	return &info, nil
}

// Stats counts servers, rooms and clients right now
func (s *hubServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	stats := computeStats(s.servers, s.rooms, s.now())
	return &stats, nil
}
