package service

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/wricardo/serverhub/game/rooms"
)

// Publisher receives every snapshot produced by the hub loop. Publish must
// not block.
type Publisher interface {
	Publish(snap *Snapshot)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(snap *Snapshot)

func (f PublisherFunc) Publish(snap *Snapshot) { f(snap) }

// Loop is the hub's clock: it advances room timers and publishes stats.
type Loop struct {
	interval   time.Duration
	servers    ServerDirectory
	rooms      RoomClock
	publishers []Publisher
	stats      atomic.Pointer[Stats]
	now        func() time.Time
}

// NewLoop creates a loop ticking every interval
func NewLoop(interval time.Duration, servers ServerDirectory, rms RoomClock, pubs ...Publisher) *Loop {
	if interval <= 0 {
		interval = time.Second
	}
	l := &Loop{
		interval:   interval,
		servers:    servers,
		rooms:      rms,
		publishers: pubs,
		now:        time.Now,
	}
	l.stats.Store(&Stats{})
	return l
}

// Run ticks until ctx is cancelled or the room controller stops.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	last := l.now()
	l.Refresh()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := l.now()
			elapsed := now.Sub(last)
			last = now

			if err := l.rooms.Tick(ctx, elapsed); err != nil {
				if errors.Is(err, rooms.ErrStopped) || ctx.Err() != nil {
					return nil
				}
				log.Printf("Room tick failed: %v", err)
			}
			l.Refresh()
		}
	}
}

// Refresh recomputes the stats, stores them and publishes a snapshot.
func (l *Loop) Refresh() *Snapshot {
	stats := computeStats(l.servers, l.rooms, l.now())
	l.stats.Store(&stats)

	snap := &Snapshot{Stats: stats, Rooms: l.rooms.Rooms()}
	for _, p := range l.publishers {
		p.Publish(snap)
	}
	return snap
}

// Stats returns the numbers computed on the last tick
func (l *Loop) Stats() Stats {
	return *l.stats.Load()
}
