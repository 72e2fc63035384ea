package tcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wricardo/serverhub/game/protocol"
	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
)

// Debug enables per-frame logging.
var Debug bool

func debugf(format string, args ...any) {
	if Debug {
		log.Printf(format, args...)
	}
}

const acceptBackoff = 50 * time.Millisecond

// Rooms is the part of the room controller used by lobby clients.
type Rooms interface {
	Connect(ctx context.Context, m rooms.Member) error
	Disconnect(m rooms.Member)
	CreateRoom(ctx context.Context, m rooms.Member, ro rooms.RoomOptions) (rooms.RoomInfo, error)
	Join(ctx context.Context, m rooms.Member, roomID uint32, password string) (rooms.RoomInfo, error)
	Leave(ctx context.Context, m rooms.Member) error
	Vote(ctx context.Context, m rooms.Member, levelID string) error
	UpdatePlayer(ctx context.Context, m rooms.Member, p protocol.PlayerInfo) error
	FinishSong(ctx context.Context, m rooms.Member) error
	ServerState(ctx context.Context, m rooms.Member) error
	AvailableSongs(ctx context.Context, m rooms.Member) error
	ListRooms(ctx context.Context, m rooms.Member) error
}

// Config tunes the listener and its connection workers.
type Config struct {
	Addr                string
	MaxConnections      int64
	ReadPoll            time.Duration
	NullPacketThreshold int
	WriteTimeout        time.Duration
	SendBuffer          int
}

func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1024
	}
	if c.ReadPoll <= 0 {
		c.ReadPoll = 100 * time.Millisecond
	}
	if c.NullPacketThreshold <= 0 {
		c.NullPacketThreshold = 128
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

// Acceptor listens for game servers and lobby clients and runs one worker
// per connection.
type Acceptor struct {
	cfg      Config
	registry *registry.Registry
	rooms    Rooms
	sem      *semaphore.Weighted

	ln         net.Listener
	stopAccept context.CancelFunc
	stopWork   context.CancelFunc
	stopped    atomic.Bool

	mu      sync.Mutex
	workers map[*worker]struct{}
	wg      sync.WaitGroup
}

// NewAcceptor creates an acceptor. rms may be nil, in which case lobby
// client commands are rejected.
func NewAcceptor(cfg Config, reg *registry.Registry, rms Rooms) *Acceptor {
	cfg = cfg.withDefaults()
	return &Acceptor{
		cfg:      cfg,
		registry: reg,
		rooms:    rms,
		sem:      semaphore.NewWeighted(cfg.MaxConnections),
		workers:  make(map[*worker]struct{}),
	}
}

// Start binds the listener and accepts connections in the background until
// ctx is cancelled or Stop is called. Workers keep ctx values but not its
// cancellation: they run until CloseAll or their own teardown.
func (a *Acceptor) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Addr, err)
	}
	a.ln = ln

	acceptCtx, cancel := context.WithCancel(ctx)
	a.stopAccept = cancel
	go func() {
		<-acceptCtx.Done()
		a.stopped.Store(true)
		ln.Close()
	}()
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	a.stopWork = cancelWork
	go a.acceptLoop(workCtx, acceptCtx)

	log.Printf("Hub listening on %s", ln.Addr())
	return nil
}

func (a *Acceptor) acceptLoop(ctx, acceptCtx context.Context) {
	for {
		if err := a.sem.Acquire(acceptCtx, 1); err != nil {
			return
		}
		conn, err := a.ln.Accept()
		if err != nil {
			a.sem.Release(1)
			if a.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			select {
			case <-time.After(acceptBackoff):
			case <-acceptCtx.Done():
				return
			}
			continue
		}

		w := newWorker(ctx, conn, a)
		a.track(w)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.sem.Release(1)
			defer a.untrack(w)
			w.run()
		}()
	}
}

func (a *Acceptor) track(w *worker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.workers[w] = struct{}{}
}

func (a *Acceptor) untrack(w *worker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.workers, w)
}

// Stop closes the listener. Running workers are not affected.
func (a *Acceptor) Stop() {
	if a.stopAccept != nil {
		a.stopAccept()
	}
}

// CloseAll cancels every live worker. Each one flushes its queued writes
// before closing its socket; Wait blocks until they are done.
func (a *Acceptor) CloseAll() {
	if a.stopWork != nil {
		a.stopWork()
	}
}

// Wait blocks until every worker has finished its teardown.
func (a *Acceptor) Wait() {
	a.wg.Wait()
}

// Addr returns the bound address, or nil before Start.
func (a *Acceptor) Addr() net.Addr {
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Active returns the number of live workers.
func (a *Acceptor) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.workers)
}
