package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/serverhub/game/protocol"
	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
)

const nullPacketBackoff = 5 * time.Millisecond

var (
	ErrSendQueueFull  = errors.New("send queue full")
	ErrConnClosed     = errors.New("connection closed")
	ErrUnknownCommand = errors.New("unknown client command")
	ErrMissingPlayer  = errors.New("player info missing")
	ErrLobbyDisabled  = errors.New("lobby is not available on this hub")
	errLostConnection = errors.New("lost connection")
	errStop           = errors.New("stop")
)

// worker serves one TCP connection. It implements registry.Owner for game
// servers and rooms.Member for lobby clients.
type worker struct {
	id     string
	conn   net.Conn
	remote string
	acc    *Acceptor

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	outMu      sync.Mutex
	out        chan []byte
	outClosed  bool
	writerDone chan struct{}

	// read loop only
	registered  bool
	inLobby     bool
	nullPackets int
}

func newWorker(parent context.Context, conn net.Conn, a *Acceptor) *worker {
	ctx, cancel := context.WithCancel(parent)
	return &worker{
		id:         uuid.NewString(),
		conn:       conn,
		remote:     conn.RemoteAddr().String(),
		acc:        a,
		ctx:        ctx,
		cancel:     cancel,
		out:        make(chan []byte, a.cfg.SendBuffer),
		writerDone: make(chan struct{}),
	}
}

// ID implements rooms.Member.
func (w *worker) ID() string { return w.id }

// Close cancels the worker and closes its socket. Safe to call repeatedly.
func (w *worker) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.conn.Close()
	})
	return err
}

// Send implements rooms.Member by queueing cmd in a Hub frame.
func (w *worker) Send(cmd *protocol.ServerCommand) error {
	frame, err := protocol.Encode(&protocol.HubPacket{Command: cmd})
	if err != nil {
		return err
	}
	return w.enqueue(frame)
}

func (w *worker) enqueue(frame []byte) error {
	w.outMu.Lock()
	defer w.outMu.Unlock()

	if w.outClosed {
		return ErrConnClosed
	}
	select {
	case w.out <- frame:
		return nil
	default:
		log.Printf("Send queue of %s is full, closing connection", w.remote)
		w.Close()
		return ErrSendQueueFull
	}
}

func (w *worker) sendPacket(p protocol.Packet) error {
	frame, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	return w.enqueue(frame)
}

func (w *worker) closeOutbound() {
	w.outMu.Lock()
	if !w.outClosed {
		w.outClosed = true
		close(w.out)
	}
	w.outMu.Unlock()
}

func (w *worker) writeLoop() {
	defer close(w.writerDone)

	for frame := range w.out {
		w.conn.SetWriteDeadline(time.Now().Add(w.acc.cfg.WriteTimeout))
		if _, err := w.conn.Write(frame); err != nil {
			debugf("Write to %s failed: %v", w.remote, err)
			w.Close()
			for range w.out {
			}
			return
		}
	}
}

func (w *worker) run() {
	debugf("Accepted connection %s from %s", w.id, w.remote)
	go w.writeLoop()

	err := w.readLoop()
	w.teardown(err)
}

func (w *worker) readLoop() error {
	cfg := w.acc.cfg
	buf := make([]byte, protocol.MaxByteLength)
	n := 0

	for {
		if w.ctx.Err() != nil {
			return errStop
		}

		w.conn.SetReadDeadline(time.Now().Add(cfg.ReadPoll))
		read, err := w.conn.Read(buf[n:])
		n += read

		quiet := isTimeout(err)
		if err != nil && !quiet && !(errors.Is(err, io.EOF) && n > 0) {
			if w.ctx.Err() != nil {
				return errStop
			}
			return err
		}

		switch {
		case n == len(buf) || (n > 0 && (quiet || read == 0 || err != nil)):
			frame := buf[:n]
			n = 0
			if derr := w.dispatch(frame); derr != nil {
				if errors.Is(derr, errStop) {
					return errStop
				}
				w.nullPackets++
				debugf("Dropped frame from %s: %v", w.remote, derr)
			} else {
				w.nullPackets = 0
			}
			if err != nil && !quiet {
				// EOF right after a final frame
				return err
			}

		case read == 0 && quiet:
			// idle poll
			continue

		case read == 0:
			w.nullPackets++
			time.Sleep(nullPacketBackoff)

		default:
			continue
		}

		if w.nullPackets >= cfg.NullPacketThreshold {
			log.Printf("Lost connection to %s", w.remote)
			return errLostConnection
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (w *worker) dispatch(frame []byte) error {
	pkt, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	switch p := pkt.(type) {
	case *protocol.ClientPacket:
		if p.Command == nil {
			return w.handleQuery(p)
		}
		return w.handleCommand(p.Command)
	case *protocol.ServerPacket:
		return w.handleServer(p)
	case *protocol.HubPacket:
		debugf("Ignoring hub frame from %s: %q", w.remote, p.Message)
		return nil
	default:
		return fmt.Errorf("unexpected packet %T", pkt)
	}
}

func (w *worker) handleQuery(p *protocol.ClientPacket) error {
	page := w.acc.registry.Page(p.Offset, protocol.PageSize)
	reply := &protocol.ClientPacket{Offset: p.Offset, Servers: make([]protocol.ServerInfo, 0, len(page))}
	for _, rec := range page {
		reply.Servers = append(reply.Servers, protocol.ServerInfo{
			ID:         rec.ID,
			IPv4:       rec.IPv4,
			Name:       rec.Name,
			Port:       rec.Port,
			Players:    rec.Players,
			MaxPlayers: rec.MaxPlayers,
		})
	}
	debugf("Sent page %d (%d servers) to %s", p.Offset, len(reply.Servers), w.remote)

	if err := w.sendPacket(reply); err != nil {
		return err
	}
	if w.inLobby || w.registered {
		return nil
	}
	return errStop
}

func (w *worker) handleCommand(cmd *protocol.ClientCommand) error {
	if err := protocol.CheckVersion(cmd.Version); err != nil {
		log.Printf("Client %s runs version %q, update required", w.remote, cmd.Version)
		w.Send(protocol.NewServerCommand(protocol.UpdateRequired))
		return errStop
	}

	rms := w.acc.rooms
	if rms == nil {
		return w.Send(protocol.Rejection(ErrLobbyDisabled))
	}
	if !w.inLobby {
		if err := rms.Connect(w.ctx, w); err != nil {
			return stopOn(err)
		}
		w.inLobby = true
		log.Printf("Client %s joined the lobby", w.remote)
	}

	err := w.applyCommand(rms, cmd)
	if err == nil {
		return nil
	}
	if errors.Is(err, rooms.ErrStopped) || w.ctx.Err() != nil {
		return errStop
	}
	debugf("Rejected command %d from %s: %v", cmd.CommandType, w.remote, err)
	return w.Send(protocol.Rejection(err))
}

func stopOn(err error) error {
	if errors.Is(err, rooms.ErrStopped) || errors.Is(err, context.Canceled) {
		return errStop
	}
	return err
}

func (w *worker) applyCommand(rms Rooms, cmd *protocol.ClientCommand) error {
	ctx := w.ctx
	switch cmd.CommandType {
	case protocol.GetServerState:
		return rms.ServerState(ctx, w)
	case protocol.SetPlayerInfo:
		if cmd.PlayerInfo == nil {
			return ErrMissingPlayer
		}
		return rms.UpdatePlayer(ctx, w, *cmd.PlayerInfo)
	case protocol.GetAvailableSongs:
		return rms.AvailableSongs(ctx, w)
	case protocol.VoteForSong:
		return rms.Vote(ctx, w, cmd.VoteForLevelID)
	case protocol.GetRooms:
		return rms.ListRooms(ctx, w)
	case protocol.CreateRoom:
		_, err := rms.CreateRoom(ctx, w, rooms.RoomOptions{
			Name:       cmd.RoomName,
			Password:   cmd.Password,
			MaxPlayers: cmd.MaxPlayers,
		})
		return err
	case protocol.JoinRoom:
		_, err := rms.Join(ctx, w, cmd.RoomID, cmd.Password)
		return err
	case protocol.LeaveRoom:
		return rms.Leave(ctx, w)
	case protocol.SongFinished:
		return rms.FinishSong(ctx, w)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCommand, cmd.CommandType)
	}
}

func (w *worker) handleServer(p *protocol.ServerPacket) error {
	reg := w.acc.registry

	if p.RemoveFromCollection {
		if reg.Release(w) {
			w.registered = false
			log.Printf("Unregistered Server [%s] @ [%s:%d]", p.Name, p.IPv4, p.Port)
		}
		return errStop
	}

	ip := p.IPv4
	if ip == "" {
		ip = w.remoteIP()
	}

	if p.FirstConnect {
		rec, evicted := reg.Register(registry.Record{
			IPv4:         ip,
			Name:         p.Name,
			Port:         p.Port,
			Players:      p.Players,
			MaxPlayers:   p.MaxPlayers,
			FirstConnect: true,
		}, w)
		w.registered = true
		if evicted > 0 {
			log.Printf("Removed %d duplicate(s)", evicted)
		}
		log.Printf("Registered Server [%s] @ [%s:%d]", rec.Name, rec.IPv4, rec.Port)

		return w.sendPacket(&protocol.ServerPacket{
			ID:           rec.ID,
			FirstConnect: true,
			IPv4:         rec.IPv4,
			Name:         rec.Name,
			Port:         rec.Port,
			Players:      rec.Players,
			MaxPlayers:   rec.MaxPlayers,
		})
	}

	if !w.registered {
		debugf("Heartbeat from unregistered server %s ignored", w.remote)
		return nil
	}
	_, err := reg.Update(w, func(r *registry.Record) {
		r.IPv4 = ip
		r.Name = p.Name
		r.Port = p.Port
		r.Players = p.Players
		r.MaxPlayers = p.MaxPlayers
		r.FirstConnect = false
	})
	if errors.Is(err, registry.ErrNotRegistered) {
		// evicted by a newer registration of the same server
		w.registered = false
		return errStop
	}
	return err
}

func (w *worker) remoteIP() string {
	host, _, err := net.SplitHostPort(w.remote)
	if err != nil {
		return w.remote
	}
	return host
}

// teardown releases everything the worker holds, in order: context,
// registry record, lobby membership, queued writes, socket. Queued writes get
// at most one WriteTimeout to flush.
func (w *worker) teardown(reason error) {
	w.cancel()

	if w.registered && w.acc.registry.Release(w) {
		log.Printf("Unregistered Server @ [%s] (%v)", w.remote, reason)
	}
	if w.inLobby {
		w.acc.rooms.Disconnect(w)
		log.Printf("Client %s left the lobby", w.remote)
	}

	w.closeOutbound()
	select {
	case <-w.writerDone:
	case <-time.After(w.acc.cfg.WriteTimeout):
		debugf("Flushing %s timed out", w.remote)
	}
	w.Close()
	<-w.writerDone

	debugf("Closed connection %s from %s: %v", w.id, w.remote, reason)
}
