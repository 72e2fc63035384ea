package rooms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/wricardo/serverhub/game/protocol"
)

var (
	ErrAuthFailed   = errors.New("wrong room password")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("client is not in a room")
	ErrNotConnected = errors.New("client is not connected to the lobby")
	ErrUnknownSong  = errors.New("song is not available in this room")
	ErrVotingClosed = errors.New("room is not accepting votes")
	ErrNotPlaying   = errors.New("room is not playing a song")
	ErrTooManyRooms = errors.New("room limit reached")
	ErrStopped      = errors.New("room controller stopped")
)

// Options configure every room a controller creates.
type Options struct {
	LobbyTime             time.Duration
	PrepareTime           time.Duration
	DefaultMaxPlayers     int
	MaxRooms              int
	NoFailMode            bool
	ScoreboardScoreFormat string
	Songs                 []protocol.SongInfo
}

// Stats counts clients and rooms.
type Stats struct {
	Rooms        int `json:"rooms"`
	LobbyClients int `json:"lobby_clients"`
	RoomClients  int `json:"room_clients"`
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evCreate
	evJoin
	evLeave
	evVote
	evPlayerInfo
	evSongFinished
	evServerState
	evAvailableSongs
	evListRooms
	evTick
)

type event struct {
	kind     eventKind
	member   Member
	roomID   uint32
	password string
	levelID  string
	player   protocol.PlayerInfo
	room     RoomOptions
	elapsed  time.Duration
	reply    chan result
}

type result struct {
	info RoomInfo
	err  error
}

// Controller owns the lobby and all rooms.
type Controller struct {
	opts Options

	mu         sync.RWMutex
	rooms      map[uint32]*Room
	lobby      map[string]Member
	memberRoom map[string]uint32
	nextID     uint32

	events chan event
	done   chan struct{}
	once   sync.Once
}

// NewController creates a controller. Run must be started before any
// event-driven method is called.
func NewController(opts Options) *Controller {
	if opts.LobbyTime <= 0 {
		opts.LobbyTime = 60 * time.Second
	}
	if opts.PrepareTime < 0 {
		opts.PrepareTime = 0
	}
	return &Controller{
		opts:       opts,
		rooms:      make(map[uint32]*Room),
		lobby:      make(map[string]Member),
		memberRoom: make(map[string]uint32),
		events:     make(chan event),
		done:       make(chan struct{}),
	}
}

// Run applies events until ctx is cancelled. Members still connected are
// kicked on the way out.
func (c *Controller) Run(ctx context.Context) {
	defer c.once.Do(func() { close(c.done) })

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case ev := <-c.events:
			c.mu.Lock()
			res := c.handle(ev)
			c.mu.Unlock()
			ev.reply <- res
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	kick := protocol.NewServerCommand(protocol.Kicked)
	kick.KickReason = "hub is shutting down"
	for _, r := range c.rooms {
		r.broadcast(kick)
	}
	for _, m := range c.lobby {
		m.Send(kick)
	}
	clear(c.rooms)
	clear(c.lobby)
	clear(c.memberRoom)
}

func (c *Controller) submit(ctx context.Context, ev event) result {
	ev.reply = make(chan result, 1)
	select {
	case c.events <- ev:
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case <-c.done:
		return result{err: ErrStopped}
	}
	select {
	case res := <-ev.reply:
		return res
	case <-c.done:
		return result{err: ErrStopped}
	}
}

// Connect adds m to the lobby. Connecting twice is a no-op.
func (c *Controller) Connect(ctx context.Context, m Member) error {
	return c.submit(ctx, event{kind: evConnect, member: m}).err
}

// Disconnect removes m from its room and the lobby. It has no context: it
// waits for the loop until the controller stops.
func (c *Controller) Disconnect(m Member) {
	c.submit(context.Background(), event{kind: evDisconnect, member: m})
}

// CreateRoom creates a room and moves m into it.
func (c *Controller) CreateRoom(ctx context.Context, m Member, ro RoomOptions) (RoomInfo, error) {
	res := c.submit(ctx, event{kind: evCreate, member: m, room: ro})
	return res.info, res.err
}

// Join moves m into the room, leaving its current room first.
func (c *Controller) Join(ctx context.Context, m Member, roomID uint32, password string) (RoomInfo, error) {
	res := c.submit(ctx, event{kind: evJoin, member: m, roomID: roomID, password: password})
	return res.info, res.err
}

// Leave moves m from its room back to the lobby.
func (c *Controller) Leave(ctx context.Context, m Member) error {
	return c.submit(ctx, event{kind: evLeave, member: m}).err
}

// Vote records m's vote in its room.
func (c *Controller) Vote(ctx context.Context, m Member, levelID string) error {
	return c.submit(ctx, event{kind: evVote, member: m, levelID: levelID}).err
}

// UpdatePlayer stores m's latest in-game snapshot.
func (c *Controller) UpdatePlayer(ctx context.Context, m Member, p protocol.PlayerInfo) error {
	return c.submit(ctx, event{kind: evPlayerInfo, member: m, player: p}).err
}

// FinishSong records that m finished the current song.
func (c *Controller) FinishSong(ctx context.Context, m Member) error {
	return c.submit(ctx, event{kind: evSongFinished, member: m}).err
}

// ServerState pushes the state of m's room, or the lobby state, to m.
func (c *Controller) ServerState(ctx context.Context, m Member) error {
	return c.submit(ctx, event{kind: evServerState, member: m}).err
}

// AvailableSongs pushes the songs m can vote for.
func (c *Controller) AvailableSongs(ctx context.Context, m Member) error {
	return c.submit(ctx, event{kind: evAvailableSongs, member: m}).err
}

// ListRooms pushes the lobby's room list to m.
func (c *Controller) ListRooms(ctx context.Context, m Member) error {
	return c.submit(ctx, event{kind: evListRooms, member: m}).err
}

// Tick advances every room clock by elapsed.
func (c *Controller) Tick(ctx context.Context, elapsed time.Duration) error {
	return c.submit(ctx, event{kind: evTick, elapsed: elapsed}).err
}

// handle must be called with mu held.
func (c *Controller) handle(ev event) result {
	switch ev.kind {
	case evConnect:
		id := ev.member.ID()
		if _, ok := c.memberRoom[id]; ok {
			return result{}
		}
		c.lobby[id] = ev.member
		return result{}

	case evDisconnect:
		id := ev.member.ID()
		if roomID, ok := c.memberRoom[id]; ok {
			c.removeFromRoom(id, roomID)
		}
		delete(c.lobby, id)
		return result{}

	case evTick:
		for _, r := range c.rooms {
			r.tick(ev.elapsed)
		}
		return result{}
	}

	if !c.connected(ev.member.ID()) {
		return result{err: ErrNotConnected}
	}

	switch ev.kind {
	case evCreate:
		return c.createRoom(ev.member, ev.room)
	case evJoin:
		return c.join(ev.member, ev.roomID, ev.password)
	case evLeave:
		return c.leave(ev.member)
	case evVote:
		r, err := c.roomOf(ev.member.ID())
		if err != nil {
			return result{err: err}
		}
		return result{err: r.vote(ev.member.ID(), ev.levelID)}
	case evPlayerInfo:
		r, err := c.roomOf(ev.member.ID())
		if err != nil {
			return result{err: err}
		}
		r.players[ev.member.ID()] = ev.player
		return result{}
	case evSongFinished:
		r, err := c.roomOf(ev.member.ID())
		if err != nil {
			return result{err: err}
		}
		if r.state != protocol.Playing {
			return result{err: ErrNotPlaying}
		}
		r.finished[ev.member.ID()] = true
		return result{}
	case evServerState:
		return result{err: ev.member.Send(c.stateCommand(ev.member.ID()))}
	case evAvailableSongs:
		cmd := protocol.NewServerCommand(protocol.DownloadSongs)
		for _, s := range c.songsFor(ev.member.ID()) {
			cmd.SongsToDownload = append(cmd.SongsToDownload, s.LevelID)
		}
		return result{err: ev.member.Send(cmd)}
	case evListRooms:
		cmd := protocol.NewServerCommand(protocol.RoomList)
		cmd.Rooms = c.summaries()
		return result{err: ev.member.Send(cmd)}
	}
	return result{}
}

func (c *Controller) connected(id string) bool {
	if _, ok := c.lobby[id]; ok {
		return true
	}
	_, ok := c.memberRoom[id]
	return ok
}

func (c *Controller) roomOf(id string) (*Room, error) {
	roomID, ok := c.memberRoom[id]
	if !ok {
		return nil, ErrNotInRoom
	}
	return c.rooms[roomID], nil
}

func (c *Controller) createRoom(m Member, ro RoomOptions) result {
	if c.opts.MaxRooms > 0 && len(c.rooms) >= c.opts.MaxRooms {
		return result{err: ErrTooManyRooms}
	}
	c.nextID++
	if ro.Name == "" {
		ro.Name = fmt.Sprintf("Room %d", c.nextID)
	}
	r := newRoom(c.nextID, ro, &c.opts)
	c.rooms[r.id] = r
	log.Printf("Room %d [%s] created by %s", r.id, r.name, m.ID())

	return c.enter(m, r)
}

func (c *Controller) join(m Member, roomID uint32, password string) result {
	r, ok := c.rooms[roomID]
	if !ok {
		return result{err: ErrRoomNotFound}
	}
	if r.hasMember(m.ID()) {
		return result{info: r.info()}
	}
	if r.password != "" && r.password != password {
		return result{err: ErrAuthFailed}
	}
	if r.full() {
		return result{err: ErrRoomFull}
	}
	return c.enter(m, r)
}

// enter moves m from wherever it is into r and tells it what r is doing.
func (c *Controller) enter(m Member, r *Room) result {
	id := m.ID()
	if current, ok := c.memberRoom[id]; ok && current != r.id {
		c.removeFromRoom(id, current)
	}
	delete(c.lobby, id)
	r.addMember(m)
	c.memberRoom[id] = r.id

	m.Send(r.command(protocol.RoomJoined))
	switch r.state {
	case protocol.Preparing:
		m.Send(r.downloadCommand())
	case protocol.Playing:
		m.Send(r.downloadCommand())
		m.Send(r.command(protocol.StartSelectedSongLevel))
	}
	return result{info: r.info()}
}

func (c *Controller) leave(m Member) result {
	id := m.ID()
	roomID, ok := c.memberRoom[id]
	if !ok {
		return result{err: ErrNotInRoom}
	}
	c.removeFromRoom(id, roomID)
	c.lobby[id] = m

	cmd := protocol.NewServerCommand(protocol.RoomLeft)
	cmd.RoomID = roomID
	m.Send(cmd)
	return result{}
}

// removeFromRoom drops the member and destroys the room once it is empty.
func (c *Controller) removeFromRoom(id string, roomID uint32) {
	delete(c.memberRoom, id)
	r, ok := c.rooms[roomID]
	if !ok {
		return
	}
	r.removeMember(id)
	if len(r.members) == 0 {
		delete(c.rooms, roomID)
		log.Printf("Room %d [%s] destroyed (%s)", r.id, r.name, r.state)
	}
}

func (c *Controller) stateCommand(id string) *protocol.ServerCommand {
	if r, err := c.roomOf(id); err == nil {
		return r.command(protocol.SetServerState)
	}
	cmd := protocol.NewServerCommand(protocol.SetServerState)
	cmd.ServerState = protocol.Voting
	cmd.NoFailMode = c.opts.NoFailMode
	cmd.ScoreboardScoreFormat = c.opts.ScoreboardScoreFormat
	return cmd
}

func (c *Controller) songsFor(id string) []protocol.SongInfo {
	if r, err := c.roomOf(id); err == nil {
		return r.songs
	}
	return c.opts.Songs
}

func (c *Controller) sortedRooms() []*Room {
	list := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

func (c *Controller) summaries() []protocol.RoomSummary {
	list := make([]protocol.RoomSummary, 0, len(c.rooms))
	for _, r := range c.sortedRooms() {
		list = append(list, r.info().Summary())
	}
	return list
}

// Rooms returns a snapshot of every room ordered by ID.
func (c *Controller) Rooms() []RoomInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]RoomInfo, 0, len(c.rooms))
	for _, r := range c.sortedRooms() {
		list = append(list, r.info())
	}
	return list
}

// Room returns a snapshot of one room.
func (c *Controller) Room(id uint32) (RoomInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.rooms[id]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}
	return r.info(), nil
}

// Stats counts rooms and the clients in the lobby and in rooms.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Rooms:        len(c.rooms),
		LobbyClients: len(c.lobby),
		RoomClients:  len(c.memberRoom),
	}
}

// Songs returns the default song catalog.
func (c *Controller) Songs() []protocol.SongInfo {
	return c.opts.Songs
}
