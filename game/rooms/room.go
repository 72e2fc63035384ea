package rooms

import (
	"log"
	"math"
	"slices"
	"time"

	"github.com/wricardo/serverhub/game/protocol"
)

// Member is a lobby client as seen by the controller.
type Member interface {
	ID() string
	// Send queues cmd for the client. It must not block.
	Send(cmd *protocol.ServerCommand) error
}

// RoomOptions are chosen by the client that creates a room.
type RoomOptions struct {
	Name       string
	Password   string
	MaxPlayers int
	Songs      []protocol.SongInfo
}

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	ID              uint32                `json:"id"`
	Name            string                `json:"name"`
	State           protocol.ServerState  `json:"state"`
	StateName       string                `json:"state_name"`
	HasPassword     bool                  `json:"has_password"`
	MaxPlayers      int                   `json:"max_players"`
	Members         []string              `json:"members"`
	LobbyTimer      int                   `json:"lobby_timer"`
	SelectedLevelID string                `json:"selected_level_id,omitempty"`
	PlayTime        float64               `json:"play_time,omitempty"`
	Songs           []protocol.SongInfo   `json:"songs"`
	Players         []protocol.PlayerInfo `json:"players,omitempty"`
}

// Summary converts the snapshot to its lobby listing.
func (i RoomInfo) Summary() protocol.RoomSummary {
	return protocol.RoomSummary{
		ID:          i.ID,
		Name:        i.Name,
		State:       i.State,
		Players:     len(i.Members),
		MaxPlayers:  i.MaxPlayers,
		HasPassword: i.HasPassword,
	}
}

// Room is one voting/playing session. It is not safe for concurrent use; the
// controller serializes every call.
type Room struct {
	id         uint32
	name       string
	password   string
	maxPlayers int
	songs      []protocol.SongInfo
	opts       *Options

	state    protocol.ServerState
	timer    time.Duration
	playTime time.Duration
	selected int

	members   []Member
	votes     map[string]string
	firstVote map[string]uint64
	voteSeq   uint64
	players   map[string]protocol.PlayerInfo
	finished  map[string]bool
}

func newRoom(id uint32, ro RoomOptions, opts *Options) *Room {
	songs := ro.Songs
	if len(songs) == 0 {
		songs = opts.Songs
	}
	maxPlayers := ro.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = opts.DefaultMaxPlayers
	}
	return &Room{
		id:         id,
		name:       ro.Name,
		password:   ro.Password,
		maxPlayers: maxPlayers,
		songs:      slices.Clone(songs),
		opts:       opts,
		state:      protocol.Voting,
		timer:      opts.LobbyTime,
		selected:   -1,
		votes:      make(map[string]string),
		firstVote:  make(map[string]uint64),
		players:    make(map[string]protocol.PlayerInfo),
		finished:   make(map[string]bool),
	}
}

func (r *Room) hasMember(id string) bool {
	return slices.ContainsFunc(r.members, func(m Member) bool { return m.ID() == id })
}

func (r *Room) full() bool {
	return r.maxPlayers > 0 && len(r.members) >= r.maxPlayers
}

func (r *Room) addMember(m Member) {
	if r.hasMember(m.ID()) {
		return
	}
	r.members = append(r.members, m)
}

func (r *Room) removeMember(id string) bool {
	idx := slices.IndexFunc(r.members, func(m Member) bool { return m.ID() == id })
	if idx < 0 {
		return false
	}
	r.members = slices.Delete(r.members, idx, idx+1)
	delete(r.votes, id)
	delete(r.players, id)
	delete(r.finished, id)
	return true
}

func (r *Room) songIndex(levelID string) int {
	return slices.IndexFunc(r.songs, func(s protocol.SongInfo) bool { return s.LevelID == levelID })
}

func (r *Room) vote(memberID, levelID string) error {
	if r.state != protocol.Voting {
		return ErrVotingClosed
	}
	if r.songIndex(levelID) < 0 {
		return ErrUnknownSong
	}
	r.votes[memberID] = levelID
	if _, ok := r.firstVote[levelID]; !ok {
		r.voteSeq++
		r.firstVote[levelID] = r.voteSeq
	}
	return nil
}

// winner returns the index of the song to play next.
func (r *Room) winner() int {
	counts := make(map[string]int)
	for _, levelID := range r.votes {
		counts[levelID]++
	}

	best, bestCount, bestSeq := "", 0, uint64(math.MaxUint64)
	for levelID, n := range counts {
		seq := r.firstVote[levelID]
		if n > bestCount || (n == bestCount && seq < bestSeq) {
			best, bestCount, bestSeq = levelID, n, seq
		}
	}
	if best != "" {
		return r.songIndex(best)
	}
	return (r.selected + 1) % len(r.songs)
}

func (r *Room) selectedSong() (protocol.SongInfo, bool) {
	if r.selected < 0 || r.selected >= len(r.songs) {
		return protocol.SongInfo{}, false
	}
	return r.songs[r.selected], true
}

func (r *Room) songDuration() time.Duration {
	song, ok := r.selectedSong()
	if !ok {
		return 0
	}
	return time.Duration(song.Duration * float64(time.Second))
}

func (r *Room) allFinished() bool {
	if len(r.members) == 0 {
		return false
	}
	for _, m := range r.members {
		if !r.finished[m.ID()] {
			return false
		}
	}
	return true
}

// tick advances the room clock and performs timed transitions.
func (r *Room) tick(elapsed time.Duration) {
	switch r.state {
	case protocol.Voting:
		r.timer -= elapsed
		if r.timer > 0 {
			r.broadcast(r.command(protocol.SetLobbyTimer))
			return
		}
		r.startPreparing()

	case protocol.Preparing:
		r.timer -= elapsed
		if r.timer > 0 {
			r.broadcast(r.command(protocol.SetLobbyTimer))
			return
		}
		r.startPlaying()

	case protocol.Playing:
		r.playTime += elapsed
		if r.playTime >= r.songDuration() || r.allFinished() {
			r.startVoting()
			return
		}
		cmd := r.command(protocol.SetPlayerInfos)
		cmd.PlayerInfos = r.playerInfos()
		r.broadcast(cmd)
	}
}

func (r *Room) startPreparing() {
	if len(r.songs) == 0 {
		r.timer = r.opts.LobbyTime
		r.broadcast(r.command(protocol.SetLobbyTimer))
		return
	}
	r.selected = r.winner()
	r.state = protocol.Preparing
	r.timer = r.opts.PrepareTime

	song, _ := r.selectedSong()
	log.Printf("Room %d [%s] selected %q", r.id, r.name, song.SongName)

	r.broadcast(r.downloadCommand())
	r.broadcast(r.command(protocol.SetSelectedSong))
}

func (r *Room) startPlaying() {
	r.state = protocol.Playing
	r.playTime = 0
	clear(r.finished)
	clear(r.players)
	r.broadcast(r.command(protocol.StartSelectedSongLevel))
}

func (r *Room) startVoting() {
	r.state = protocol.Voting
	r.timer = r.opts.LobbyTime
	r.playTime = 0
	r.voteSeq = 0
	clear(r.votes)
	clear(r.firstVote)
	clear(r.players)
	clear(r.finished)
	r.broadcast(r.command(protocol.SetServerState))
}

func (r *Room) downloadCommand() *protocol.ServerCommand {
	cmd := r.command(protocol.DownloadSongs)
	if song, ok := r.selectedSong(); ok {
		cmd.SongsToDownload = []string{song.LevelID}
	}
	return cmd
}

// command builds a ServerCommand carrying the room's current snapshot.
func (r *Room) command(t protocol.ServerCommandType) *protocol.ServerCommand {
	cmd := protocol.NewServerCommand(t)
	cmd.RoomID = r.id
	cmd.ServerState = r.state
	cmd.LobbyTimer = int(math.Ceil(r.timer.Seconds()))
	cmd.NoFailMode = r.opts.NoFailMode
	cmd.ScoreboardScoreFormat = r.opts.ScoreboardScoreFormat
	if song, ok := r.selectedSong(); ok {
		cmd.SelectedLevelID = song.LevelID
		cmd.SelectedSongDifficlty = song.Difficulty
		cmd.SelectedSongDuration = song.Duration
	}
	if r.state == protocol.Playing {
		cmd.SelectedSongPlayTime = r.playTime.Seconds()
	}
	return cmd
}

// playerInfos returns the snapshots in member order.
func (r *Room) playerInfos() []protocol.PlayerInfo {
	infos := make([]protocol.PlayerInfo, 0, len(r.players))
	for _, m := range r.members {
		if p, ok := r.players[m.ID()]; ok {
			infos = append(infos, p)
		}
	}
	return infos
}

func (r *Room) broadcast(cmd *protocol.ServerCommand) {
	for _, m := range r.members {
		if err := m.Send(cmd); err != nil {
			log.Printf("Room %d: failed to send command %d to %s: %v", r.id, cmd.CommandType, m.ID(), err)
		}
	}
}

func (r *Room) info() RoomInfo {
	info := RoomInfo{
		ID:          r.id,
		Name:        r.name,
		State:       r.state,
		StateName:   r.state.String(),
		HasPassword: r.password != "",
		MaxPlayers:  r.maxPlayers,
		Members:     make([]string, 0, len(r.members)),
		LobbyTimer:  int(math.Ceil(r.timer.Seconds())),
		Songs:       slices.Clone(r.songs),
		Players:     r.playerInfos(),
	}
	for _, m := range r.members {
		info.Members = append(info.Members, m.ID())
	}
	if song, ok := r.selectedSong(); ok && r.state != protocol.Voting {
		info.SelectedLevelID = song.LevelID
	}
	if r.state == protocol.Playing {
		info.PlayTime = r.playTime.Seconds()
	}
	return info
}
