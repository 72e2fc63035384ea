package protocol

import (
	"errors"
	"strings"
)

// Version is the command protocol version spoken by this hub.
const Version = "0.4.5.0"

var ErrUpdateRequired = errors.New("client version is not compatible with this hub")

// ServerState is the phase of a room.
type ServerState int

const (
	Voting ServerState = iota
	Preparing
	Playing
)

func (s ServerState) String() string {
	switch s {
	case Voting:
		return "voting"
	case Preparing:
		return "preparing"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// ServerCommandType values up to Kicked match the game client; the rest are
// room-management extensions.
type ServerCommandType int

const (
	SetServerState ServerCommandType = iota
	SetLobbyTimer
	DownloadSongs
	StartSelectedSongLevel
	SetPlayerInfos
	SetSelectedSong
	UpdateRequired
	Ping
	Kicked
	RoomList
	RoomJoined
	CommandRejected
	RoomLeft
)

// ClientCommandType values up to VoteForSong match the game client.
type ClientCommandType int

const (
	GetServerState ClientCommandType = iota
	SetPlayerInfo
	GetAvailableSongs
	VoteForSong
	GetRooms
	CreateRoom
	JoinRoom
	LeaveRoom
	SongFinished
)

// PlayerInfo is a snapshot of one player's in-game state.
type PlayerInfo struct {
	PlayerName        string `json:"playerName"`
	PlayerID          uint64 `json:"playerId"`
	PlayerScore       int    `json:"playerScore"`
	PlayerCutBlocks   int    `json:"playerCutBlocks"`
	PlayerComboBlocks int    `json:"playerComboBlocks"`
	PlayerEnergy      int    `json:"playerEnergy"`
	PlayerAvatar      string `json:"playerAvatar,omitempty"`
}

// SongInfo describes a song a room can vote for.
type SongInfo struct {
	LevelID    string  `json:"levelId" validate:"required"`
	SongName   string  `json:"songName"`
	AuthorName string  `json:"authorName,omitempty"`
	Difficulty int     `json:"difficulty" validate:"min=0,max=4"`
	Duration   float64 `json:"duration" validate:"gt=0"`
}

// RoomSummary is the lobby view of a room.
type RoomSummary struct {
	ID          uint32      `json:"roomId"`
	Name        string      `json:"name"`
	State       ServerState `json:"state"`
	Players     int         `json:"players"`
	MaxPlayers  int         `json:"maxPlayers"`
	HasPassword bool        `json:"hasPassword"`
}

// ServerCommand is pushed from the hub to lobby and room clients.
type ServerCommand struct {
	Version               string            `json:"version"`
	CommandType           ServerCommandType `json:"commandType"`
	ServerState           ServerState       `json:"serverState"`
	LobbyTimer            int               `json:"lobbyTimer"`
	SongsToDownload       []string          `json:"songsToDownload,omitempty"`
	SelectedLevelID       string            `json:"selectedLevelID"`
	SelectedSongDifficlty int               `json:"selectedSongDifficlty"`
	PlayerInfos           []PlayerInfo      `json:"playerInfos,omitempty"`
	SelectedSongDuration  float64           `json:"selectedSongDuration"`
	SelectedSongPlayTime  float64           `json:"selectedSongPlayTime"`
	KickReason            string            `json:"kickReason,omitempty"`
	NoFailMode            bool              `json:"noFailMode"`
	ScoreboardScoreFormat string            `json:"scoreboardScoreFormat,omitempty"`
	RoomID                uint32            `json:"roomId,omitempty"`
	Rooms                 []RoomSummary     `json:"rooms,omitempty"`
	Error                 string            `json:"error,omitempty"`
}

// NewServerCommand returns a command of type t stamped with Version.
func NewServerCommand(t ServerCommandType) *ServerCommand {
	return &ServerCommand{Version: Version, CommandType: t}
}

// ClientCommand is sent by lobby and room clients.
type ClientCommand struct {
	Version        string            `json:"version"`
	CommandType    ClientCommandType `json:"commandType"`
	PlayerInfo     *PlayerInfo       `json:"playerInfo,omitempty"`
	VoteForLevelID string            `json:"voteForLevelId,omitempty"`
	RoomID         uint32            `json:"roomId,omitempty"`
	Password       string            `json:"password,omitempty"`
	RoomName       string            `json:"roomName,omitempty"`
	MaxPlayers     int               `json:"maxPlayers,omitempty"`
}

// NewClientCommand returns a command of type t stamped with Version.
func NewClientCommand(t ClientCommandType) *ClientCommand {
	return &ClientCommand{Version: Version, CommandType: t}
}

// Rejection builds the CommandRejected reply for a failed client command.
func Rejection(err error) *ServerCommand {
	cmd := NewServerCommand(CommandRejected)
	cmd.Error = err.Error()
	return cmd
}

// CheckVersion reports ErrUpdateRequired when v does not share this hub's
// major version. Minor components are not interpreted.
func CheckVersion(v string) error {
	if majorOf(v) == "" || majorOf(v) != majorOf(Version) {
		return ErrUpdateRequired
	}
	return nil
}

func majorOf(v string) string {
	major, _, _ := strings.Cut(strings.TrimSpace(v), ".")
	for _, c := range major {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return major
}
