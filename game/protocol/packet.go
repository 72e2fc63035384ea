package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MaxByteLength is the fixed size of every frame on the wire.
	MaxByteLength = 4096

	// PageSize is the number of servers returned per directory query.
	PageSize = 6

	// maxServersPerFrame bounds the uint8 server count of a query response.
	maxServersPerFrame = 255
)

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrUnknownTag    = errors.New("unknown connection type")
	ErrUnknownKind   = errors.New("unknown client packet kind")
	ErrTruncated     = errors.New("truncated frame")
	ErrFrameTooLarge = errors.New("frame exceeds maximum length")
	ErrBadCommand    = errors.New("malformed command envelope")
)

// ConnectionType tags the origin of a frame.
type ConnectionType int32

const (
	Client ConnectionType = 0
	Server ConnectionType = 1
	Hub    ConnectionType = 2
)

func (t ConnectionType) String() string {
	switch t {
	case Client:
		return "Client"
	case Server:
		return "Server"
	case Hub:
		return "Hub"
	default:
		return fmt.Sprintf("ConnectionType(%d)", int32(t))
	}
}

// clientKind selects the Client payload shape.
const (
	kindQuery   byte = 0
	kindCommand byte = 1
)

// Packet is one decoded frame. The concrete type is always one of
// *ClientPacket, *ServerPacket or *HubPacket.
type Packet interface {
	ConnectionType() ConnectionType
	appendPayload(w *frameWriter)
}

// ServerInfo is the directory summary of a registered game server.
type ServerInfo struct {
	ID         int    `json:"id"`
	IPv4       string `json:"ipv4"`
	Name       string `json:"name"`
	Port       int    `json:"port"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

// ClientPacket is sent by game clients. Without a Command it is a directory
// query for page Offset and the hub answers with the same packet carrying
// Servers. With a Command it is a lobby/room request.
type ClientPacket struct {
	Offset  int
	Servers []ServerInfo
	Command *ClientCommand
}

func (*ClientPacket) ConnectionType() ConnectionType { return Client }

func (p *ClientPacket) appendPayload(w *frameWriter) {
	if p.Command != nil {
		w.byte(kindCommand)
		w.json(p.Command)
		return
	}
	if len(p.Servers) > maxServersPerFrame {
		w.fail(fmt.Errorf("%w: %d servers", ErrFrameTooLarge, len(p.Servers)))
		return
	}
	w.byte(kindQuery)
	w.int32(p.Offset)
	w.byte(byte(len(p.Servers)))
	for _, s := range p.Servers {
		w.int32(s.ID)
		w.string(s.IPv4)
		w.string(s.Name)
		w.int32(s.Port)
		w.int32(s.Players)
		w.int32(s.MaxPlayers)
	}
}

// ServerPacket is sent by game servers to register, heartbeat and unregister.
type ServerPacket struct {
	ID                   int
	FirstConnect         bool
	RemoveFromCollection bool
	IPv4                 string
	Name                 string
	Port                 int
	Players              int
	MaxPlayers           int
}

func (*ServerPacket) ConnectionType() ConnectionType { return Server }

func (p *ServerPacket) appendPayload(w *frameWriter) {
	w.int32(p.ID)
	w.bool(p.FirstConnect)
	w.bool(p.RemoveFromCollection)
	w.string(p.IPv4)
	w.string(p.Name)
	w.int32(p.Port)
	w.int32(p.Players)
	w.int32(p.MaxPlayers)
}

// HubPacket is originated by the hub. It carries an informational message
// and, for lobby and room clients, an optional ServerCommand.
type HubPacket struct {
	Message string
	Command *ServerCommand
}

func (*HubPacket) ConnectionType() ConnectionType { return Hub }

func (p *HubPacket) appendPayload(w *frameWriter) {
	w.string(p.Message)
	w.bool(p.Command != nil)
	if p.Command != nil {
		w.json(p.Command)
	}
}

// DecodeError describes a frame that could not be decoded.
type DecodeError struct {
	Tag    ConnectionType
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame at byte %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes p into a zero-padded frame of exactly MaxByteLength bytes.
func Encode(p Packet) ([]byte, error) {
	w := &frameWriter{buf: make([]byte, 0, MaxByteLength)}
	w.int32(int(p.ConnectionType()))
	p.appendPayload(w)
	if w.err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", p.ConnectionType(), w.err)
	}
	if len(w.buf) > MaxByteLength {
		return nil, fmt.Errorf("encode %s frame: %w (%d bytes)", p.ConnectionType(), ErrFrameTooLarge, len(w.buf))
	}
	frame := make([]byte, MaxByteLength)
	copy(frame, w.buf)
	return frame, nil
}

// Decode parses one frame. Buffers shorter than MaxByteLength are accepted;
// bytes after the payload are ignored.
func Decode(b []byte) (Packet, error) {
	if len(b) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(b) > MaxByteLength {
		return nil, &DecodeError{Tag: -1, Err: ErrFrameTooLarge}
	}

	r := &frameReader{buf: b}
	tag := ConnectionType(r.int32())
	if r.err != nil {
		return nil, &DecodeError{Tag: -1, Offset: r.off, Err: r.err}
	}

	var p Packet
	switch tag {
	case Client:
		p = decodeClient(r)
	case Server:
		p = decodeServer(r)
	case Hub:
		p = decodeHub(r)
	default:
		return nil, &DecodeError{Tag: tag, Offset: 0, Err: ErrUnknownTag}
	}
	if r.err != nil {
		return nil, &DecodeError{Tag: tag, Offset: r.off, Err: r.err}
	}
	return p, nil
}

func decodeClient(r *frameReader) *ClientPacket {
	p := &ClientPacket{}
	switch kind := r.byte(); kind {
	case kindQuery:
		p.Offset = r.int32()
		n := int(r.byte())
		for i := 0; i < n && r.err == nil; i++ {
			var s ServerInfo
			s.ID = r.int32()
			s.IPv4 = r.string()
			s.Name = r.string()
			s.Port = r.int32()
			s.Players = r.int32()
			s.MaxPlayers = r.int32()
			p.Servers = append(p.Servers, s)
		}
	case kindCommand:
		var cmd ClientCommand
		r.json(&cmd)
		p.Command = &cmd
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: %d", ErrUnknownKind, kind)
		}
	}
	return p
}

func decodeServer(r *frameReader) *ServerPacket {
	p := &ServerPacket{}
	p.ID = r.int32()
	p.FirstConnect = r.bool()
	p.RemoveFromCollection = r.bool()
	p.IPv4 = r.string()
	p.Name = r.string()
	p.Port = r.int32()
	p.Players = r.int32()
	p.MaxPlayers = r.int32()
	return p
}

func decodeHub(r *frameReader) *HubPacket {
	p := &HubPacket{Message: r.string()}
	if r.bool() {
		var cmd ServerCommand
		r.json(&cmd)
		p.Command = &cmd
	}
	return p
}

// unmarshalCommand is shared by the frame reader for both envelope kinds.
func unmarshalCommand(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	return nil
}
