// Package protocol implements the ServerHub wire format.
//
// The protocol package implements:
//   - Fixed-size binary frames exchanged over raw TCP
//   - The ConnectionType tag space (Client, Server, Hub)
//   - Directory query/response and server registration payloads
//   - JSON command envelopes (ServerCommand, ClientCommand) carried inside frames
//
// Frame Format:
//
// Every frame starts with a little-endian int32 ConnectionType tag followed by
// the payload for that tag. Encode always produces exactly MaxByteLength bytes,
// padding the frame with zeros. Decode accepts anything from one byte up to
// MaxByteLength and ignores trailing padding, so peers that send short frames
// are still understood.
//
//	tag=Client  kind=query    offset, servers[]
//	tag=Client  kind=command  ClientCommand (JSON)
//	tag=Server               id, firstConnect, removeFromCollection, ipv4, name, port, players, maxPlayers
//	tag=Hub                  message, ServerCommand (JSON, optional)
//
// The tag values are a compatibility contract with existing game servers and
// clients and must never change.
//
// Usage:
//
//	frame, err := protocol.Encode(&protocol.ClientPacket{Offset: 1})
//	if err != nil {
//		log.Fatal(err)
//	}
//	conn.Write(frame)
//
//	packet, err := protocol.Decode(buf[:n])
//	switch p := packet.(type) {
//	case *protocol.ClientPacket:
//	case *protocol.ServerPacket:
//	case *protocol.HubPacket:
//	}
//
// Errors:
//
// Malformed frames yield a *DecodeError wrapping ErrUnknownTag, ErrTruncated or
// ErrFrameTooLarge. An empty buffer yields ErrEmptyFrame, which callers treat as
// "no data yet", not as a disconnect.
package protocol
