// Package tcp provides the hub's raw TCP transport.
//
// The tcp package implements:
//   - A bounded accept loop (one goroutine per connection, capped by a semaphore)
//   - Fixed-size frame assembly over a stream socket
//   - Game server registration, heartbeats and deregistration
//   - One-shot directory queries
//   - Lobby client commands routed to the room controller
//
// Architecture:
//
// Acceptor owns the listener. Each accepted socket gets a worker with its own
// context, a read loop and a writer goroutine draining a bounded send queue.
// The worker is the registry Owner of the record it registers and the rooms
// Member of the lobby client it represents, so evicting a record or kicking a
// member closes the right socket.
//
// Frame Assembly:
//
// Every frame is protocol.MaxByteLength bytes, but peers may stop writing
// once their payload ends. A frame is handed to the decoder when the buffer
// is full or when the stream goes quiet for one ReadPoll with bytes pending.
//
// Null Packets:
//
// Empty reads, undecodable frames and rejected frames count as null
// packets. NullPacketThreshold consecutive null packets end the connection as
// lost; any successfully handled frame resets the count. A ReadPoll that
// expires with nothing buffered is neither: lobby clients and game servers
// may stay silent for as long as they like. Dead peers are found by EOF,
// reset errors and the TCP keep-alive the listener enables by default.
//
// Teardown:
//
// A worker stops on EOF, reset, context cancellation, a closed socket or
// lost connection. Teardown cancels the context, removes the registry record,
// leaves the lobby, flushes queued writes for up to one WriteTimeout, closes
// the socket and only then frees the pool slot. Workers are detached from the
// cancellation of the context passed to Start, so a shutdown can push final
// commands (such as Kicked) before CloseAll ends them.
//
// Usage:
//
//	acc := tcp.NewAcceptor(tcp.Config{Addr: ":3700"}, reg, ctrl)
//	if err := acc.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	...
//	acc.Stop()
//	acc.CloseAll()
//	acc.Wait()
package tcp
