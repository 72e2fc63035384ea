// Command hubquery asks a ServerHub for one page of its server directory and
// prints it, the same way a game client browses the hub.
//
//	hubquery -addr hub.example.com:3700 -page 1
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/wricardo/serverhub/game/protocol"
)

var errUnexpectedReply = errors.New("unexpected reply")

func main() {
	addr := flag.String("addr", "localhost:3700", "hub address")
	page := flag.Int("page", 0, "directory page (6 servers per page)")
	timeout := flag.Duration("timeout", 5*time.Second, "dial and read timeout")
	flag.Parse()

	servers, err := query(*addr, *page, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	printServers(os.Stdout, *addr, *page, servers)
}

// query sends a directory query for page and reads the single reply frame.
func query(addr string, page int, timeout time.Duration) ([]protocol.ServerInfo, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	frame, err := protocol.Encode(&protocol.ClientPacket{Offset: page})
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}

	reply := make([]byte, protocol.MaxByteLength)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}

	pkt, err := protocol.Decode(reply)
	if err != nil {
		return nil, err
	}
	cp, ok := pkt.(*protocol.ClientPacket)
	if !ok {
		return nil, fmt.Errorf("%w: %s packet", errUnexpectedReply, pkt.ConnectionType())
	}
	return cp.Servers, nil
}

func printServers(w io.Writer, addr string, page int, servers []protocol.ServerInfo) {
	fmt.Fprintf(w, "\n=== %s, page %d ===\n", addr, page)
	if len(servers) == 0 {
		fmt.Fprintln(w, "No servers on this page")
		return
	}
	for _, s := range servers {
		fmt.Fprintf(w, "%4d  %-32s %s:%d  %d/%d\n", s.ID, s.Name, s.IPv4, s.Port, s.Players, s.MaxPlayers)
	}
}
