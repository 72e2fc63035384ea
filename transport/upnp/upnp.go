// Package upnp opens the hub's listening port on the local internet gateway.
//
// Mapping is best effort: OpenPortAsync gives the gateway a bounded window
// and only logs a warning when nothing answers, so the hub never waits for
// it before accepting connections.
package upnp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// Timeout bounds one mapping attempt, discovery included.
const Timeout = 2500 * time.Millisecond

const description = "ServerHub"

var ErrNoGateway = errors.New("no UPnP internet gateway found")

// Mapper is one WAN connection service of a gateway.
type Mapper interface {
	AddPortMapping(ctx context.Context, externalPort, internalPort uint16, internalClient, description string) error
	LocalAddr() net.IP
}

// DiscoverFunc finds the gateway services able to map ports.
type DiscoverFunc func(ctx context.Context) ([]Mapper, error)

type ipConnection struct {
	*internetgateway2.WANIPConnection1
}

func (c ipConnection) AddPortMapping(ctx context.Context, ext, internal uint16, client, desc string) error {
	return c.AddPortMappingCtx(ctx, "", ext, "TCP", internal, client, true, desc, 0)
}

type pppConnection struct {
	*internetgateway2.WANPPPConnection1
}

func (c pppConnection) AddPortMapping(ctx context.Context, ext, internal uint16, client, desc string) error {
	return c.AddPortMappingCtx(ctx, "", ext, "TCP", internal, client, true, desc, 0)
}

// Discover looks for WANIPConnection services first and falls back to
// WANPPPConnection.
func Discover(ctx context.Context) ([]Mapper, error) {
	var mappers []Mapper

	ipClients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover WANIPConnection: %w", err)
	}
	for _, c := range ipClients {
		mappers = append(mappers, ipConnection{c})
	}
	if len(mappers) > 0 {
		return mappers, nil
	}

	pppClients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover WANPPPConnection: %w", err)
	}
	for _, c := range pppClients {
		mappers = append(mappers, pppConnection{c})
	}
	return mappers, nil
}

// OpenPort maps TCP port on the first gateway that accepts it.
func OpenPort(ctx context.Context, port int, discover DiscoverFunc) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	mappers, err := discover(ctx)
	if err != nil {
		return err
	}
	if len(mappers) == 0 {
		return ErrNoGateway
	}

	var errs []error
	for _, m := range mappers {
		local := m.LocalAddr()
		if local == nil {
			errs = append(errs, errors.New("gateway has no local address"))
			continue
		}
		err := m.AddPortMapping(ctx, uint16(port), uint16(port), local.String(), description)
		if err == nil {
			log.Printf("Opened port %d via UPnP for %s", port, local)
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("map port %d: %w", port, errors.Join(errs...))
}

// OpenPortAsync runs OpenPort with Discover in its own goroutine.
func OpenPortAsync(ctx context.Context, port int) {
	go func() {
		if err := OpenPort(ctx, port, Discover); err != nil {
			log.Printf("Warning: UPnP port mapping failed: %v", err)
		}
	}()
}
