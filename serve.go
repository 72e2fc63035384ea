package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/serverhub/api"
	"github.com/wricardo/serverhub/game/config"
	"github.com/wricardo/serverhub/game/registry"
	"github.com/wricardo/serverhub/game/rooms"
	"github.com/wricardo/serverhub/game/service"
	"github.com/wricardo/serverhub/transport/mcp"
	"github.com/wricardo/serverhub/transport/tcp"
	"github.com/wricardo/serverhub/transport/upnp"
	"github.com/wricardo/serverhub/transport/websocket"
)

// runServe runs the hub until SIGINT/SIGTERM. Only a TCP bind failure is
// returned as an error.
func runServe(parent context.Context, s *config.Settings, ngrokAuth string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	controller := rooms.NewController(rooms.Options{
		LobbyTime:             s.Rooms.LobbyTime(),
		PrepareTime:           s.Rooms.PrepareTime(),
		DefaultMaxPlayers:     s.Rooms.DefaultMaxPlayers,
		MaxRooms:              s.Rooms.MaxRooms,
		NoFailMode:            s.Rooms.NoFailMode,
		ScoreboardScoreFormat: s.Rooms.ScoreboardScoreFormat,
		Songs:                 s.Rooms.Songs,
	})

	acceptor := tcp.NewAcceptor(tcp.Config{
		Addr:                s.Server.ListenAddr(),
		MaxConnections:      int64(s.Server.MaxConnections),
		ReadPoll:            s.Server.ReadPoll(),
		NullPacketThreshold: s.Server.NullPacketThreshold,
		WriteTimeout:        s.Server.WriteTimeout(),
		SendBuffer:          s.Server.SendBuffer,
	}, reg, controller)

	if err := acceptor.Start(ctx); err != nil {
		return err
	}
	if s.Server.TryUPnP {
		upnp.OpenPortAsync(ctx, s.Server.Port)
	}

	wsHub := websocket.NewHub()
	loop := service.NewLoop(s.Rooms.TickInterval(), reg, controller, wsHub, newTitlePublisher(log.Printf))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		controller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return loop.Run(gctx)
	})

	if s.API.Enabled {
		hubService := service.NewHubService(reg, controller)
		mcpClient := mcp.NewClient(apiBaseURL(&s.API), Version)
		handler := api.NewServer(hubService, wsHub,
			api.WithMCP(mcpClient.HandleHTTP),
			api.WithAccessLog(log.Writer()),
		)

		g.Go(func() error {
			serveAPI(gctx, s.API.ListenAddr(), handler)
			return nil
		})
		if s.API.Ngrok {
			g.Go(func() error {
				serveNgrok(gctx, ngrokAuth, s.API.NgrokDomain, handler)
				return nil
			})
		}
	}

	// Shutdown order: stop accepting, let the controller kick room members,
	// then close whatever is left. Workers are not cancelled by ctx, so the
	// kicks are queued before CloseAll flushes them.
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		acceptor.Stop()
		<-controller.Done()
		acceptor.CloseAll()
		acceptor.Wait()
		return nil
	})

	err := g.Wait()
	log.Println("ServerHub stopped")
	return err
}

// serveAPI serves the status API until ctx is done
func serveAPI(ctx context.Context, addr string, handler http.Handler) {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("HTTP server failed: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	log.Printf("HTTP status API listening on %s", ln.Addr())
	log.Printf("REST API: http://%s/api", ln.Addr())
	log.Printf("WebSocket: ws://%s/ws?topic=stats", ln.Addr())
	log.Printf("MCP endpoint: http://%s/mcp", ln.Addr())

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("HTTP server failed: %v", err)
	}
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done
func serveNgrok(ctx context.Context, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Printf("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?topic=stats", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// titlePublisher logs the hub counters whenever they change
type titlePublisher struct {
	logf func(format string, args ...any)

	mu   sync.Mutex
	last string
}

func newTitlePublisher(logf func(format string, args ...any)) *titlePublisher {
	return &titlePublisher{logf: logf}
}

func (p *titlePublisher) Publish(snap *service.Snapshot) {
	title := hubTitle(snap.Stats)

	p.mu.Lock()
	defer p.mu.Unlock()
	if title == p.last {
		return
	}
	p.last = title
	p.logf("%s", title)
}

func hubTitle(s service.Stats) string {
	return fmt.Sprintf("%s v%s: %d servers, %d rooms, %d clients in lobby, %d clients total",
		AppName, Version, s.Servers, s.Rooms, s.LobbyClients, s.TotalClients)
}
