// Command serverhub starts the ServerHub.
//
// It supports three subcommands:
//  1. "serve" (default) – runs the TCP hub, the room lobby and the HTTP status API
//     (REST, WebSocket feeds and an /mcp endpoint)
//  2. "mcp" – runs an MCP stdio server that proxies to a running hub's status API
//  3. "validate" – checks settings files
//
// Settings come from a JSON file, then SERVERHUB_* environment variables
// (a .env file is loaded first), then command-line flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/serverhub/game/config"
	"github.com/wricardo/serverhub/game/protocol"
	"github.com/wricardo/serverhub/transport/mcp"
	"github.com/wricardo/serverhub/transport/tcp"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "ServerHub"
)

var errInvalidFiles = errors.New("some settings files have errors")

// main loads .env and runs the command line.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// newApp builds the root command
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "serverhub",
		Usage:   "directory and lobby hub for multiplayer game servers",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultFile,
				Usage:   "settings file",
				Sources: cli.EnvVars("SERVERHUB_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "TCP hub listen host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "TCP hub listen port",
			},
			&cli.BoolFlag{
				Name:  "no-upnp",
				Usage: "do not try to open the hub port via UPnP",
			},
			&cli.IntFlag{
				Name:  "api-port",
				Usage: "HTTP status API port",
			},
			&cli.BoolFlag{
				Name:  "no-api",
				Usage: "disable the HTTP status API",
			},
			&cli.BoolFlag{
				Name:  "ngrok",
				Usage: "expose the status API through an ngrok tunnel",
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "ngrok-domain",
				Usage: "custom ngrok domain",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
				tcp.Debug = true
			} else {
				log.SetFlags(log.LstdFlags)
			}
			return ctx, nil
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the hub (default)",
				Action: serveAction,
			},
			{
				Name:  "mcp",
				Usage: "run an MCP stdio server against a hub's status API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Usage:   "status API base URL (default: from settings)",
						Sources: cli.EnvVars("SERVERHUB_API_URL"),
					},
				},
				Action: mcpAction,
			},
			{
				Name:      "validate",
				Usage:     "validate settings files",
				ArgsUsage: "[files...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "write-defaults",
						Usage: "write the default settings to files that do not exist",
					},
				},
				Action: validateAction,
			},
		},
	}
}

// loadSettings applies file, environment and flags, in that order
func loadSettings(cmd *cli.Command) (*config.Settings, error) {
	path := cmd.String("config")
	s, err := config.Load(path)
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		log.Printf("No settings file at %s, using defaults", path)
	case err != nil:
		return nil, err
	}

	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		s.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.Server.Port = int(cmd.Int("port"))
	}
	if cmd.Bool("no-upnp") {
		s.Server.TryUPnP = false
	}
	if cmd.IsSet("api-port") {
		s.API.Port = int(cmd.Int("api-port"))
	}
	if cmd.Bool("no-api") {
		s.API.Enabled = false
	}
	if cmd.Bool("ngrok") {
		s.API.Ngrok = true
	}
	if cmd.IsSet("ngrok-domain") {
		s.API.NgrokDomain = cmd.String("ngrok-domain")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	log.Printf("Starting %s v%s (protocol %s)", AppName, Version, protocol.Version)
	return runServe(ctx, s, cmd.String("ngrok-auth"))
}

// mcpAction runs an MCP stdio server. Logs go to stderr; stdout carries the
// protocol.
func mcpAction(ctx context.Context, cmd *cli.Command) error {
	baseURL := cmd.String("api-url")
	if baseURL == "" {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		baseURL = apiBaseURL(&s.API)
	}

	log.Printf("Checking for hub status API at %s...", baseURL)
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/health")
	if err == nil {
		resp.Body.Close()
		log.Printf("Hub status API found at %s", baseURL)
	} else {
		log.Printf("Warning: hub status API not reachable at %s, tools will fail until it is up", baseURL)
	}

	client := mcp.NewClient(baseURL, Version)
	log.Println("MCP stdio server ready")
	return client.ServeStdio()
}

// validateAction checks every file and fails if any is invalid
func validateAction(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		files = []string{cmd.String("config")}
	}

	if cmd.Bool("write-defaults") {
		for _, file := range files {
			if _, err := os.Stat(file); os.IsNotExist(err) {
				if err := config.Default().Save(file); err != nil {
					return err
				}
				log.Printf("Wrote default settings to %s", file)
			}
		}
	}

	if !validateFiles(cmd.Root().Writer, files) {
		return errInvalidFiles
	}
	return nil
}

// validateFiles prints a report for each settings file and reports whether
// all of them are valid
func validateFiles(w io.Writer, files []string) bool {
	if w == nil {
		w = os.Stdout
	}

	allValid := true
	for _, file := range files {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), file)

		s, err := config.Load(file)
		if err == nil {
			err = s.Validate()
		}
		if err != nil {
			allValid = false
			fmt.Fprintln(w, "❌ INVALID")
			fmt.Fprintf(w, "  ❌ %v\n", err)
			continue
		}

		fmt.Fprintln(w, "✅ VALID")
		fmt.Fprintf(w, "  ✓ hub on %s, %d songs, status API %s\n",
			s.Server.ListenAddr(), len(s.Rooms.Songs), apiSummary(&s.API))
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All settings files are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some settings files have errors")
	}
	return allValid
}

func apiSummary(a *config.APISettings) string {
	if !a.Enabled {
		return "disabled"
	}
	return "on " + a.ListenAddr()
}

// apiBaseURL is the URL local clients use to reach the status API
func apiBaseURL(a *config.APISettings) string {
	host := a.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, a.Port)
}
