// Package config provides settings management for the ServerHub.
//
// The config package handles:
//   - Loading hub settings from a JSON file
//   - Environment variable overrides (SERVERHUB_*)
//   - Validation of every section with struct tags
//   - Writing a settings file with the current values
//
// Settings Format:
//
// Settings are stored as one JSON document (serverhub.json by default) with
// three sections:
//   - server: TCP listener address, UPnP, connection pool and idle detection
//   - rooms: lobby and preparation timers, tick interval, room limits, song catalog
//   - api: HTTP status API address and optional ngrok tunnel
//
// Missing fields keep their defaults, so a file only needs the values it
// changes:
//
//	{
//	  "server": {"port": 3800, "tryUPnP": false},
//	  "rooms": {"songs": [{"levelId": "abc", "songName": "Song", "duration": 180}]}
//	}
//
// Load Order:
//
// Defaults, then the settings file, then environment variables, then
// command-line flags (applied by the caller). Validate runs last.
//
// Usage:
//
//	s, err := config.Load("serverhub.json")
//	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
//		log.Fatal(err)
//	}
//	if err := s.ApplyEnv(os.LookupEnv); err != nil {
//		log.Fatal(err)
//	}
//	if err := s.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// Validation:
//
// All settings are validated for:
//   - Port ranges and positive pool sizes
//   - Timer and tick minimums
//   - Song entries (level ID, difficulty range, positive duration)
//   - Unique song level IDs
package config
