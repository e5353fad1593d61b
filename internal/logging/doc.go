// Package logging provides structured logging with per-module log levels.
//
// Every module gets its own *slog.Logger from GetLogger, tagged with a
// module attribute and gated by its own level. Output goes to stdout (text
// or JSON), to the systemd journal when journald is reachable, and to an
// in-memory history that GET /api/logs queries by module, level and
// sequence number.
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"transport": "debug",
//			"ffmpeg":    "warn",
//		},
//	})
//
//	logger := logging.GetLogger("session")
//	logger.Info("Session streaming", "session_id", id)
//
// Loggers may be fetched before Initialize; they are cached and follow the
// configuration applied later.
//
// The equivalent TOML section:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	transport = "debug"
//
// Journal entries carry SYSLOG_IDENTIFIER=framelink and upper-cased
// attribute fields:
//
//	journalctl -t framelink MODULE=session
package logging
