package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/framelink/cmd"
	"github.com/smazurov/framelink/internal/api"
	"github.com/smazurov/framelink/internal/config"
	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/led"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/metrics/exporters"
	"github.com/smazurov/framelink/internal/session"
	"github.com/smazurov/framelink/internal/systemd"
	"github.com/smazurov/framelink/internal/version"
	"github.com/smazurov/framelink/pkg/wire"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address of the control API" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Capture settings
	FFmpegOptions string `help:"Comma separated ffmpeg input options for device capture" default:"" toml:"capture.ffmpeg_options" env:"CAPTURE_FFMPEG_OPTIONS"`
	SettingsFile  string `help:"Capture settings file, watched while a session runs" default:"settings.toml" toml:"capture.settings_file" env:"CAPTURE_SETTINGS_FILE"`

	// Stream started with the service; empty host starts nothing
	StreamHost string `help:"Consumer host to stream to on startup" default:"" toml:"stream.host" env:"STREAM_HOST"`
	StreamPort int    `help:"Consumer port" default:"5000" toml:"stream.port" env:"STREAM_PORT"`
	StreamUSB  bool   `help:"Stream over a USB port forward on 127.0.0.1" default:"false" toml:"stream.usb" env:"STREAM_USB"`

	// Features settings
	FeaturesLEDControl bool   `help:"Show session state on the board status LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	LEDStatus          string `help:"sysfs LED for session state, overriding board detection" default:"" toml:"features.led_status" env:"FEATURES_LED_STATUS"`
	LEDTorch           string `help:"sysfs LED driven by FLASH" default:"" toml:"features.led_torch" env:"FEATURES_LED_TORCH"`

	// Observability settings
	MetricsEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Module levels come from the [logging] table; global level and format from options
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		logger.Info("Starting framelink", "version", version.String())

		var ffmpegOptions []string
		if opts.FFmpegOptions != "" {
			ffmpegOptions = strings.Split(opts.FFmpegOptions, ",")
		}
		provider, err := cmd.NewProvider(ffmpegOptions)
		if err != nil {
			logger.Error("Invalid ffmpeg options", "error", err)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()
		manager := session.NewManager(provider, eventBus)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Manager:      manager,
			Cameras:      provider,
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		// Initialize LED control if enabled
		var ledManager *led.Manager
		if opts.FeaturesLEDControl {
			ledController := led.New(logging.GetLogger("led"), map[string]string{
				led.RoleStatus: opts.LEDStatus,
				led.RoleTorch:  opts.LEDTorch,
			})
			ledManager = led.NewManager(ledController, eventBus, logging.GetLogger("led"))
		}

		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
		unfollow := notifier.FollowSession(eventBus)
		watchdogCtx, stopWatchdog := context.WithCancel(context.Background())

		watcher := config.NewConfigWatcher(
			opts.SettingsFile,
			config.LoadSettings,
			logger,
			config.WithDebounce[config.Settings](500*time.Millisecond),
			config.WithErrorHandler[config.Settings](func(err error) {
				logger.Warn("Ignoring settings change", "error", err)
			}),
		)
		watcher.OnReload(func(s config.Settings) {
			// Settings only steer a running session; idle edits wait for the next start
			err := manager.UpdateSettings(cmd.SessionSettings(s))
			switch {
			case errors.Is(err, session.ErrNotStreaming):
				logger.Debug("Settings changed while idle")
			case err != nil:
				logger.Warn("Failed to apply settings", "error", err)
			}
		})

		hooks.OnStart(func() {
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to start settings watcher, hot-reload disabled", "error", startErr)
			}

			if ledManager != nil {
				ledManager.Start()
			}

			if opts.StreamHost != "" || opts.StreamUSB {
				startStream(manager, opts, logger)
			}

			go notifier.RunWatchdog(watchdogCtx)
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			stopWatchdog()
			unfollow()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop the session after the API stops accepting requests
			manager.Stop()
			_ = watcher.Stop()

			if ledManager != nil {
				ledManager.Stop()
			}
		})
	})

	cli.Root().Use = "framelink"
	cli.Root().Short = "Stream camera frames to a consumer over TCP"
	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateStreamCmd())
	cli.Root().AddCommand(cmd.CreateListenCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())

	// Run the CLI
	cli.Run()
}

func startStream(manager *session.Manager, opts *Options, logger *slog.Logger) {
	settings, err := config.LoadSettings(opts.SettingsFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		settings = config.DefaultSettings()
	case err != nil:
		logger.Warn("Not starting stream", "error", err)
		return
	}

	req := session.StartRequest{
		Settings:   cmd.SessionSettings(settings),
		Address:    opts.StreamHost,
		Port:       opts.StreamPort,
		Connection: wire.ConnectionWiFi,
	}
	if opts.StreamUSB {
		req.Connection = wire.ConnectionUSB
	}
	if err := manager.Start(req); err != nil {
		logger.Warn("Not starting stream", "error", err)
		return
	}
	logger.Info("Stream started", "host", req.Address, "port", req.Port, "camera", settings.Camera)
}
