package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/framelink/internal/config"
	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/session"
	"github.com/smazurov/framelink/pkg/wire"
)

// CreateStreamCmd creates the stream command.
func CreateStreamCmd() *cobra.Command {
	var (
		settingsFile  string
		port          int
		usb           bool
		logJSON       bool
		ffmpegOptions []string
	)

	cmd := &cobra.Command{
		Use:   "stream [host]",
		Short: "Stream camera frames to a consumer",
		Long: `Connects to a consumer, sends stream metadata followed by JPEG frames, and applies ` +
			`control commands sent back by the consumer. Capture settings are read from the settings ` +
			`file and reloaded when it changes: camera, resolution and fps edits restart capture on the ` +
			`same connection, the rest apply live. With --usb the host is always 127.0.0.1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			initLogging(settingsFile, logJSON)
			logger := logging.GetLogger("main")

			settings, err := config.LoadSettings(settingsFile)
			switch {
			case errors.Is(err, os.ErrNotExist):
				logger.Info("No settings file, using defaults", "path", settingsFile)
				settings = config.DefaultSettings()
			case err != nil:
				return err
			}

			provider, err := NewProvider(ffmpegOptions)
			if err != nil {
				return err
			}

			req := session.StartRequest{
				Settings:   SessionSettings(settings),
				Port:       port,
				Connection: wire.ConnectionWiFi,
			}
			if len(args) > 0 {
				req.Address = args[0]
			}
			if usb {
				req.Connection = wire.ConnectionUSB
			}

			bus := events.New()
			terminated := make(chan events.SessionTerminatedEvent, 1)
			defer bus.Subscribe(func(e events.SessionTerminatedEvent) {
				select {
				case terminated <- e:
				default:
				}
			})()

			mgr := session.NewManager(provider, bus)
			if err := mgr.Start(req); err != nil {
				return err
			}

			watcher := config.NewConfigWatcher(
				settingsFile,
				config.LoadSettings,
				logger,
				config.WithDebounce[config.Settings](500*time.Millisecond),
				config.WithErrorHandler[config.Settings](func(err error) {
					logger.Warn("Ignoring settings change", "error", err)
				}),
			)
			watcher.OnReload(func(s config.Settings) {
				if err := mgr.UpdateSettings(SessionSettings(s)); err != nil {
					logger.Warn("Failed to apply settings", "error", err)
					return
				}
				logger.Info("Settings applied", "camera", s.Camera, "resolution", s.Resolution, "quality", s.Quality)
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to start settings watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping stream")
					mgr.Stop()
					return nil
				case <-hup:
					logger.Info("Reloading settings", "path", settingsFile)
					if err := watcher.Reload(); err != nil {
						logger.Warn("Ignoring settings change", "error", err)
					}
				case e := <-terminated:
					mgr.Stop()
					return &session.Error{Kind: session.Kind(e.Kind), Message: e.Message}
				}
			}
		},
	}

	cmd.Flags().StringVar(&settingsFile, "settings", "settings.toml", "Capture settings file, watched for changes")
	cmd.Flags().IntVarP(&port, "port", "p", wire.DefaultPort, "Consumer port")
	cmd.Flags().BoolVar(&usb, "usb", false, "Stream over a USB port forward on 127.0.0.1")
	cmd.Flags().StringSliceVar(&ffmpegOptions, "ffmpeg-options", nil,
		"ffmpeg input options for device capture (default: application defaults)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
