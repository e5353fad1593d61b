// Package cmd holds the framelink subcommands.
package cmd

import (
	"strings"

	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/config"
	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/ffmpeg"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/session"
	"github.com/smazurov/framelink/pkg/wire"
)

// NewProvider returns the camera router: test patterns plus V4L2 devices
// captured through ffmpeg with the named input options.
func NewProvider(ffmpegOptions []string) (*capture.Router, error) {
	opts := ffmpeg.DefaultOptions()
	if len(ffmpegOptions) > 0 {
		parsed, err := ffmpeg.ParseOptions(ffmpegOptions)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	return capture.NewRouter(capture.NewDeviceProvider(opts)), nil
}

// SessionSettings converts a validated settings file to session settings.
func SessionSettings(s config.Settings) session.Settings {
	return session.Settings{
		Camera:     s.Camera,
		Facing:     wire.Facing(s.Facing),
		Resolution: s.Size(),
		FPS:        s.FPS,
		Quality:    s.Quality,
		Parameters: s.Parameters(),
	}
}

// initLogging applies the [logging] table of configPath, if any, and the
// --log-json override.
func initLogging(configPath string, logJSON bool) {
	cfg := config.LoadLoggingConfig(configPath)
	if logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
}

// parseInput turns an interactive line into a control command. It accepts
// wire syntax ("ZOOM:2.5") and the shorter "zoom 2.5" form.
func parseInput(line string) (control.Command, bool) {
	line = strings.TrimSpace(line)
	if cmd, ok := control.Parse(line); ok {
		return cmd, true
	}
	name, value, found := strings.Cut(line, " ")
	if !found {
		return control.Command{}, false
	}
	return control.Parse(strings.ToUpper(name) + ":" + strings.ToUpper(strings.TrimSpace(value)))
}
