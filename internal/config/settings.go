package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/pkg/wire"
)

// ErrInvalidSettings is returned when a settings file holds unusable values.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the capture settings file. Keys left out keep their defaults.
type Settings struct {
	Camera     string  `toml:"camera"`
	Facing     string  `toml:"facing"`
	Resolution string  `toml:"resolution"`
	FPS        int     `toml:"fps"`
	Quality    int     `toml:"quality"`
	Zoom       float64 `toml:"zoom"`
	Exposure   int     `toml:"exposure"`
	Focus      float64 `toml:"focus"`
	Flash      bool    `toml:"flash"`
}

// DefaultSettings streams the test pattern at 1280x720.
func DefaultSettings() Settings {
	p := control.DefaultParameters()
	return Settings{
		Camera:     capture.PatternPrefix,
		Facing:     string(wire.FacingRear),
		Resolution: "1280x720",
		FPS:        30,
		Quality:    80,
		Zoom:       p.Zoom,
		Exposure:   p.Exposure,
		Focus:      p.Focus,
		Flash:      p.Flash,
	}
}

// LoadSettings reads and validates a settings file.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, s.Validate()
}

// Validate checks the fields that cannot be clamped.
func (s Settings) Validate() error {
	if s.Camera == "" {
		return fmt.Errorf("%w: no camera selected", ErrInvalidSettings)
	}
	if _, _, err := wire.ParseResolution(s.Resolution); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	switch wire.Facing(s.Facing) {
	case wire.FacingFront, wire.FacingRear:
	default:
		return fmt.Errorf("%w: facing %q", ErrInvalidSettings, s.Facing)
	}
	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("%w: quality %d outside 1..100", ErrInvalidSettings, s.Quality)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("%w: fps %d", ErrInvalidSettings, s.FPS)
	}
	return nil
}

// Size returns the requested frame size. Zero when Resolution is malformed.
func (s Settings) Size() capture.Size {
	w, h, err := wire.ParseResolution(s.Resolution)
	if err != nil {
		return capture.Size{}
	}
	return capture.Size{Width: w, Height: h}
}

// Parameters returns the requested capture parameters, unclamped.
func (s Settings) Parameters() control.Parameters {
	return control.Parameters{Zoom: s.Zoom, Exposure: s.Exposure, Focus: s.Focus, Flash: s.Flash}
}
