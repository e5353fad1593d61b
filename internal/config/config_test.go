package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/control"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Host     string        `toml:"stream.host" env:"HOST"`
	Port     int           `toml:"stream.port" env:"PORT"`
	USB      bool          `toml:"stream.usb" env:"USB"`
	Zoom     float64       `toml:"stream.zoom" env:"ZOOM"`
	Timeout  time.Duration `toml:"stream.timeout" env:"TIMEOUT"`
	Cameras  []string      `toml:"stream.cameras" env:"CAMERAS"`
	LogLevel string        `toml:"logging.level" env:"LOGGING_LEVEL"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[stream]
host = "192.168.1.20"
port = 6000
usb = true
zoom = 2
timeout = "3s"
cameras = ["test", "video0"]

[logging]
level = "debug"
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := testOptions{
		Config:   path,
		Host:     "192.168.1.20",
		Port:     6000,
		USB:      true,
		Zoom:     2,
		Timeout:  3 * time.Second,
		Cameras:  []string{"test", "video0"},
		LogLevel: "debug",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v, want %+v", *opts, want)
	}
}

func TestLoadConfigIntegerSecondsDuration(t *testing.T) {
	path := writeFile(t, "config.toml", "[stream]\ntimeout = 7\n")
	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}
	if opts.Timeout != 7*time.Second {
		t.Errorf("got %v, want 7s", opts.Timeout)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("FRAMELINK_HOST", "10.0.0.5")
	t.Setenv("FRAMELINK_PORT", "5001")
	t.Setenv("FRAMELINK_USB", "true")
	t.Setenv("FRAMELINK_ZOOM", "1.5")
	t.Setenv("FRAMELINK_TIMEOUT", "250ms")
	t.Setenv("FRAMELINK_CAMERAS", "a, b")

	opts := &testOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}

	if opts.Host != "10.0.0.5" || opts.Port != 5001 || !opts.USB || opts.Zoom != 1.5 {
		t.Errorf("got %+v", *opts)
	}
	if opts.Timeout != 250*time.Millisecond {
		t.Errorf("timeout = %v, want 250ms", opts.Timeout)
	}
	if !reflect.DeepEqual(opts.Cameras, []string{"a", "b"}) {
		t.Errorf("cameras = %v", opts.Cameras)
	}
}

func TestLoadConfigBadEnvValue(t *testing.T) {
	t.Setenv("FRAMELINK_PORT", "five")
	if err := LoadConfig(&testOptions{}, nil); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeFile(t, "config.toml", "[stream]\nhost = \"from-file\"\nport = 6000\n")
	t.Setenv("FRAMELINK_HOST", "from-env")
	t.Setenv("FRAMELINK_PORT", "7000")

	opts := &testOptions{Config: path}
	cmd := &cobra.Command{Use: "stream"}
	cmd.Flags().IntVar(&opts.Port, "port", 5000, "")
	if err := cmd.Flags().Set("port", "8000"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatal(err)
	}
	if opts.Host != "from-env" {
		t.Errorf("host = %q, want env to override file", opts.Host)
	}
	if opts.Port != 8000 {
		t.Errorf("port = %d, want explicit flag to win", opts.Port)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 5000}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
	if opts.Port != 5000 {
		t.Errorf("port = %d, want default kept", opts.Port)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeFile(t, "config.toml", "[stream\nnot toml")
	if err := LoadConfig(&testOptions{Config: path}, nil); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestLoadConfigTypeMismatch(t *testing.T) {
	path := writeFile(t, "config.toml", "[stream]\nport = \"5000\"\n")
	if err := LoadConfig(&testOptions{Config: path}, nil); err == nil {
		t.Error("expected error for string port")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":         "port",
		"LoggingLevel": "logging-level",
		"CameraID":     "camera-i-d",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"stream": map[string]any{"port": int64(5000)},
		"flat":   "x",
	}
	tests := []struct {
		path string
		want any
	}{
		{"stream.port", int64(5000)},
		{"flat", "x"},
		{"stream.missing", nil},
		{"flat.deeper", nil},
		{"absent.port", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, "config.toml", `
[logging]
level = "warn"
format = "json"
api = "error"

[logging.modules]
session = "debug"
transport = "info"
`)
	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("got level %q format %q", cfg.Level, cfg.Format)
	}
	want := map[string]string{"api": "error", "session": "debug", "transport": "info"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("modules = %v, want %v", cfg.Modules, want)
	}
}

func TestLoadLoggingConfigDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.toml")} {
		cfg := LoadLoggingConfig(path)
		if cfg.Level != "info" || cfg.Format != "text" || len(cfg.Modules) != 0 {
			t.Errorf("LoadLoggingConfig(%q) = %+v", path, cfg)
		}
	}
}

func TestLoadSettings(t *testing.T) {
	path := writeFile(t, "settings.toml", `
camera = "video2"
resolution = "1920x1080"
quality = 65
zoom = 2.5
flash = true
`)
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Camera != "video2" || s.Quality != 65 || s.FPS != 30 || s.Facing != "rear" {
		t.Errorf("got %+v", s)
	}
	if got := s.Size(); got != (capture.Size{Width: 1920, Height: 1080}) {
		t.Errorf("Size = %v", got)
	}
	want := control.Parameters{Zoom: 2.5, Exposure: 0, Focus: 0.5, Flash: true}
	if got := s.Parameters(); got != want {
		t.Errorf("Parameters = %+v, want %+v", got, want)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"quality too high", "quality = 101"},
		{"quality zero", "quality = 0"},
		{"bad resolution", `resolution = "720p"`},
		{"bad facing", `facing = "side"`},
		{"empty camera", `camera = ""`},
		{"zero fps", "fps = 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "settings.toml", tt.content)
			if _, err := LoadSettings(path); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("got %v, want ErrInvalidSettings", err)
			}
		})
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
