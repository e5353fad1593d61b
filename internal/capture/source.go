// Package capture adapts camera devices into a pull-based stream of raw
// frames with live, clamped capture parameters.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smazurov/framelink/internal/control"
)

var (
	// ErrDeviceUnavailable is returned when a camera cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrResolutionUnsupported is returned when a device reports no usable size.
	ErrResolutionUnsupported = errors.New("resolution unsupported")
	// ErrDeviceLost is returned by NextFrame after the device disappeared or failed mid-stream.
	ErrDeviceLost = errors.New("capture device lost")
	// ErrClosed is returned by NextFrame after Close.
	ErrClosed = errors.New("capture source closed")
)

// Source produces raw frames from one camera.
type Source interface {
	// NextFrame blocks until the newest frame is available. The returned
	// frame is valid until the following NextFrame call.
	NextFrame(ctx context.Context) (*Frame, error)
	// ApplyParameters changes the live capture configuration without
	// restarting capture. Safe to call concurrently with NextFrame.
	ApplyParameters(p control.Parameters) error
	// Capabilities describes the parameter ranges of the device.
	Capabilities() control.Capabilities
	// Size is the negotiated frame size.
	Size() Size
	// Drops counts frames overwritten before being consumed.
	Drops() uint64
	// Close stops capture and releases the device. Idempotent.
	Close() error
}

// Config selects a camera and the frame size wanted from it.
type Config struct {
	Camera string
	Size   Size
	FPS    int
}

// Device describes an available camera.
type Device struct {
	ID           string               `json:"id" doc:"Camera selector"`
	Name         string               `json:"name" doc:"Human readable name"`
	Sizes        []Size               `json:"sizes" doc:"Supported frame sizes"`
	Capabilities control.Capabilities `json:"capabilities" doc:"Parameter ranges"`
}

// Provider opens cameras.
type Provider interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, cfg Config) (Source, error)
}

// SelectResolution picks the supported size closest to want: an exact match
// if present, otherwise the size with the smallest |dw|+|dh|, earliest first
// on ties.
func SelectResolution(supported []Size, want Size) (Size, error) {
	if len(supported) == 0 {
		return Size{}, ErrResolutionUnsupported
	}
	best, bestDist := supported[0], -1
	for _, s := range supported {
		if s == want {
			return s, nil
		}
		d := abs(s.Width-want.Width) + abs(s.Height-want.Height)
		if bestDist < 0 || d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PatternPrefix selects the synthetic test source, e.g. "test" or "test:nv12".
const PatternPrefix = "test"

// Router sends pattern selectors to the pattern provider and everything else
// to the device provider.
type Router struct {
	Pattern *PatternProvider
	Device  Provider
}

// NewRouter creates a router over the given device provider.
func NewRouter(device Provider) *Router {
	return &Router{Pattern: NewPatternProvider(), Device: device}
}

// Devices lists the pattern source followed by hardware devices. A device
// enumeration failure is returned alongside the pattern entry.
func (r *Router) Devices(ctx context.Context) ([]Device, error) {
	devs, _ := r.Pattern.Devices(ctx)
	if r.Device == nil {
		return devs, nil
	}
	hw, err := r.Device.Devices(ctx)
	return append(devs, hw...), err
}

// Open dispatches to the matching provider.
func (r *Router) Open(ctx context.Context, cfg Config) (Source, error) {
	if IsPattern(cfg.Camera) {
		return r.Pattern.Open(ctx, cfg)
	}
	if r.Device == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, cfg.Camera)
	}
	return r.Device.Open(ctx, cfg)
}

// IsPattern reports whether camera selects the synthetic source.
func IsPattern(camera string) bool {
	return camera == PatternPrefix || strings.HasPrefix(camera, PatternPrefix+":")
}
