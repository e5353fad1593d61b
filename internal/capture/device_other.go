//go:build !linux

package capture

import (
	"context"
	"fmt"

	"github.com/smazurov/framelink/internal/ffmpeg"
)

// DeviceProvider reports no hardware cameras outside Linux.
type DeviceProvider struct {
	Options []ffmpeg.OptionType
}

// NewDeviceProvider creates a provider with no devices.
func NewDeviceProvider(opts []ffmpeg.OptionType) *DeviceProvider {
	return &DeviceProvider{Options: opts}
}

// Devices returns an empty list.
func (p *DeviceProvider) Devices(context.Context) ([]Device, error) {
	return []Device{}, nil
}

// Open always fails.
func (p *DeviceProvider) Open(_ context.Context, cfg Config) (Source, error) {
	return nil, fmt.Errorf("%w: %s: V4L2 capture requires Linux", ErrDeviceUnavailable, cfg.Camera)
}
