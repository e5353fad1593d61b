package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Facing identifies which side of the device the camera points to.
type Facing string

// Camera facings.
const (
	FacingFront Facing = "front"
	FacingRear  Facing = "rear"
)

// ConnectionType identifies how the producer reaches the consumer.
type ConnectionType string

// Connection types.
const (
	ConnectionWiFi ConnectionType = "wifi"
	ConnectionUSB  ConnectionType = "usb"
)

// Metadata describes a stream. It is sent once, before the first frame.
type Metadata struct {
	CameraID       string         `json:"camera_id"`
	CameraFacing   Facing         `json:"camera_facing"`
	Resolution     string         `json:"resolution"`
	Quality        int            `json:"quality"`
	ConnectionType ConnectionType `json:"connection_type"`
}

// ErrInvalidMetadata is returned by Validate and DecodeMetadata.
var ErrInvalidMetadata = errors.New("invalid metadata")

// Validate checks the fields against their allowed values.
func (m Metadata) Validate() error {
	if m.CameraID == "" {
		return fmt.Errorf("%w: empty camera_id", ErrInvalidMetadata)
	}
	switch m.CameraFacing {
	case FacingFront, FacingRear:
	default:
		return fmt.Errorf("%w: camera_facing %q", ErrInvalidMetadata, m.CameraFacing)
	}
	if _, _, err := ParseResolution(m.Resolution); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	if m.Quality < 1 || m.Quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidMetadata, m.Quality)
	}
	switch m.ConnectionType {
	case ConnectionWiFi, ConnectionUSB:
	default:
		return fmt.Errorf("%w: connection_type %q", ErrInvalidMetadata, m.ConnectionType)
	}
	return nil
}

// Encode validates m and returns its JSON payload.
func (m Metadata) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeMetadata parses a metadata payload.
func DecodeMetadata(payload []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(payload, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	return m, nil
}

// FormatResolution renders a "WxH" resolution string.
func FormatResolution(width, height int) string {
	return strconv.Itoa(width) + "x" + strconv.Itoa(height)
}

// ParseResolution parses a "WxH" resolution string.
func ParseResolution(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("resolution %q: want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("resolution %q: bad width", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("resolution %q: bad height", s)
	}
	return w, h, nil
}
