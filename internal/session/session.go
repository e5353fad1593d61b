// Package session runs one producer stream at a time: connect to a
// consumer, capture, encode and send frames while applying control commands
// read back from the consumer, and restart in place on capture changes.
package session

import (
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/encoder"
	"github.com/smazurov/framelink/internal/rate"
	"github.com/smazurov/framelink/pkg/wire"
)

// State is a position in the session lifecycle.
type State string

// Session states.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateStopping   State = "stopping"
	StateError      State = "error"
)

// Defaults applied to zero StartRequest fields.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultFPS            = 30
	LoopbackAddress       = "127.0.0.1"
)

// Settings are the capture choices that may change while streaming. Camera
// and Resolution changes restart capture; the rest apply live.
type Settings struct {
	Camera     string             `json:"camera" example:"test" doc:"Camera selector: test pattern, device path or stable device ID"`
	Facing     wire.Facing        `json:"facing" enum:"front,rear" doc:"Which side the camera faces"`
	Resolution capture.Size       `json:"resolution" doc:"Requested frame size"`
	FPS        int                `json:"fps" minimum:"1" doc:"Requested capture rate"`
	Quality    int                `json:"quality" minimum:"1" maximum:"100" doc:"JPEG quality"`
	Parameters control.Parameters `json:"parameters" doc:"Capture parameters, clamped to the device"`
}

// StartRequest describes a stream to start.
type StartRequest struct {
	Settings
	Address        string
	Port           int
	Connection     wire.ConnectionType
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// normalize fills defaults. A USB connection always targets the loopback
// address the port forward listens on.
func (r StartRequest) normalize() StartRequest {
	if r.Connection == "" {
		r.Connection = wire.ConnectionWiFi
	}
	if r.Connection == wire.ConnectionUSB {
		r.Address = LoopbackAddress
	}
	if r.Port == 0 {
		r.Port = wire.DefaultPort
	}
	if r.Facing == "" {
		r.Facing = wire.FacingRear
	}
	if r.FPS == 0 {
		r.FPS = DefaultFPS
	}
	if r.ConnectTimeout == 0 {
		r.ConnectTimeout = DefaultConnectTimeout
	}
	if r.WriteTimeout == 0 {
		r.WriteTimeout = DefaultWriteTimeout
	}
	return r
}

// Validate reports the first unusable field, wrapped in ErrValidation.
func (r StartRequest) Validate() error {
	if err := validateHost(r.Address); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrValidation, r.Port)
	}
	switch r.Connection {
	case wire.ConnectionWiFi, wire.ConnectionUSB:
	default:
		return fmt.Errorf("%w: connection type %q", ErrValidation, r.Connection)
	}
	return r.Settings.Validate()
}

// validateHost accepts an IP literal or a hostname. Ports, brackets and
// dotted numbers that are not a valid IPv4 address are rejected.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("no consumer address")
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return nil
	}
	if strings.ContainsAny(host, ":[]") {
		return fmt.Errorf("consumer address %q must be a host without a port", host)
	}

	name := strings.TrimSuffix(host, ".")
	if len(name) == 0 || len(name) > 253 {
		return fmt.Errorf("consumer address %q is not a valid hostname", host)
	}
	numeric := true
	for _, label := range strings.Split(name, ".") {
		if !validLabel(label) {
			return fmt.Errorf("consumer address %q is not a valid hostname", host)
		}
		if strings.Trim(label, "0123456789") != "" {
			numeric = false
		}
	}
	if numeric {
		return fmt.Errorf("consumer address %q is not a valid IP address", host)
	}
	return nil
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// Validate checks the settings fields that cannot be clamped.
func (s Settings) Validate() error {
	if s.Camera == "" {
		return fmt.Errorf("%w: no camera selected", ErrValidation)
	}
	if s.Quality < encoder.MinQuality || s.Quality > encoder.MaxQuality {
		return fmt.Errorf("%w: quality %d outside %d..%d", ErrValidation, s.Quality, encoder.MinQuality, encoder.MaxQuality)
	}
	switch s.Facing {
	case wire.FacingFront, wire.FacingRear:
	default:
		return fmt.Errorf("%w: camera facing %q", ErrValidation, s.Facing)
	}
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		return fmt.Errorf("%w: resolution %v", ErrValidation, s.Resolution)
	}
	if s.FPS < 0 {
		return fmt.Errorf("%w: fps %d", ErrValidation, s.FPS)
	}
	return nil
}

// restarts reports whether moving from s to next needs a new frame source.
func (s Settings) restarts(next Settings) bool {
	return s.Camera != next.Camera || s.Resolution != next.Resolution || s.FPS != next.FPS
}

// Session is the runtime aggregate of one stream. A new Session is built on
// every start and every restart.
type Session struct {
	ID       string
	Request  StartRequest
	Metadata wire.Metadata
	Started  time.Time

	source  capture.Source
	caps    control.Capabilities
	encoder *encoder.Encoder
	tracker *rate.Tracker

	params  atomic.Pointer[control.Parameters]
	quality atomic.Int32
}

func newSession(req StartRequest, p control.Parameters) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		Request: req,
		Started: time.Now(),
		encoder: encoder.New(),
		tracker: rate.New(),
	}
	s.params.Store(&p)
	s.quality.Store(int32(req.Quality))
	return s
}

// Parameters returns the parameters in effect.
func (s *Session) Parameters() control.Parameters {
	return *s.params.Load()
}

// applyCommand clamps cmd into the current parameters and swaps in the
// result. Only the field cmd names changes.
func (s *Session) applyCommand(cmd control.Command) control.Parameters {
	for {
		old := s.params.Load()
		next := control.ClampAndApply(cmd, s.caps, *old)
		if s.params.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// replaceParameters clamps p and swaps it in whole.
func (s *Session) replaceParameters(p control.Parameters) control.Parameters {
	next := p.Clamp(s.caps)
	s.params.Store(&next)
	return next
}

// Status is a point-in-time view of the manager.
type Status struct {
	State        State                 `json:"state" enum:"idle,connecting,streaming,stopping,error" doc:"Lifecycle state"`
	SessionID    string                `json:"session_id,omitempty" doc:"Current session identifier"`
	Consumer     string                `json:"consumer,omitempty" example:"192.168.1.10:5000" doc:"Consumer address"`
	Connection   wire.ConnectionType   `json:"connection_type,omitempty" doc:"wifi or usb"`
	Settings     *Settings             `json:"settings,omitempty" doc:"Requested settings"`
	Metadata     *wire.Metadata        `json:"metadata,omitempty" doc:"Metadata sent to the consumer"`
	Size         *capture.Size         `json:"size,omitempty" doc:"Negotiated frame size"`
	Capabilities *control.Capabilities `json:"capabilities,omitempty" doc:"Device parameter ranges"`
	Parameters   *control.Parameters   `json:"parameters,omitempty" doc:"Parameters in effect"`
	Frames       uint64                `json:"frames" doc:"Frames sent in this session"`
	FPS          float64               `json:"fps" doc:"Frames per second over the last window"`
	Drops        uint64                `json:"drops" doc:"Frames overwritten at the source"`
	Started      *time.Time            `json:"started,omitempty" doc:"Session start time"`
}
