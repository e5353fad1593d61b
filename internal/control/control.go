// Package control parses consumer control lines and applies them to capture
// parameters, clamping every value to what the capture device supports.
package control

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind names the parameter a command targets. Kinds are matched case-sensitively.
type Kind string

// Command kinds.
const (
	KindZoom     Kind = "ZOOM"
	KindExposure Kind = "EXPOSURE"
	KindFocus    Kind = "FOCUS"
	KindFlash    Kind = "FLASH"
)

// Command is one parsed control line.
type Command struct {
	Kind  Kind
	Value float64
}

// String renders the command as it appears on the wire, without the newline.
func (c Command) String() string {
	switch c.Kind {
	case KindExposure:
		return fmt.Sprintf("%s:%d", c.Kind, int(math.Round(c.Value)))
	case KindFlash:
		if c.Value != 0 {
			return string(KindFlash) + ":ON"
		}
		return string(KindFlash) + ":OFF"
	default:
		return fmt.Sprintf("%s:%.2f", c.Kind, c.Value)
	}
}

// Capabilities is the read-only range descriptor of a capture device.
type Capabilities struct {
	MaxZoom          float64 `json:"max_zoom"`
	ExposureMin      int     `json:"exposure_min"`
	ExposureMax      int     `json:"exposure_max"`
	MinFocusDistance float64 `json:"min_focus_distance"`
	FlashAvailable   bool    `json:"flash_available"`
}

// ManualFocus reports whether focus commands have any effect on the device.
func (c Capabilities) ManualFocus() bool {
	return c.MinFocusDistance > 0
}

// Parameters are the live capture settings.
type Parameters struct {
	Zoom     float64 `json:"zoom"`
	Exposure int     `json:"exposure"`
	Focus    float64 `json:"focus"`
	Flash    bool    `json:"flash"`
}

// DefaultParameters returns the settings a session starts with before clamping.
func DefaultParameters() Parameters {
	return Parameters{Zoom: 1, Exposure: 0, Focus: 0.5, Flash: false}
}

// Parse parses one control line of the form KIND:value. Lines that are not
// well formed are reported with ok=false and are meant to be ignored.
func Parse(line string) (Command, bool) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		return Command{}, false
	}
	kind, raw := Kind(parts[0]), strings.TrimSpace(parts[1])

	switch kind {
	case KindZoom, KindExposure, KindFocus:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Command{}, false
		}
		return Command{Kind: kind, Value: v}, true
	case KindFlash:
		switch raw {
		case "ON":
			return Command{Kind: KindFlash, Value: 1}, true
		case "OFF":
			return Command{Kind: KindFlash, Value: 0}, true
		}
	}
	return Command{}, false
}

// ClampAndApply returns p with the field named by cmd replaced by the
// command's value clamped to caps. Every other field is left as it was.
func ClampAndApply(cmd Command, caps Capabilities, p Parameters) Parameters {
	switch cmd.Kind {
	case KindZoom:
		p.Zoom = clampZoom(cmd.Value, caps)
	case KindExposure:
		p.Exposure = clampExposure(cmd.Value, caps)
	case KindFocus:
		p.Focus = clampFloat(cmd.Value, 0, 1)
	case KindFlash:
		p.Flash = cmd.Value != 0 && caps.FlashAvailable
	}
	return p
}

// Clamp returns p with every field clamped to caps.
func (p Parameters) Clamp(caps Capabilities) Parameters {
	return Parameters{
		Zoom:     clampZoom(p.Zoom, caps),
		Exposure: clampExposure(float64(p.Exposure), caps),
		Focus:    clampFloat(p.Focus, 0, 1),
		Flash:    p.Flash && caps.FlashAvailable,
	}
}

// Commands renders p as the command sequence that would produce it.
func (p Parameters) Commands() []Command {
	flash := 0.0
	if p.Flash {
		flash = 1
	}
	return []Command{
		{Kind: KindZoom, Value: p.Zoom},
		{Kind: KindExposure, Value: float64(p.Exposure)},
		{Kind: KindFocus, Value: p.Focus},
		{Kind: KindFlash, Value: flash},
	}
}

func clampZoom(v float64, caps Capabilities) float64 {
	return clampFloat(v, 1, math.Max(caps.MaxZoom, 1))
}

func clampExposure(v float64, caps Capabilities) int {
	lo, hi := caps.ExposureMin, caps.ExposureMax
	if lo > hi {
		lo, hi = hi, lo
	}
	return int(math.Round(clampFloat(v, float64(lo), float64(hi))))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
