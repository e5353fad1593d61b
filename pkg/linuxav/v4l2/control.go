//go:build linux

package v4l2

import (
	"fmt"
	"math"
	"sync"
	"unsafe"
)

// Controls is an open handle for reading and writing device controls. It may
// be used while another process streams from the same device.
type Controls struct {
	mu   sync.Mutex
	fd   int
	path string
}

// OpenControls opens devicePath for control access.
func OpenControls(devicePath string) (*Controls, error) {
	fd, err := openDevice(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	return &Controls{fd: fd, path: devicePath}, nil
}

// Query returns the range of a control.
func (c *Controls) Query(id ControlID) (ControlInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return ControlInfo{}, fmt.Errorf("%s: controls closed", c.path)
	}

	q := v4l2Queryctrl{id: uint32(id)}
	if err := ioctl(c.fd, vidiocQueryctrl, unsafe.Pointer(&q)); err != nil {
		return ControlInfo{}, fmt.Errorf("query control %#x: %w", uint32(id), err)
	}
	return ControlInfo{
		ID:      id,
		Name:    cstr(q.name[:]),
		Type:    q.typ,
		Minimum: q.minimum,
		Maximum: q.maximum,
		Step:    q.step,
		Default: q.defaultValue,
		Flags:   q.flags,
	}, nil
}

// Get reads a control value.
func (c *Controls) Get(id ControlID) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return 0, fmt.Errorf("%s: controls closed", c.path)
	}

	ctrl := v4l2Control{id: uint32(id)}
	if err := ioctl(c.fd, vidiocGCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, fmt.Errorf("get control %#x: %w", uint32(id), err)
	}
	return ctrl.value, nil
}

// Set writes a control value.
func (c *Controls) Set(id ControlID, value int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return fmt.Errorf("%s: controls closed", c.path)
	}

	ctrl := v4l2Control{id: uint32(id), value: value}
	if err := ioctl(c.fd, vidiocSCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return fmt.Errorf("set control %#x=%d: %w", uint32(id), value, err)
	}
	return nil
}

// Close releases the handle. Idempotent.
func (c *Controls) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return nil
	}
	err := closeDevice(c.fd)
	c.fd = -1
	return err
}

// Scale maps a fraction in [0,1] onto the control range, snapped to Step.
func (c ControlInfo) Scale(fraction float64) int32 {
	fraction = math.Min(math.Max(fraction, 0), 1)
	step := float64(max(c.Step, 1))
	span := float64(c.Maximum) - float64(c.Minimum)
	v := float64(c.Minimum) + math.Round(fraction*span/step)*step
	return int32(math.Min(v, float64(c.Maximum)))
}
