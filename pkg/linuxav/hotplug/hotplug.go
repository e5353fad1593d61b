//go:build linux

// Package hotplug watches kernel uevents over netlink so a capture session
// can notice its camera being unplugged.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Actions reported by the kernel.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// SubsystemVideo4Linux is the subsystem of /dev/video* nodes.
const SubsystemVideo4Linux = "video4linux"

// Event is a parsed kernel uevent.
type Event struct {
	Action    string
	KObj      string
	Subsystem string
	DevName   string // e.g. "video0"
	Env       map[string]string
}

// DeviceNode returns the /dev path of the event's device, or "" if the
// event carries no DEVNAME.
func (e Event) DeviceNode() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/dev/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// Monitor reads uevents from the kernel broadcast group.
type Monitor struct {
	fd int

	mu         sync.RWMutex
	subsystems map[string]struct{}
	closed     bool
}

// NewMonitor opens a NETLINK_KOBJECT_UEVENT socket.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	// Bounded reads let Run observe cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, subsystems: make(map[string]struct{})}, nil
}

// Filter restricts delivered events to the given subsystem. With no filters
// every event is delivered.
func (m *Monitor) Filter(subsystem string) {
	m.mu.Lock()
	m.subsystems[subsystem] = struct{}{}
	m.mu.Unlock()
}

func (m *Monitor) accepts(e *Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.subsystems) == 0 {
		return true
	}
	_, ok := m.subsystems[e.Subsystem]
	return ok
}

// Close releases the socket. Idempotent.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return unix.Close(m.fd)
}

// Run calls handle for each matching event until ctx is cancelled or the
// socket fails.
func (m *Monitor) Run(ctx context.Context, handle func(Event)) error {
	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}

		event := ParseUEvent(buf[:n])
		if event == nil || !m.accepts(event) {
			continue
		}
		handle(*event)
	}
}

// WaitRemoval blocks until devicePath is removed or ctx ends. It returns nil
// on removal.
func (m *Monitor) WaitRemoval(ctx context.Context, devicePath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	removed := false
	err := m.Run(ctx, func(e Event) {
		if e.Action == ActionRemove && e.DeviceNode() == devicePath {
			removed = true
			cancel()
		}
	})
	if removed {
		return nil
	}
	return err
}

// ParseUEvent parses "ACTION@KOBJ\0KEY=VALUE\0...". Messages rebroadcast by
// udevd carry a binary "libudev" header and are ignored since the kernel
// copy of the same event also arrives.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 || bytes.HasPrefix(data, []byte("libudev")) {
		return nil
	}

	parts := bytes.Split(data, []byte{0})
	action, kobj, ok := strings.Cut(string(parts[0]), "@")
	if !ok || action == "" {
		return nil
	}

	event := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVNAME":
			event.DevName = value
		}
	}
	return event
}
