//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

// Overridden in tests.
var (
	sysfsRoot = "/sys/class/video4linux"
	byIDDir   = "/dev/v4l/by-id"
)

// FindDevices finds all V4L2 video capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	logger := slog.With("component", "linuxav")
	var devices []DeviceInfo

	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		capability, err := queryCapability(devicePath)
		if err != nil {
			logger.Debug("failed to query video device", "path", devicePath, "error", err)
			continue
		}

		caps := capability.capabilities
		if caps&capDeviceCaps != 0 {
			caps = capability.deviceCaps
		}
		if caps&capVideoCapture == 0 {
			continue
		}

		index := readSysfsInt(filepath.Join(sysfsRoot, entry.Name(), "index"))
		stableID := findStableID(entry.Name(), index)
		if stableID == "" {
			busInfo := cstr(capability.busInfo[:])
			if strings.HasPrefix(busInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", busInfo, index)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", busInfo, index)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(capability.card[:]),
			DeviceID:   stableID,
			Caps:       caps,
		})
	}

	return devices, nil
}

// ResolveDevice maps a camera selector to a device node. The selector may be
// a device path, a bare node name such as "video0", or a stable device ID.
func ResolveDevice(selector string) (DeviceInfo, error) {
	devices, err := FindDevices()
	if err != nil {
		return DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.DeviceID == selector || d.DevicePath == selector || filepath.Base(d.DevicePath) == selector {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("no capture device matches %q", selector)
}

// findStableID looks for the /dev/v4l/by-id symlink pointing at deviceName.
func findStableID(deviceName string, index int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	suffix := fmt.Sprintf("-video-index%d", index)
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == deviceName {
			return entry.Name()
		}
	}
	return ""
}

func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func queryCapability(devicePath string) (*v4l2Capability, error) {
	fd, err := openDevice(devicePath)
	if err != nil {
		return nil, err
	}
	defer closeDevice(fd)

	capability := &v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(capability)); err != nil {
		return nil, err
	}
	return capability, nil
}
