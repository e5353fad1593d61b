//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GetFormats returns all supported pixel formats for a device.
func GetFormats(devicePath string) ([]FormatInfo, error) {
	fd, err := openDevice(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer closeDevice(fd)

	var formats []FormatInfo
	for i := uint32(0); ; i++ {
		desc := v4l2Fmtdesc{index: i, typ: bufTypeVideoCapture}
		if err := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&desc)); err != nil {
			if endOfEnumeration(err) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, err)
		}
		formats = append(formats, FormatInfo{
			PixelFormat: desc.pixelformat,
			FormatName:  cstr(desc.description[:]),
			Emulated:    desc.flags&fmtFlagEmulated != 0,
		})
	}
	return formats, nil
}

// GetResolutions returns the frame sizes a device offers for pixelFormat.
// Stepwise and continuous ranges are reported as the common sizes they contain.
func GetResolutions(devicePath string, pixelFormat uint32) ([]Resolution, error) {
	fd, err := openDevice(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer closeDevice(fd)

	var resolutions []Resolution
	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{index: i, pixelFormat: pixelFormat}
		if err := ioctl(fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if endOfEnumeration(err) {
				break
			}
			if errors.Is(err, unix.ENOTTY) {
				return []Resolution{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, err)
		}

		switch frmsize.typ {
		case frmsizeTypeDiscrete:
			resolutions = append(resolutions, Resolution{
				Width:  frmsize.discrete.width,
				Height: frmsize.discrete.height,
			})
		case frmsizeTypeContinuous, frmsizeTypeStepwise:
			return append(resolutions, stepwiseResolutions(frmsize.stepwise())...), nil
		}
	}
	return resolutions, nil
}

var commonResolutions = []Resolution{
	{320, 240},
	{640, 480},
	{800, 600},
	{1024, 768},
	{1280, 720},
	{1280, 960},
	{1920, 1080},
	{2560, 1440},
	{3840, 2160},
}

// stepwiseResolutions returns the common resolutions inside a stepwise range.
func stepwiseResolutions(s *v4l2FrmsizeStepwise) []Resolution {
	var out []Resolution
	for _, r := range commonResolutions {
		if r.Width >= s.minWidth && r.Width <= s.maxWidth &&
			r.Height >= s.minHeight && r.Height <= s.maxHeight {
			out = append(out, r)
		}
	}
	return out
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	return string([]byte{byte(format), byte(format >> 8), byte(format >> 16), byte(format >> 24)})
}
