//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// ControlID identifies a V4L2 control.
type ControlID uint32

// Camera and flash class controls.
const (
	CIDBrightness       ControlID = 0x00980900
	CIDExposureAuto     ControlID = 0x009a0901
	CIDExposureAbsolute ControlID = 0x009a0902
	CIDFocusAbsolute    ControlID = 0x009a090a
	CIDFocusAuto        ControlID = 0x009a090c
	CIDZoomAbsolute     ControlID = 0x009a090d
	CIDAutoExposureBias ControlID = 0x009a0913
	CIDFlashLEDMode     ControlID = 0x009c0901
)

// Flash LED modes for CIDFlashLEDMode.
const (
	FlashLEDModeNone  = 0
	FlashLEDModeFlash = 1
	FlashLEDModeTorch = 2
)

// ControlInfo describes a control's range.
type ControlInfo struct {
	ID      ControlID
	Name    string
	Type    uint32
	Minimum int32
	Maximum int32
	Step    int32
	Default int32
	Flags   uint32
}

// Writable reports whether the control exists and accepts writes. An
// inactive control (such as absolute focus while autofocus is on) is
// still writable once its automatic counterpart is switched off.
func (c ControlInfo) Writable() bool {
	return c.Flags&(ctrlFlagDisabled|ctrlFlagReadOnly) == 0
}

// Inactive reports whether the control is currently overridden by an automatic mode.
func (c ControlInfo) Inactive() bool {
	return c.Flags&ctrlFlagInactive != 0
}

// Capability flags.
const (
	capVideoCapture = 0x00000001
	capDeviceCaps   = 0x80000000
)

// Format flags.
const (
	fmtFlagEmulated = 0x0002
)

// Control flags.
const (
	ctrlFlagDisabled = 0x0001
	ctrlFlagReadOnly = 0x0004
	ctrlFlagInactive = 0x0010
)

// Common pixel formats.
const (
	PixFmtYUYV  = 0x56595559 // 'YUYV'
	PixFmtMJPEG = 0x47504A4D // 'MJPG'
	PixFmtNV12  = 0x3231564E // 'NV12'
	PixFmtYU12  = 0x32315559 // 'YU12'
)

// Frame size types.
const (
	frmsizeTypeDiscrete   = 1
	frmsizeTypeContinuous = 2
	frmsizeTypeStepwise   = 3
)

const bufTypeVideoCapture = 1
