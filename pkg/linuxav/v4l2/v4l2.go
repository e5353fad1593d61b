//go:build linux

// Package v4l2 provides pure Go bindings to the parts of the Video4Linux2
// API a capture pipeline needs: device enumeration, frame size queries and
// camera controls (zoom, exposure, focus, flash).
//
// The package does not use cgo. Struct layouts used here contain no
// pointers or time values, so one definition serves amd64, arm64 and arm.
//
// # Device Enumeration
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Frame Sizes
//
//	formats, _ := v4l2.GetFormats("/dev/video0")
//	sizes, _ := v4l2.GetResolutions("/dev/video0", formats[0].PixelFormat)
//
// # Controls
//
//	dev, _ := v4l2.OpenControls("/dev/video0")
//	defer dev.Close()
//	if info, err := dev.Query(v4l2.CIDZoomAbsolute); err == nil {
//	    dev.Set(v4l2.CIDZoomAbsolute, info.Maximum)
//	}
package v4l2
