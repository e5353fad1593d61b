// Package ffmpeg builds ffmpeg invocations that decode a V4L2 device into raw
// YUV 4:2:0 frames on stdout, and parses ffmpeg's log output.
package ffmpeg

import (
	"errors"
	"strconv"
)

// Binary is the ffmpeg executable looked up on PATH.
var Binary = "ffmpeg"

// CaptureParams describes one raw capture.
type CaptureParams struct {
	DevicePath  string
	InputFormat string // v4l2 input format such as yuyv422 or mjpeg; empty lets ffmpeg pick
	Width       int
	Height      int
	FPS         int
	Options     []OptionType
}

// BuildCaptureArgs returns the argument list, program name included, for a
// capture writing tightly packed yuv420p frames to stdout.
func BuildCaptureArgs(p CaptureParams) ([]string, error) {
	if p.DevicePath == "" {
		return nil, errors.New("device path is required")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, errors.New("frame size is required")
	}
	if err := ValidateOptions(p.Options); err != nil {
		return nil, err
	}

	args := []string{Binary, "-hide_banner", "-nostdin", "-loglevel", "level+warning"}
	args = append(args, "-f", "v4l2")
	args = append(args, optionArgs(p.Options)...)
	if p.InputFormat != "" {
		args = append(args, "-input_format", p.InputFormat)
	}
	args = append(args, "-video_size", strconv.Itoa(p.Width)+"x"+strconv.Itoa(p.Height))
	if p.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(p.FPS))
	}
	args = append(args, "-i", p.DevicePath)
	args = append(args, "-an", "-f", "rawvideo", "-pix_fmt", "yuv420p", "pipe:1")
	return args, nil
}
