//go:build linux

package v4l2

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		format uint32
		want   string
	}{
		{PixFmtYUYV, "YUYV"},
		{PixFmtMJPEG, "MJPG"},
		{PixFmtNV12, "NV12"},
		{PixFmtYU12, "YU12"},
	}
	for _, tt := range tests {
		if got := FormatFourCC(tt.format); got != tt.want {
			t.Errorf("FormatFourCC(%#x) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestStepwiseResolutions(t *testing.T) {
	s := &v4l2FrmsizeStepwise{
		minWidth: 640, maxWidth: 1920, stepWidth: 8,
		minHeight: 480, maxHeight: 1080, stepHeight: 8,
	}
	got := stepwiseResolutions(s)
	want := []Resolution{{640, 480}, {800, 600}, {1024, 768}, {1280, 720}, {1280, 960}, {1920, 1080}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStepwiseViewAliasesDiscrete(t *testing.T) {
	var f v4l2Frmsizeenum
	f.discrete.width = 160
	f.discrete.height = 1920
	s := f.stepwise()
	if s.minWidth != 160 || s.maxWidth != 1920 {
		t.Errorf("stepwise view = %+v, want min_width 160 max_width 1920", *s)
	}
}

func TestControlInfoScale(t *testing.T) {
	tests := []struct {
		name     string
		info     ControlInfo
		fraction float64
		want     int32
	}{
		{"zero", ControlInfo{Minimum: 100, Maximum: 500, Step: 1}, 0, 100},
		{"one", ControlInfo{Minimum: 100, Maximum: 500, Step: 1}, 1, 500},
		{"half", ControlInfo{Minimum: 100, Maximum: 500, Step: 1}, 0.5, 300},
		{"below range", ControlInfo{Minimum: 0, Maximum: 250, Step: 5}, -3, 0},
		{"above range", ControlInfo{Minimum: 0, Maximum: 250, Step: 5}, 7, 250},
		{"snapped to step", ControlInfo{Minimum: 0, Maximum: 250, Step: 5}, 0.33, 85},
		{"negative range", ControlInfo{Minimum: -12, Maximum: 12, Step: 1}, 0.5, 0},
		{"zero step treated as one", ControlInfo{Minimum: 0, Maximum: 10, Step: 0}, 0.26, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Scale(tt.fraction); got != tt.want {
				t.Errorf("Scale(%v) = %d, want %d", tt.fraction, got, tt.want)
			}
		})
	}
}

func TestControlInfoFlags(t *testing.T) {
	if !(ControlInfo{}).Writable() {
		t.Error("control without flags should be writable")
	}
	if (ControlInfo{Flags: ctrlFlagDisabled}).Writable() {
		t.Error("disabled control should not be writable")
	}
	if (ControlInfo{Flags: ctrlFlagReadOnly}).Writable() {
		t.Error("read-only control should not be writable")
	}
	inactive := ControlInfo{Flags: ctrlFlagInactive}
	if !inactive.Writable() || !inactive.Inactive() {
		t.Error("inactive control should be writable and report inactive")
	}
}

func TestFindDevicesMissingSysfs(t *testing.T) {
	old := sysfsRoot
	sysfsRoot = filepath.Join(t.TempDir(), "missing")
	defer func() { sysfsRoot = old }()

	devices, err := FindDevices()
	if err != nil {
		t.Fatalf("FindDevices: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}
}

func TestFindStableID(t *testing.T) {
	dir := t.TempDir()
	old := byIDDir
	byIDDir = dir
	defer func() { byIDDir = old }()

	link := "usb-Logitech_C920_1234-video-index0"
	if err := os.Symlink("../../video2", filepath.Join(dir, link)); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../../video3", filepath.Join(dir, "usb-Logitech_C920_1234-video-index1")); err != nil {
		t.Fatal(err)
	}

	if got := findStableID("video2", 0); got != link {
		t.Errorf("findStableID = %q, want %q", got, link)
	}
	if got := findStableID("video2", 1); got != "" {
		t.Errorf("findStableID with wrong index = %q, want empty", got)
	}
}

func TestCstr(t *testing.T) {
	if got := cstr([]byte{'u', 'v', 'c', 0, 'x'}); got != "uvc" {
		t.Errorf("got %q, want %q", got, "uvc")
	}
	if got := cstr([]byte("full")); got != "full" {
		t.Errorf("got %q, want %q", got, "full")
	}
}
