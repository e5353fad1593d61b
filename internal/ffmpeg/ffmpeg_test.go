package ffmpeg

import (
	"slices"
	"strings"
	"testing"
)

func TestBuildCaptureArgs(t *testing.T) {
	tests := []struct {
		name    string
		params  CaptureParams
		want    string
		wantErr bool
	}{
		{
			name:   "minimal",
			params: CaptureParams{DevicePath: "/dev/video0", Width: 640, Height: 480},
			want:   "ffmpeg -hide_banner -nostdin -loglevel level+warning -f v4l2 -video_size 640x480 -i /dev/video0 -an -f rawvideo -pix_fmt yuv420p pipe:1",
		},
		{
			name: "format fps and options",
			params: CaptureParams{
				DevicePath:  "/dev/video2",
				InputFormat: "mjpeg",
				Width:       1280,
				Height:      720,
				FPS:         30,
				Options:     []OptionType{OptionThreadQueue1024, OptionLowLatency},
			},
			want: "ffmpeg -hide_banner -nostdin -loglevel level+warning -f v4l2 -thread_queue_size 1024 -fflags nobuffer -flags low_delay -input_format mjpeg -video_size 1280x720 -framerate 30 -i /dev/video2 -an -f rawvideo -pix_fmt yuv420p pipe:1",
		},
		{
			name:    "missing device",
			params:  CaptureParams{Width: 640, Height: 480},
			wantErr: true,
		},
		{
			name:    "missing size",
			params:  CaptureParams{DevicePath: "/dev/video0"},
			wantErr: true,
		},
		{
			name: "exclusive options",
			params: CaptureParams{
				DevicePath: "/dev/video0", Width: 640, Height: 480,
				Options: []OptionType{OptionThreadQueue1024, OptionThreadQueue4096},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := BuildCaptureArgs(tt.params)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got args %v", args)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.Join(args, " "); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestParseOptions(t *testing.T) {
	got, err := ParseOptions([]string{"low_latency", " wallclock_ts ", ""})
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	want := []OptionType{OptionLowLatency, OptionWallclockTimestamp}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ParseOptions([]string{"copyts"}); err == nil {
		t.Error("expected error for unknown option")
	}
}

func TestDefaultOptionsValid(t *testing.T) {
	defaults := DefaultOptions()
	if len(defaults) == 0 {
		t.Fatal("no default options")
	}
	if err := ValidateOptions(defaults); err != nil {
		t.Errorf("default options conflict: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[warning] frame dropped", "warning", "frame dropped"},
		{"[error] device busy", "error", "device busy"},
		{"[v4l2 @ 0x55d0c] [error] ioctl(VIDIOC_STREAMON) failed", "error", "[v4l2 @ 0x55d0c] ioctl(VIDIOC_STREAMON) failed"},
		{"[v4l2 @ 0x55d0c] no level here", "info", "[v4l2 @ 0x55d0c] no level here"},
		{"plain line", "info", "plain line"},
		{"[]", "info", "[]"},
		{"", "info", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, msg := ParseLogLevel(tt.line)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}
