package control

import (
	"testing"
)

var phoneCaps = Capabilities{
	MaxZoom:          8,
	ExposureMin:      -12,
	ExposureMax:      12,
	MinFocusDistance: 10,
	FlashAvailable:   true,
}

func TestParse(t *testing.T) {
	tests := []struct {
		line   string
		want   Command
		wantOK bool
	}{
		{"ZOOM:2.5", Command{KindZoom, 2.5}, true},
		{"ZOOM:2.5\n", Command{KindZoom, 2.5}, true},
		{"ZOOM:2.5\r\n", Command{KindZoom, 2.5}, true},
		{"EXPOSURE:-3", Command{KindExposure, -3}, true},
		{"FOCUS:0.75", Command{KindFocus, 0.75}, true},
		{"FLASH:ON", Command{KindFlash, 1}, true},
		{"FLASH:OFF", Command{KindFlash, 0}, true},
		{"FLASH:maybe", Command{}, false},
		{"zoom:2.5", Command{}, false},
		{"ZOOM", Command{}, false},
		{"ZOOM:", Command{}, false},
		{"ZOOM:abc", Command{}, false},
		{"ZOOM:1:2", Command{}, false},
		{"ZOOM:NaN", Command{}, false},
		{"ZOOM:Inf", Command{}, false},
		{"BRIGHTNESS:5", Command{}, false},
		{"", Command{}, false},
		{"\x00\xff:\x01", Command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := Parse(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestClampAndApply(t *testing.T) {
	base := Parameters{Zoom: 2, Exposure: 1, Focus: 0.5}

	tests := []struct {
		name string
		cmd  Command
		caps Capabilities
		want Parameters
	}{
		{"zoom in range", Command{KindZoom, 2.5}, phoneCaps, Parameters{Zoom: 2.5, Exposure: 1, Focus: 0.5}},
		{"zoom above max", Command{KindZoom, 50}, phoneCaps, Parameters{Zoom: 8, Exposure: 1, Focus: 0.5}},
		{"zoom below one", Command{KindZoom, 0.2}, phoneCaps, Parameters{Zoom: 1, Exposure: 1, Focus: 0.5}},
		{"exposure above max", Command{KindExposure, 99}, phoneCaps, Parameters{Zoom: 2, Exposure: 12, Focus: 0.5}},
		{"exposure below min", Command{KindExposure, -99}, phoneCaps, Parameters{Zoom: 2, Exposure: -12, Focus: 0.5}},
		{"exposure rounded", Command{KindExposure, 2.6}, phoneCaps, Parameters{Zoom: 2, Exposure: 3, Focus: 0.5}},
		{"focus above one", Command{KindFocus, 1.7}, phoneCaps, Parameters{Zoom: 2, Exposure: 1, Focus: 1}},
		{"focus negative", Command{KindFocus, -1}, phoneCaps, Parameters{Zoom: 2, Exposure: 1, Focus: 0}},
		{"focus without manual focus still accepted", Command{KindFocus, 0.9}, Capabilities{MaxZoom: 4}, Parameters{Zoom: 2, Exposure: 0, Focus: 0.9}},
		{"flash on", Command{KindFlash, 1}, phoneCaps, Parameters{Zoom: 2, Exposure: 1, Focus: 0.5, Flash: true}},
		{"flash unavailable", Command{KindFlash, 1}, Capabilities{MaxZoom: 4}, Parameters{Zoom: 2, Exposure: 0, Focus: 0.5}},
		{"no zoom capability", Command{KindZoom, 3}, Capabilities{}, Parameters{Zoom: 1, Exposure: 0, Focus: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			if tt.caps != phoneCaps {
				// Start from values valid for the narrower device.
				p = base.Clamp(tt.caps)
				p.Zoom = base.Zoom
			}
			got := ClampAndApply(tt.cmd, tt.caps, p)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClampAndApplyOnlyTouchesOneField(t *testing.T) {
	p := Parameters{Zoom: 3, Exposure: -4, Focus: 0.25, Flash: true}
	for _, kind := range []Kind{KindZoom, KindExposure, KindFocus, KindFlash} {
		got := ClampAndApply(Command{Kind: kind, Value: 0.5}, phoneCaps, p)
		if kind != KindZoom && got.Zoom != p.Zoom {
			t.Errorf("%s changed zoom: %v", kind, got.Zoom)
		}
		if kind != KindExposure && got.Exposure != p.Exposure {
			t.Errorf("%s changed exposure: %v", kind, got.Exposure)
		}
		if kind != KindFocus && got.Focus != p.Focus {
			t.Errorf("%s changed focus: %v", kind, got.Focus)
		}
		if kind != KindFlash && got.Flash != p.Flash {
			t.Errorf("%s changed flash: %v", kind, got.Flash)
		}
	}
}

func TestClampAndApplyIdempotent(t *testing.T) {
	values := []float64{-1e9, -13, -1, 0, 0.3, 0.5, 1, 2.49, 7.9, 12, 13, 1e9}
	kinds := []Kind{KindZoom, KindExposure, KindFocus, KindFlash}
	start := DefaultParameters()

	for _, kind := range kinds {
		for _, v := range values {
			cmd := Command{Kind: kind, Value: v}
			once := ClampAndApply(cmd, phoneCaps, start)
			twice := ClampAndApply(cmd, phoneCaps, once)
			if once != twice {
				t.Errorf("%v: once %+v, twice %+v", cmd, once, twice)
			}
			if once.Zoom < 1 || once.Zoom > phoneCaps.MaxZoom {
				t.Errorf("%v: zoom %v out of range", cmd, once.Zoom)
			}
			if once.Exposure < phoneCaps.ExposureMin || once.Exposure > phoneCaps.ExposureMax {
				t.Errorf("%v: exposure %v out of range", cmd, once.Exposure)
			}
			if once.Focus < 0 || once.Focus > 1 {
				t.Errorf("%v: focus %v out of range", cmd, once.Focus)
			}
		}
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{KindZoom, 1}, "ZOOM:1.00"},
		{Command{KindZoom, 2.346}, "ZOOM:2.35"},
		{Command{KindExposure, -3}, "EXPOSURE:-3"},
		{Command{KindFocus, 0.5}, "FOCUS:0.50"},
		{Command{KindFlash, 1}, "FLASH:ON"},
		{Command{KindFlash, 0}, "FLASH:OFF"},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
		parsed, ok := Parse(tt.want)
		if !ok || parsed.Kind != tt.cmd.Kind {
			t.Errorf("Parse(%q) = %+v, %v", tt.want, parsed, ok)
		}
	}
}

func TestDefaultParametersCommands(t *testing.T) {
	want := []string{"ZOOM:1.00", "EXPOSURE:0", "FOCUS:0.50", "FLASH:OFF"}
	cmds := DefaultParameters().Commands()
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(want))
	}
	for i, c := range cmds {
		if c.String() != want[i] {
			t.Errorf("command %d = %q, want %q", i, c.String(), want[i])
		}
	}
}
