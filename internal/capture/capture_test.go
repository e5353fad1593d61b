package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/framelink/internal/control"
)

func TestSelectResolution(t *testing.T) {
	supported := []Size{{640, 480}, {1280, 720}, {1920, 1080}, {800, 600}}

	tests := []struct {
		name      string
		supported []Size
		want      Size
		expected  Size
		wantErr   error
	}{
		{"exact match", supported, Size{1280, 720}, Size{1280, 720}, nil},
		{"nearest by manhattan distance", supported, Size{1300, 700}, Size{1280, 720}, nil},
		{"larger than all", supported, Size{4000, 3000}, Size{1920, 1080}, nil},
		{"tie goes to first seen", []Size{{100, 100}, {120, 80}}, Size{110, 90}, Size{100, 100}, nil},
		{"exact beats earlier near miss", []Size{{641, 480}, {640, 480}}, Size{640, 480}, Size{640, 480}, nil},
		{"empty list", nil, Size{640, 480}, Size{}, ErrResolutionUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectResolution(tt.supported, tt.want)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSelectResolutionDeterministic(t *testing.T) {
	supported := []Size{{320, 240}, {640, 480}, {1280, 720}}
	first, _ := SelectResolution(supported, Size{900, 600})
	for range 100 {
		if got, _ := SelectResolution(supported, Size{900, 600}); got != first {
			t.Fatalf("got %v, want %v", got, first)
		}
	}
}

func TestYUV420Layout(t *testing.T) {
	f := NewYUV420Frame(5, 3, false)
	if got, want := len(f.Planes[0].Data)+len(f.Planes[1].Data)+len(f.Planes[2].Data), YUV420Size(5, 3); got != want {
		t.Errorf("planar plane bytes = %d, want %d", got, want)
	}
	if f.Planes[1].RowStride != 3 || f.Planes[1].PixelStride != 1 {
		t.Errorf("planar chroma = %+v", f.Planes[1])
	}

	nv := NewYUV420Frame(4, 4, true)
	nv.Planes[1].Data[0] = 1
	nv.Planes[2].Data[0] = 2
	if nv.Planes[1].Data[1] != 2 {
		t.Error("interleaved V should follow U in the shared chroma buffer")
	}
	if !nv.matches(4, 4, true) || nv.matches(4, 4, false) || nv.matches(8, 4, true) {
		t.Error("matches reported wrong geometry")
	}
}

func TestSlotKeepsNewest(t *testing.T) {
	s := NewSlot()
	for i := 1; i <= 3; i++ {
		if !s.Publish(&Frame{Seq: uint64(i)}) {
			t.Fatal("Publish on open slot returned false")
		}
	}

	f, err := s.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if f.Seq != 3 {
		t.Errorf("got seq %d, want 3", f.Seq)
	}
	if s.Drops() != 2 {
		t.Errorf("got %d drops, want 2", s.Drops())
	}
}

func TestSlotRecyclesFrames(t *testing.T) {
	s := NewSlot()
	if s.Acquire() != nil {
		t.Fatal("new slot should have no free frames")
	}

	a, b := &Frame{Seq: 1}, &Frame{Seq: 2}
	s.Publish(a)
	s.Publish(b) // a is overwritten and freed
	if got := s.Acquire(); got != a {
		t.Errorf("Acquire = %p, want overwritten frame %p", got, a)
	}

	if _, err := s.Take(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Publish(&Frame{Seq: 3})
	if _, err := s.Take(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Taking seq 3 released b.
	if got := s.Acquire(); got != b {
		t.Errorf("Acquire = %p, want previously lent frame %p", got, b)
	}
}

func TestSlotTakeBlocksUntilPublish(t *testing.T) {
	s := NewSlot()
	got := make(chan uint64, 1)
	go func() {
		f, err := s.Take(context.Background())
		if err == nil {
			got <- f.Seq
		}
	}()

	time.Sleep(20 * time.Millisecond)
	s.Publish(&Frame{Seq: 7})

	select {
	case seq := <-got:
		if seq != 7 {
			t.Errorf("got seq %d, want 7", seq)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not return after Publish")
	}
}

func TestSlotTakeContextCancelled(t *testing.T) {
	s := NewSlot()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestSlotFail(t *testing.T) {
	s := NewSlot()
	s.Publish(&Frame{Seq: 1})
	s.Fail(ErrDeviceLost)
	s.Close() // no effect after Fail

	if f, err := s.Take(context.Background()); err != nil || f.Seq != 1 {
		t.Fatalf("pending frame should still be delivered, got %v, %v", f, err)
	}
	if _, err := s.Take(context.Background()); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("got %v, want ErrDeviceLost", err)
	}
	if s.Publish(&Frame{}) {
		t.Error("Publish after Fail should return false")
	}
}

func openPattern(t *testing.T, camera string, size Size) Source {
	t.Helper()
	p := NewPatternProvider()
	p.FPS = 200
	src, err := p.Open(context.Background(), Config{Camera: camera, Size: size})
	if err != nil {
		t.Fatalf("Open(%q): %v", camera, err)
	}
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestPatternSourceFrames(t *testing.T) {
	tests := []struct {
		camera      string
		format      PixelFormat
		pixelStride int
	}{
		{"test", FormatYUV420, 1},
		{"test:nv12", FormatYUV420, 2},
		{"test:yuyv", FormatYUYV, 2},
	}

	for _, tt := range tests {
		t.Run(tt.camera, func(t *testing.T) {
			src := openPattern(t, tt.camera, Size{600, 400})
			if src.Size() != (Size{640, 480}) {
				t.Errorf("Size = %v, want 640x480", src.Size())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var last uint64
			for range 3 {
				f, err := src.NextFrame(ctx)
				if err != nil {
					t.Fatalf("NextFrame: %v", err)
				}
				if f.Seq <= last {
					t.Errorf("seq %d not after %d", f.Seq, last)
				}
				last = f.Seq
				if f.Format != tt.format || f.Width != 640 || f.Height != 480 {
					t.Errorf("frame = %v %dx%d", f.Format, f.Width, f.Height)
				}
				if got := f.Planes[len(f.Planes)-1].PixelStride; got != tt.pixelStride {
					t.Errorf("pixel stride = %d, want %d", got, tt.pixelStride)
				}
			}
		})
	}
}

func TestPatternSourceUnknownLayout(t *testing.T) {
	_, err := NewPatternProvider().Open(context.Background(), Config{Camera: "test:rgb"})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("got %v, want ErrDeviceUnavailable", err)
	}
}

func TestPatternSourceApplyParametersClamps(t *testing.T) {
	src := openPattern(t, "test", Size{320, 240})
	err := src.ApplyParameters(control.Parameters{Zoom: 40, Exposure: -100, Focus: 2, Flash: true})
	if err != nil {
		t.Fatal(err)
	}

	got := src.(*patternSource).Parameters()
	want := control.Parameters{Zoom: 10, Exposure: -12, Focus: 1, Flash: true}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestPatternSourceCloseIdempotent(t *testing.T) {
	src := openPattern(t, "test", Size{320, 240})
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// A frame published before Close may still be pending.
	ctx := context.Background()
	for range 2 {
		if _, err := src.NextFrame(ctx); err != nil {
			if !errors.Is(err, ErrClosed) {
				t.Errorf("got %v, want ErrClosed", err)
			}
			return
		}
	}
	t.Error("NextFrame kept returning frames after Close")
}

type stubProvider struct {
	opened []string
}

func (p *stubProvider) Devices(context.Context) ([]Device, error) {
	return []Device{{ID: "usb-cam-video-index0", Name: "USB Camera"}}, nil
}

func (p *stubProvider) Open(_ context.Context, cfg Config) (Source, error) {
	p.opened = append(p.opened, cfg.Camera)
	return nil, ErrDeviceUnavailable
}

func TestRouter(t *testing.T) {
	hw := &stubProvider{}
	r := NewRouter(hw)

	devs, err := r.Devices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 3 || devs[0].ID != "test" || devs[2].ID != "usb-cam-video-index0" {
		t.Errorf("devices = %+v", devs)
	}

	src, err := r.Open(context.Background(), Config{Camera: "test:nv12", Size: Size{320, 240}})
	if err != nil {
		t.Fatalf("Open pattern: %v", err)
	}
	_ = src.Close()
	if len(hw.opened) != 0 {
		t.Error("pattern selector reached the device provider")
	}

	if _, err := r.Open(context.Background(), Config{Camera: "/dev/video0"}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("got %v, want ErrDeviceUnavailable", err)
	}
	if len(hw.opened) != 1 || hw.opened[0] != "/dev/video0" {
		t.Errorf("device provider opened %v", hw.opened)
	}
}

func TestIsPattern(t *testing.T) {
	for camera, want := range map[string]bool{
		"test":        true,
		"test:nv12":   true,
		"testing":     false,
		"/dev/video0": false,
	} {
		if got := IsPattern(camera); got != want {
			t.Errorf("IsPattern(%q) = %v, want %v", camera, got, want)
		}
	}
}
