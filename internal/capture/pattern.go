package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/framelink/internal/control"
)

// PatternProvider opens synthetic sources that render a moving test pattern.
// The selector suffix picks the chroma layout: "test" is planar,
// "test:nv12" interleaved and "test:yuyv" packed 4:2:2.
type PatternProvider struct {
	Sizes        []Size
	Capabilities control.Capabilities
	FPS          int
}

// NewPatternProvider returns a provider with phone-like capability ranges.
func NewPatternProvider() *PatternProvider {
	return &PatternProvider{
		Sizes: []Size{{320, 240}, {640, 480}, {1280, 720}, {1920, 1080}},
		Capabilities: control.Capabilities{
			MaxZoom:          10,
			ExposureMin:      -12,
			ExposureMax:      12,
			MinFocusDistance: 10,
			FlashAvailable:   true,
		},
		FPS: 30,
	}
}

// Devices lists the pattern layouts.
func (p *PatternProvider) Devices(context.Context) ([]Device, error) {
	var devs []Device
	for _, id := range []string{PatternPrefix, PatternPrefix + ":nv12"} {
		devs = append(devs, Device{
			ID:           id,
			Name:         "Test pattern (" + layoutName(id) + ")",
			Sizes:        p.Sizes,
			Capabilities: p.Capabilities,
		})
	}
	return devs, nil
}

func layoutName(id string) string {
	if _, layout, ok := strings.Cut(id, ":"); ok {
		return layout
	}
	return "i420"
}

// Open starts a pattern source.
func (p *PatternProvider) Open(_ context.Context, cfg Config) (Source, error) {
	var format PixelFormat
	var interleaved bool
	switch layoutName(cfg.Camera) {
	case "i420":
		format = FormatYUV420
	case "nv12":
		format, interleaved = FormatYUV420, true
	case "yuyv":
		format = FormatYUYV
	default:
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, cfg.Camera)
	}

	size, err := SelectResolution(p.Sizes, cfg.Size)
	if err != nil {
		return nil, err
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = p.FPS
	}
	if fps <= 0 {
		fps = 30
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &patternSource{
		size:        size,
		format:      format,
		interleaved: interleaved,
		caps:        p.Capabilities,
		slot:        NewSlot(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	params := control.DefaultParameters().Clamp(p.Capabilities)
	s.params.Store(&params)
	go s.run(ctx, time.Second/time.Duration(fps))
	return s, nil
}

type patternSource struct {
	size        Size
	format      PixelFormat
	interleaved bool
	caps        control.Capabilities
	slot        *Slot
	params      atomic.Pointer[control.Parameters]
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
}

func (s *patternSource) run(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			f := s.slot.Acquire()
			if f == nil {
				f = s.newFrame()
			}
			f.Seq, f.Timestamp = seq, now
			s.render(f, *s.params.Load())
			if !s.slot.Publish(f) {
				return
			}
		}
	}
}

func (s *patternSource) newFrame() *Frame {
	if s.format == FormatYUYV {
		w, h := s.size.Width, s.size.Height
		return &Frame{
			Width: w, Height: h, Format: FormatYUYV,
			Planes: []Plane{{Data: make([]byte, w*h*2), RowStride: w * 2, PixelStride: 2}},
		}
	}
	return NewYUV420Frame(s.size.Width, s.size.Height, s.interleaved)
}

// render draws diagonal bars that scroll with seq. Zoom widens the bars,
// exposure and flash lift the luma.
func (s *patternSource) render(f *Frame, p control.Parameters) {
	bar := int(8 * p.Zoom)
	if bar < 1 {
		bar = 1
	}
	lift := p.Exposure * 8
	if p.Flash {
		lift += 40
	}
	shift := int(f.Seq * 4)

	y := f.Planes[0]
	for row := 0; row < f.Height; row++ {
		line := y.Data[row*y.RowStride:]
		for col := 0; col < f.Width; col++ {
			v := ((col+row+shift)/bar)%2*160 + 48 + lift
			line[col*y.PixelStride] = clampByte(v)
		}
	}
	if f.Format != FormatYUV420 {
		return
	}
	cw, ch := ChromaSize(f.Width, f.Height)
	u, v := f.Planes[1], f.Planes[2]
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			u.Data[row*u.RowStride+col*u.PixelStride] = clampByte(128 + (col*64)/cw - 32)
			v.Data[row*v.RowStride+col*v.PixelStride] = clampByte(128 + (row*64)/ch - 32)
		}
	}
}

func clampByte(v int) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}

func (s *patternSource) NextFrame(ctx context.Context) (*Frame, error) {
	return s.slot.Take(ctx)
}

func (s *patternSource) ApplyParameters(p control.Parameters) error {
	p = p.Clamp(s.caps)
	s.params.Store(&p)
	return nil
}

// Parameters returns the parameters currently applied to rendering.
func (s *patternSource) Parameters() control.Parameters {
	return *s.params.Load()
}

func (s *patternSource) Capabilities() control.Capabilities { return s.caps }
func (s *patternSource) Size() Size                         { return s.size }
func (s *patternSource) Drops() uint64                      { return s.slot.Drops() }

func (s *patternSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.slot.Close()
		<-s.done
	})
	return nil
}
