package capture

import (
	"fmt"
	"time"
)

// PixelFormat tags the layout of a raw frame.
type PixelFormat int

const (
	// FormatYUV420 is the YUV 4:2:0 family: one full-size luma plane and two
	// quarter-size chroma planes. Chroma may be planar (pixel stride 1) or
	// interleaved (pixel stride 2, the U and V planes then alias one buffer).
	FormatYUV420 PixelFormat = iota + 1
	// FormatYUYV is packed 4:2:2. Sources may report it; the encoder rejects it.
	FormatYUYV
)

func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "yuv420"
	case FormatYUYV:
		return "yuyv422"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Plane is one component of a raw frame.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Frame is a raw image lent by a Source. It stays valid until the next
// NextFrame call on the same source and must not be retained past that.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Format    PixelFormat
	Planes    []Plane
}

// Size is a frame resolution.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ChromaSize returns the dimensions of a 4:2:0 chroma plane.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// YUV420Size is the byte count of a tightly packed 4:2:0 image.
func YUV420Size(width, height int) int {
	cw, ch := ChromaSize(width, height)
	return width*height + 2*cw*ch
}

// NewYUV420Frame allocates a 4:2:0 frame. With interleaved set the chroma
// planes share one buffer with pixel stride 2 (V follows U by one byte).
func NewYUV420Frame(width, height int, interleaved bool) *Frame {
	cw, ch := ChromaSize(width, height)
	buf := make([]byte, YUV420Size(width, height))
	luma := buf[:width*height]
	chroma := buf[width*height:]

	f := &Frame{Width: width, Height: height, Format: FormatYUV420}
	if interleaved {
		f.Planes = []Plane{
			{Data: luma, RowStride: width, PixelStride: 1},
			{Data: chroma, RowStride: 2 * cw, PixelStride: 2},
			{Data: chroma[1:], RowStride: 2 * cw, PixelStride: 2},
		}
		return f
	}
	f.Planes = []Plane{
		{Data: luma, RowStride: width, PixelStride: 1},
		{Data: chroma[:cw*ch], RowStride: cw, PixelStride: 1},
		{Data: chroma[cw*ch:], RowStride: cw, PixelStride: 1},
	}
	return f
}

// matches reports whether f can be reused for another frame of the given geometry.
func (f *Frame) matches(width, height int, interleaved bool) bool {
	if f == nil || f.Width != width || f.Height != height || len(f.Planes) != 3 {
		return false
	}
	return (f.Planes[1].PixelStride == 2) == interleaved
}
