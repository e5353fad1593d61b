// Package encoder compresses raw capture frames to JPEG, reusing its
// buffers from one frame to the next.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/smazurov/framelink/internal/capture"
)

var (
	// ErrUnsupportedFormat is returned for frames that are not YUV 4:2:0.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	// ErrEncode is returned when a frame cannot be compressed.
	ErrEncode = errors.New("encode failed")
)

// Quality bounds.
const (
	MinQuality = 1
	MaxQuality = 100
)

// Frame is a compressed image. Data aliases the encoder's output buffer and
// is only valid until the next Encode call.
type Frame struct {
	Data []byte
}

// Len returns the compressed size in bytes.
func (f Frame) Len() int { return len(f.Data) }

// Encoder converts frames to JPEG. It is not safe for concurrent use; each
// capture loop owns one.
type Encoder struct {
	scratch []byte // tightly packed Y, Cb, Cr; grown, never shrunk
	img     image.YCbCr
	out     bytes.Buffer
	opts    jpeg.Options
}

// New creates an encoder with empty buffers.
func New() *Encoder {
	return &Encoder{}
}

// ScratchCap reports the capacity of the plane scratch buffer.
func (e *Encoder) ScratchCap() int {
	return cap(e.scratch)
}

// Encode compresses f at quality, clamped to [MinQuality, MaxQuality]. The
// frame is only read during the call.
func (e *Encoder) Encode(f *capture.Frame, quality int) (Frame, error) {
	if f == nil || f.Format != capture.FormatYUV420 || len(f.Planes) != 3 {
		return Frame{}, ErrUnsupportedFormat
	}
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		return Frame{}, fmt.Errorf("%w: invalid size %dx%d", ErrEncode, w, h)
	}
	cw, ch := capture.ChromaSize(w, h)

	need := capture.YUV420Size(w, h)
	if cap(e.scratch) < need {
		e.scratch = make([]byte, need)
	}
	e.scratch = e.scratch[:need]
	luma := e.scratch[:w*h]
	cb := e.scratch[w*h : w*h+cw*ch]
	cr := e.scratch[w*h+cw*ch:]

	y, u, v := f.Planes[0], f.Planes[1], f.Planes[2]
	if err := copyPlane(luma, y, w, h); err != nil {
		return Frame{}, err
	}
	if u.PixelStride == 2 && v.PixelStride == 2 {
		if err := copyInterleaved(cb, cr, u, v, cw, ch); err != nil {
			return Frame{}, err
		}
	} else {
		if err := copyPlane(cb, u, cw, ch); err != nil {
			return Frame{}, err
		}
		if err := copyPlane(cr, v, cw, ch); err != nil {
			return Frame{}, err
		}
	}

	e.img = image.YCbCr{
		Y:              luma,
		Cb:             cb,
		Cr:             cr,
		YStride:        w,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, w, h),
	}
	e.opts.Quality = min(max(quality, MinQuality), MaxQuality)

	e.out.Reset()
	if err := jpeg.Encode(&e.out, &e.img, &e.opts); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return Frame{Data: e.out.Bytes()}, nil
}

// span is the number of bytes a plane must hold for rows x cols samples.
func span(p capture.Plane, cols, rows int) int {
	return (rows-1)*p.RowStride + (cols-1)*p.PixelStride + 1
}

func checkPlane(p capture.Plane, cols, rows int) error {
	if p.PixelStride < 1 || p.RowStride < cols*p.PixelStride-(p.PixelStride-1) {
		return fmt.Errorf("%w: bad strides row=%d pixel=%d", ErrEncode, p.RowStride, p.PixelStride)
	}
	if len(p.Data) < span(p, cols, rows) {
		return fmt.Errorf("%w: plane holds %d bytes, need %d", ErrEncode, len(p.Data), span(p, cols, rows))
	}
	return nil
}

// copyPlane packs a plane into dst row by row.
func copyPlane(dst []byte, p capture.Plane, cols, rows int) error {
	if err := checkPlane(p, cols, rows); err != nil {
		return err
	}
	if p.PixelStride == 1 {
		if p.RowStride == cols {
			copy(dst, p.Data[:cols*rows])
			return nil
		}
		for r := range rows {
			copy(dst[r*cols:(r+1)*cols], p.Data[r*p.RowStride:])
		}
		return nil
	}
	for r := range rows {
		src := p.Data[r*p.RowStride:]
		row := dst[r*cols : (r+1)*cols]
		for c := range row {
			row[c] = src[c*p.PixelStride]
		}
	}
	return nil
}

// copyInterleaved splits two chroma planes sharing one buffer with pixel
// stride 2 in a single pass.
func copyInterleaved(cb, cr []byte, u, v capture.Plane, cols, rows int) error {
	if err := checkPlane(u, cols, rows); err != nil {
		return err
	}
	if err := checkPlane(v, cols, rows); err != nil {
		return err
	}
	for r := range rows {
		us := u.Data[r*u.RowStride:]
		vs := v.Data[r*v.RowStride:]
		bRow := cb[r*cols : (r+1)*cols]
		rRow := cr[r*cols : (r+1)*cols]
		for c := range bRow {
			bRow[c] = us[2*c]
			rRow[c] = vs[2*c]
		}
	}
	return nil
}
