// Package wire implements the framelink stream framing.
//
// Every message on a stream socket is a 4-byte big-endian unsigned length
// followed by exactly that many payload bytes. The first message of a
// session is a UTF-8 JSON [Metadata] document; every following message is
// one JPEG-compressed frame. The reverse direction carries newline-terminated
// text control lines and is not framed.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4

	// DefaultPort is the conventional consumer port, also used for USB forwarding.
	DefaultPort = 5000

	// MaxMetadataSize bounds an acceptable metadata message (exclusive).
	MaxMetadataSize = 1024

	// MaxFrameSize is the largest frame a consumer accepts; bigger ones are skipped.
	MaxFrameSize = 5 * 1024 * 1024
)

var (
	// ErrMessageTooLarge is returned when a length prefix exceeds the reader's limit.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrPayloadTooLarge is returned when a payload cannot be described by a uint32 prefix.
	ErrPayloadTooLarge = errors.New("payload exceeds 32-bit length")
)

// WriteMessage writes payload with its length prefix. Header and payload go
// out in a single vectored write when w supports it, so a peer never sees a
// header without the bytes that follow it unless the write itself fails.
func WriteMessage(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrPayloadTooLarge
	}
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	bufs := net.Buffers{hdr[:], payload}
	want := int64(HeaderSize + len(payload))
	n, err := bufs.WriteTo(w)
	if err != nil {
		return err
	}
	if n != want {
		return io.ErrShortWrite
	}
	return nil
}

// ReadLength reads one length prefix.
func ReadLength(r io.Reader) (uint32, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(hdr[:]), nil
}

// ReadMessage reads one framed message into buf, growing it when needed, and
// returns the payload slice. A prefix larger than limit yields
// ErrMessageTooLarge with the payload left unread; limit 0 means no limit.
func ReadMessage(r io.Reader, buf []byte, limit uint32) ([]byte, error) {
	n, err := ReadLength(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, n, limit)
	}
	if uint32(cap(buf)) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// Skip discards n payload bytes after a rejected prefix.
func Skip(r io.Reader, n uint32) error {
	_, err := io.CopyN(io.Discard, r, int64(n))
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
