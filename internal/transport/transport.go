// Package transport carries one stream to a consumer: a metadata message,
// then length-prefixed frames, with control lines read back on the same
// connection.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/pkg/wire"
)

var (
	// ErrTimeout is returned when the consumer did not accept within the dial timeout.
	ErrTimeout = errors.New("connect timeout")
	// ErrRefused is returned when nothing listens at the consumer address.
	ErrRefused = errors.New("connection refused")
	// ErrUnreachable covers resolution and routing failures.
	ErrUnreachable = errors.New("consumer unreachable")
	// ErrMetadataSent is returned by a second SendMetadata call.
	ErrMetadataSent = errors.New("metadata already sent")
	// ErrMetadataRequired is returned by SendFrame before SendMetadata.
	ErrMetadataRequired = errors.New("metadata must be sent before frames")
	// ErrClosed is returned by sends after Close.
	ErrClosed = errors.New("transport closed")
)

// MaxControlLine bounds an inbound control line. Longer lines are discarded.
const MaxControlLine = 256

// closeGrace is how long Close lets an in-flight send finish before aborting
// it. Overridden in tests.
var closeGrace = time.Second

// Conn is a producer-side stream connection. Sends are serialized; reading
// control lines may proceed concurrently with sends.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	writeMu      sync.Mutex
	metadataSent bool
	writeTimeout time.Duration
	bytesSent    uint64

	closing   atomic.Bool
	closeOnce sync.Once
}

// Dial connects to address:port within timeout.
func Dial(ctx context.Context, address string, port int, timeout time.Duration) (*Conn, error) {
	target := net.JoinHostPort(address, strconv.Itoa(port))
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, classifyDialError(target, err)
	}
	if tcp, ok := nc.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			logging.GetLogger("transport").Warn("Failed to set TCP_NODELAY", "error", err)
		}
	}
	return NewConn(nc), nil
}

func classifyDialError(target string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %w", ErrTimeout, target, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %s: %w", ErrRefused, target, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("dial %s: %w", target, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, target, err)
	}
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		conn:   nc,
		reader: bufio.NewReaderSize(nc, MaxControlLine),
		logger: logging.GetLogger("transport").With("remote", nc.RemoteAddr().String()),
	}
}

// SetWriteTimeout bounds each send. Zero disables the deadline.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeMu.Lock()
	c.writeTimeout = d
	c.writeMu.Unlock()
}

// RemoteAddr returns the consumer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SendMetadata validates m and sends it as the first message.
func (c *Conn) SendMetadata(m wire.Metadata) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.metadataSent {
		return ErrMetadataSent
	}
	if err := c.write(payload); err != nil {
		return err
	}
	c.metadataSent = true
	c.logger.Debug("Metadata sent", "camera_id", m.CameraID, "resolution", m.Resolution, "quality", m.Quality)
	return nil
}

// SendFrame sends one compressed frame. The payload is fully written before
// SendFrame returns, so the caller may reuse it afterwards.
func (c *Conn) SendFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.metadataSent {
		return ErrMetadataRequired
	}
	return c.write(payload)
}

// write sends one framed message. Caller holds writeMu.
func (c *Conn) write(payload []byte) error {
	if c.closing.Load() {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := wire.WriteMessage(c.conn, payload); err != nil {
		return fmt.Errorf("write %d bytes: %w", len(payload), err)
	}
	c.bytesSent += uint64(wire.HeaderSize + len(payload))
	return nil
}

// BytesSent counts bytes written, headers included.
func (c *Conn) BytesSent() uint64 {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.bytesSent
}

// ReadControlLine returns the next newline-terminated line without its
// terminator. It returns io.EOF when the consumer closes its side; an
// unterminated trailing fragment is dropped. Lines longer than
// MaxControlLine are skipped.
func (c *Conn) ReadControlLine() (string, error) {
	for {
		line, err := c.reader.ReadSlice('\n')
		switch {
		case err == nil:
			return string(bytes.TrimSuffix(line, []byte{'\n'})), nil
		case errors.Is(err, bufio.ErrBufferFull):
			c.logger.Debug("Discarding oversized control line")
			if err := c.discardLine(); err != nil {
				return "", err
			}
		default:
			return "", err
		}
	}
}

func (c *Conn) discardLine() error {
	for {
		_, err := c.reader.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// Close shuts down both directions. Sends not yet started fail with
// ErrClosed; a send in flight gets up to a second to finish before it is
// aborted. Pending reads return. Close is safe to call more than once and
// never reports an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		locked := make(chan struct{})
		go func() {
			c.writeMu.Lock()
			close(locked)
		}()
		select {
		case <-locked:
		case <-time.After(closeGrace):
			c.logger.Debug("Aborting stalled send")
			_ = c.conn.SetWriteDeadline(time.Now())
			<-locked
		}
		c.writeMu.Unlock()

		if tcp, ok := c.conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
		_ = c.conn.Close()
		c.logger.Debug("Connection closed")
	})
	return nil
}

// IsClosedError reports whether err is the result of reading from or writing
// to a connection closed locally.
func IsClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
