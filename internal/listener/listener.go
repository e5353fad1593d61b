// Package listener is the consumer end of a stream: it accepts one producer
// at a time, keeps the newest frame, measures rate and latency, and sends
// control lines back.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/metrics"
	"github.com/smazurov/framelink/internal/rate"
	"github.com/smazurov/framelink/internal/transport"
	"github.com/smazurov/framelink/pkg/wire"
)

// DefaultReadTimeout bounds the wait for each message from the producer.
const DefaultReadTimeout = 5 * time.Second

var (
	// ErrNoProducer is returned by control sends while no producer is connected.
	ErrNoProducer = errors.New("no producer connected")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("listener closed")
)

// Config selects where to listen. Port 0 picks a free port.
type Config struct {
	Host        string
	Port        int
	ReadTimeout time.Duration
}

// Frame is one received JPEG.
type Frame struct {
	Data     []byte
	Seq      uint64
	Received time.Time
}

// Stats is a point-in-time view of the listener.
type Stats struct {
	Connected bool           `json:"connected"`
	Remote    string         `json:"remote,omitempty"`
	Metadata  *wire.Metadata `json:"metadata,omitempty"`
	Frames    uint64         `json:"frames"`
	Skipped   uint64         `json:"skipped"`
	Dropped   uint64         `json:"dropped"`
	FPS       float64        `json:"fps"`
	LatencyMs float64        `json:"latency_ms"`
}

// Listener accepts producers on a TCP port.
type Listener struct {
	cfg     Config
	bus     *events.Bus
	logger  *slog.Logger
	tracker *rate.Tracker
	preview *Hub

	ln        net.Listener
	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	conn     net.Conn
	remote   string
	metadata *wire.Metadata
	frames   uint64
	skipped  uint64
	dropped  uint64
	latency  time.Duration
	latest   *Frame
	notify   chan struct{}

	writeMu sync.Mutex
}

// New creates a listener. Call Listen, then Serve.
func New(cfg Config, bus *events.Bus) *Listener {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Listener{
		cfg:     cfg,
		bus:     bus,
		logger:  logging.GetLogger("listener"),
		tracker: rate.New(),
		preview: NewHub(),
		closed:  make(chan struct{}),
		notify:  make(chan struct{}),
	}
}

// Listen binds the port.
func (l *Listener) Listen() error {
	addr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	l.ln = ln
	l.logger.Info("Listening for producers", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address. Valid after Listen.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Preview returns the WebSocket relay of received frames.
func (l *Listener) Preview() *Hub {
	return l.preview
}

// Serve accepts producers one after another until ctx is cancelled or
// Close is called. A second producer waits until the first disconnects.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-l.closed:
		}
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closed:
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		l.handle(conn)
	}
}

// Close stops accepting, drops the producer and wakes Next callers.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
		if l.ln != nil {
			_ = l.ln.Close()
		}
		l.mu.Lock()
		if l.conn != nil {
			_ = l.conn.Close()
		}
		l.mu.Unlock()
		l.preview.Close()
	})
}

func (l *Listener) handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetReadBuffer(512 * 1024)
		_ = tcp.SetWriteBuffer(64 * 1024)
	}

	l.mu.Lock()
	l.conn = conn
	l.remote = remote
	l.metadata = nil
	l.mu.Unlock()
	l.tracker.Reset()
	metrics.RecordListenerConnection()
	l.logger.Info("Producer connected", "remote", remote)

	frames, reason := l.readStream(conn, remote)

	l.mu.Lock()
	l.conn = nil
	l.mu.Unlock()
	_ = conn.Close()
	metrics.SetListenerFPS(0)

	l.logger.Info("Producer disconnected", "remote", remote, "frames", frames, "reason", reason)
	l.bus.Publish(events.ProducerDisconnectedEvent{
		Remote:    remote,
		Frames:    frames,
		Reason:    reason,
		Timestamp: events.Now(),
	})
}

// readStream reads the metadata message and then frames until the producer
// goes away, returning the frame count and why reading stopped.
func (l *Listener) readStream(conn net.Conn, remote string) (uint64, string) {
	var buf []byte
	var frames uint64
	lastSample := time.Now()
	first := true

	for {
		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		n, err := wire.ReadLength(conn)
		if err != nil {
			return frames, disconnectReason(err)
		}

		if first {
			first = false
			if n > 0 && n < wire.MaxMetadataSize {
				payload, err := readPayload(conn, buf, n)
				if err != nil {
					return frames, disconnectReason(err)
				}
				buf = payload[:0]
				l.acceptMetadata(payload, remote)
				continue
			}
			l.logger.Debug("First message is not metadata", "remote", remote, "length", n)
		}

		if n == 0 || n > wire.MaxFrameSize {
			l.skip(n)
			if err := wire.Skip(conn, n); err != nil {
				return frames, disconnectReason(err)
			}
			continue
		}

		payload, err := readPayload(conn, nil, n)
		if err != nil {
			return frames, disconnectReason(err)
		}
		frames++
		l.push(payload, frames)

		if now := time.Now(); now.Sub(lastSample) >= rate.Window {
			lastSample = now
			l.sample(frames)
		}
	}
}

func readPayload(r io.Reader, buf []byte, n uint32) ([]byte, error) {
	if uint32(cap(buf)) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (l *Listener) acceptMetadata(payload []byte, remote string) {
	md, err := wire.DecodeMetadata(payload)
	if err != nil {
		l.logger.Warn("Ignoring malformed metadata", "remote", remote, "error", err)
		return
	}
	l.mu.Lock()
	l.metadata = &md
	l.mu.Unlock()

	l.logger.Info("Stream metadata", "remote", remote, "camera_id", md.CameraID, "facing", md.CameraFacing,
		"resolution", md.Resolution, "quality", md.Quality, "connection", md.ConnectionType)
	l.bus.Publish(events.ProducerConnectedEvent{
		Remote:     remote,
		CameraID:   md.CameraID,
		Resolution: md.Resolution,
		Timestamp:  events.Now(),
	})
}

func (l *Listener) skip(n uint32) {
	reason := "empty"
	if n > 0 {
		reason = "oversized"
	}
	metrics.RecordListenerSkip(reason)
	l.mu.Lock()
	l.skipped++
	l.mu.Unlock()
	l.logger.Debug("Skipped message", "length", n, "reason", reason)
}

// push replaces any unconsumed frame with the newest one.
func (l *Listener) push(data []byte, seq uint64) {
	f := &Frame{Data: data, Seq: seq, Received: time.Now()}
	l.tracker.RecordFrame()
	metrics.RecordListenerFrame()

	l.mu.Lock()
	if l.latest != nil {
		l.dropped++
	}
	l.latest = f
	l.frames++
	notify := l.notify
	l.notify = make(chan struct{})
	l.mu.Unlock()
	close(notify)

	l.preview.Broadcast(data)
}

func (l *Listener) sample(frames uint64) {
	fps := l.tracker.CurrentFPS()
	metrics.SetListenerFPS(fps)
	l.mu.Lock()
	dropped := l.dropped
	l.mu.Unlock()
	l.bus.Publish(events.FrameRateEvent{
		Source:    "listener",
		FPS:       fps,
		Frames:    frames,
		Drops:     dropped,
		Timestamp: events.Now(),
	})
}

// Next blocks until a frame newer than the last one returned is available
// and takes it. The time between receipt and Next is recorded as latency.
func (l *Listener) Next(ctx context.Context) (*Frame, error) {
	for {
		l.mu.Lock()
		if f := l.latest; f != nil {
			l.latest = nil
			latency := time.Since(f.Received)
			l.latency = latency
			l.mu.Unlock()
			metrics.ObserveListenerLatency(latency)
			return f, nil
		}
		notify := l.notify
		l.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.closed:
			return nil, ErrClosed
		}
	}
}

// Stats returns the current connection and throughput values.
func (l *Listener) Stats() Stats {
	fps := l.tracker.LastFPS()
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Connected: l.conn != nil,
		Remote:    l.remote,
		Metadata:  l.metadata,
		Frames:    l.frames,
		Skipped:   l.skipped,
		Dropped:   l.dropped,
		FPS:       fps,
		LatencyMs: float64(l.latency.Microseconds()) / 1000,
	}
}

func disconnectReason(err error) string {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "closed"
	case errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	case transport.IsClosedError(err):
		return "shutdown"
	default:
		return err.Error()
	}
}
