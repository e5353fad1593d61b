package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/metrics"
	"github.com/smazurov/framelink/internal/rate"
	"github.com/smazurov/framelink/internal/transport"
	"github.com/smazurov/framelink/pkg/wire"
)

// link is the consumer connection. It outlives capture sessions restarted
// in place, so its control lines are read by one goroutine and handed to
// whichever session is current.
type link struct {
	conn  *transport.Conn
	lines chan string
	quit  chan struct{}
	once  sync.Once
	err   error // valid once lines is closed
}

func newLink(conn *transport.Conn) *link {
	return &link{
		conn:  conn,
		lines: make(chan string),
		quit:  make(chan struct{}),
	}
}

func (l *link) readLoop() {
	defer close(l.lines)
	for {
		line, err := l.conn.ReadControlLine()
		if err != nil {
			l.err = err
			return
		}
		select {
		case l.lines <- line:
		case <-l.quit:
			return
		}
	}
}

func (l *link) close() error {
	l.once.Do(func() { close(l.quit) })
	return l.conn.Close()
}

// stream runs one capture session on l until it fails or ctx, or the
// session's own context, is cancelled.
func (m *Manager) stream(ctx context.Context, sess *Session, l *link) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := sess.Request
	src, err := m.provider.Open(sessCtx, capture.Config{Camera: req.Camera, Size: req.Resolution, FPS: req.FPS})
	if err != nil {
		if sessCtx.Err() != nil {
			return err
		}
		return newError(KindDevice, "failed to open camera "+req.Camera, err)
	}

	size := src.Size()
	caps := src.Capabilities()
	sess.Metadata = wire.Metadata{
		CameraID:       req.Camera,
		CameraFacing:   req.Facing,
		Resolution:     wire.FormatResolution(size.Width, size.Height),
		Quality:        req.Quality,
		ConnectionType: req.Connection,
	}

	m.mu.Lock()
	sess.source = src
	sess.caps = caps
	m.sessCancel = cancel
	m.mu.Unlock()

	p := sess.replaceParameters(sess.Parameters())
	if err := src.ApplyParameters(p); err != nil {
		m.logger.Warn("Failed to apply initial parameters", "session_id", sess.ID, "error", err)
	}

	before := l.conn.BytesSent()
	err = l.conn.SendMetadata(sess.Metadata)
	switch {
	case err == nil:
		metrics.RecordBytesSent(int(l.conn.BytesSent() - before))
	case errors.Is(err, transport.ErrMetadataSent):
		// Restarted on a connection that already carried metadata.
	case sessCtx.Err() != nil:
		return err
	default:
		return newError(KindTransport, "failed to send metadata", err)
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return context.Canceled
	}
	m.setStateLocked(StateStreaming)
	m.mu.Unlock()

	m.logger.Info("Streaming", "session_id", sess.ID, "resolution", sess.Metadata.Resolution,
		"quality", req.Quality, "max_zoom", caps.MaxZoom, "exposure_min", caps.ExposureMin,
		"exposure_max", caps.ExposureMax, "manual_focus", caps.ManualFocus(), "flash", caps.FlashAvailable)

	g, gctx := errgroup.WithContext(sessCtx)
	g.Go(func() error { return m.captureLoop(gctx, sess, l.conn) })
	g.Go(func() error { return m.controlLoop(gctx, sess, l) })
	return g.Wait()
}

// captureLoop pulls, encodes and sends frames. Encode failures drop the
// frame; any other failure ends the session.
func (m *Manager) captureLoop(ctx context.Context, sess *Session, conn *transport.Conn) error {
	lastSample := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := sess.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return newError(KindDevice, "frame source failed", err)
		}

		out, err := sess.encoder.Encode(frame, int(sess.quality.Load()))
		if err != nil {
			metrics.RecordEncodeFailure()
			m.logger.Debug("Dropped frame", "session_id", sess.ID, "seq", frame.Seq, "error", err)
			continue
		}

		if err := conn.SendFrame(out.Data); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return newError(KindTransport, "failed to send frame", err)
		}

		sess.tracker.RecordFrame()
		n := uint64(sess.tracker.Total())
		metrics.RecordFrameSent(out.Len())

		if now := time.Now(); now.Sub(lastSample) >= rate.Window {
			lastSample = now
			m.sample(sess, n)
		}
	}
}

func (m *Manager) sample(sess *Session, frames uint64) {
	fps := sess.tracker.CurrentFPS()
	drops := sess.source.Drops()
	metrics.SetSessionFPS(fps, drops)
	m.bus.Publish(events.FrameRateEvent{
		Source:    "session",
		SessionID: sess.ID,
		FPS:       fps,
		Frames:    frames,
		Drops:     drops,
		Timestamp: events.Now(),
	})
}

// controlLoop applies consumer commands. The consumer closing its side ends
// the session.
func (m *Manager) controlLoop(ctx context.Context, sess *Session, l *link) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-l.lines:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(l.err, io.EOF) {
					return newError(KindTransport, "consumer closed the connection", l.err)
				}
				return newError(KindTransport, "control read failed", l.err)
			}
			cmd, ok := control.Parse(line)
			if !ok {
				m.logger.Debug("Ignored control line", "session_id", sess.ID, "line", line)
				continue
			}
			m.applyCommand(sess, cmd)
		}
	}
}
