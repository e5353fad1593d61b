package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/framelink/internal/capture"
	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/metrics"
	"github.com/smazurov/framelink/internal/transport"
)

// Manager owns the session state machine. At most one session is active;
// Start, Stop, UpdateSettings and ApplyControl are safe for concurrent use.
type Manager struct {
	provider capture.Provider
	bus      *events.Bus
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	current    *Session
	link       *link
	cancel     context.CancelFunc // whole stream, connection included
	sessCancel context.CancelFunc // current capture session only
	stopping   bool
	pending    *restart
	done       chan struct{}
}

type restart struct {
	settings Settings
	params   control.Parameters
}

// NewManager creates an idle manager opening cameras through provider and
// publishing lifecycle events on bus.
func NewManager(provider capture.Provider, bus *events.Bus) *Manager {
	metrics.SetSessionState(string(StateIdle))
	return &Manager{
		provider: provider,
		bus:      bus,
		logger:   logging.GetLogger("session"),
		state:    StateIdle,
	}
}

// Start validates req and begins connecting in the background. It fails
// with ErrValidation or ErrActive and leaves the manager idle in both cases.
func (m *Manager) Start(req StartRequest) error {
	req = req.normalize()
	if err := req.Validate(); err != nil {
		m.logger.Warn("Rejected start request", "error", err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return ErrActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := newSession(req, req.Parameters)
	m.current = sess
	m.cancel = cancel
	m.stopping = false
	m.pending = nil
	m.done = make(chan struct{})
	m.setStateLocked(StateConnecting)

	m.logger.Info("Starting session", "session_id", sess.ID, "consumer", req.Address, "port", req.Port,
		"camera", req.Camera, "resolution", req.Resolution, "connection", req.Connection)
	go m.run(ctx, sess, m.done)
	return nil
}

// Stop ends the current session and waits until its resources are released.
// It always succeeds and does nothing when idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	done := m.done
	if !m.stopping {
		m.stopping = true
		m.setStateLocked(StateStopping)
		m.cancel()
		if m.link != nil {
			// Unblocks the control reader.
			_ = m.link.conn.Close()
		}
	}
	m.mu.Unlock()
	<-done
}

// UpdateSettings changes the settings of the streaming session. Camera,
// resolution or rate changes tear the capture session down and start a new
// one on the same connection; quality and parameter changes apply live.
func (m *Manager) UpdateSettings(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStreaming || m.current == nil {
		return ErrNotStreaming
	}
	sess := m.current
	cur := sess.Request.Settings
	if s.Facing == "" {
		s.Facing = cur.Facing
	}
	if s.FPS == 0 {
		s.FPS = cur.FPS
	}
	if err := s.Validate(); err != nil {
		return err
	}

	// Parameters the request leaves unchanged keep what the consumer
	// adjusted since.
	effective := sess.Parameters()
	if s.Parameters != cur.Parameters {
		effective = s.Parameters
	}

	if cur.restarts(s) {
		m.logger.Info("Capture settings changed, restarting", "session_id", sess.ID,
			"camera", s.Camera, "resolution", s.Resolution, "fps", s.FPS)
		m.pending = &restart{settings: s, params: effective}
		m.sessCancel()
		return nil
	}

	sess.Request.Settings = s
	if q := int32(s.Quality); sess.quality.Swap(q) != q {
		m.logger.Info("Quality changed", "session_id", sess.ID, "quality", s.Quality)
	}
	if effective != sess.Parameters() {
		m.applyToSource(sess, sess.replaceParameters(effective), "settings")
	}
	return nil
}

// ApplyControl clamps and applies one control command to the streaming
// session, as if the consumer had sent it.
func (m *Manager) ApplyControl(cmd control.Command) (control.Parameters, error) {
	m.mu.Lock()
	sess := m.current
	streaming := m.state == StateStreaming
	m.mu.Unlock()
	if !streaming || sess == nil {
		return control.Parameters{}, ErrNotStreaming
	}
	return m.applyCommand(sess, cmd), nil
}

// Settings returns the settings of the active session.
func (m *Manager) Settings() (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.state == StateIdle {
		return Settings{}, false
	}
	s := m.current.Request.Settings
	s.Parameters = m.current.Parameters()
	return s, true
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot for display.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state}
	sess := m.current
	if sess == nil || m.state == StateIdle {
		return st
	}

	req := sess.Request
	st.SessionID = sess.ID
	st.Consumer = req.Address
	if m.link != nil {
		st.Consumer = m.link.conn.RemoteAddr().String()
	}
	st.Connection = req.Connection
	settings := req.Settings
	st.Settings = &settings
	started := sess.Started
	st.Started = &started
	st.Frames = uint64(sess.tracker.Total())

	if sess.source != nil {
		md := sess.Metadata
		size := sess.source.Size()
		caps := sess.caps
		params := sess.Parameters()
		st.Metadata = &md
		st.Size = &size
		st.Capabilities = &caps
		st.Parameters = &params
		st.Drops = sess.source.Drops()
		st.FPS = metrics.GetSessionSnapshot().FPS
	}
	return st
}

func (m *Manager) applyCommand(sess *Session, cmd control.Command) control.Parameters {
	p := sess.applyCommand(cmd)
	m.applyToSource(sess, p, cmd.String())
	return p
}

func (m *Manager) applyToSource(sess *Session, p control.Parameters, command string) {
	if src := sess.source; src != nil {
		if err := src.ApplyParameters(p); err != nil {
			m.logger.Warn("Failed to apply capture parameters", "session_id", sess.ID, "error", err)
		}
	}
	m.logger.Debug("Parameters applied", "session_id", sess.ID, "command", command,
		"zoom", p.Zoom, "exposure", p.Exposure, "focus", p.Focus, "flash", p.Flash)
	m.bus.Publish(events.ControlAppliedEvent{
		SessionID:  sess.ID,
		Command:    command,
		Parameters: p,
		Timestamp:  events.Now(),
	})
}

// setStateLocked records a transition. Caller holds mu.
func (m *Manager) setStateLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	id := ""
	if m.current != nil {
		id = m.current.ID
	}
	metrics.SetSessionState(string(to))
	m.logger.Debug("Session state changed", "session_id", id, "from", from, "to", to)
	m.bus.Publish(events.SessionStateChangedEvent{
		SessionID: id,
		From:      string(from),
		To:        string(to),
		Timestamp: events.Now(),
	})
}

func (m *Manager) setState(to State) {
	m.mu.Lock()
	m.setStateLocked(to)
	m.mu.Unlock()
}

// run supervises one stream from connect to teardown.
func (m *Manager) run(ctx context.Context, sess *Session, done chan struct{}) {
	defer close(done)

	req := sess.Request
	conn, err := transport.Dial(ctx, req.Address, req.Port, req.ConnectTimeout)
	if err != nil {
		m.finish(sess, nil, newError(KindConnect, "failed to connect to consumer", err))
		return
	}
	conn.SetWriteTimeout(req.WriteTimeout)
	l := newLink(conn)

	m.mu.Lock()
	m.link = l
	stopped := m.stopping
	m.mu.Unlock()
	if stopped {
		m.finish(sess, l, nil)
		return
	}
	m.logger.Info("Connected to consumer", "session_id", sess.ID, "remote", conn.RemoteAddr().String())
	go l.readLoop()

	for {
		err := m.stream(ctx, sess, l)

		m.mu.Lock()
		pending := m.pending
		m.pending = nil
		stopping := m.stopping
		m.mu.Unlock()

		if stopping {
			m.finish(sess, l, nil)
			return
		}
		if pending == nil {
			m.finish(sess, l, asError(err))
			return
		}

		// Restart in place: tear down capture, keep the connection.
		m.closeSource(sess)
		metrics.RecordSessionEnded("restarted")
		next := sess.Request
		next.Settings = pending.settings
		sess = newSession(next, pending.params)

		m.mu.Lock()
		if m.stopping {
			m.mu.Unlock()
			m.finish(sess, l, nil)
			return
		}
		m.setStateLocked(StateStopping)
		m.current = sess
		m.setStateLocked(StateConnecting)
		m.mu.Unlock()
		m.logger.Info("Session restarted", "session_id", sess.ID, "camera", next.Camera, "resolution", next.Resolution)
	}
}

// finish releases everything in order: frame source, transport, counters.
// A nil cause means an explicit stop.
func (m *Manager) finish(sess *Session, l *link, cause *Error) {
	m.closeSource(sess)
	if l != nil {
		_ = l.close()
	}
	sess.tracker.Reset()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping {
		cause = nil
	}
	m.link = nil
	m.cancel()

	if cause == nil {
		metrics.RecordSessionEnded("stopped")
		m.logger.Info("Session stopped", "session_id", sess.ID)
		m.setStateLocked(StateStopping)
	} else {
		metrics.RecordSessionEnded(string(cause.Kind))
		m.logger.Error("Session failed", "session_id", sess.ID, "kind", cause.Kind, "error", cause)
		m.setStateLocked(StateError)
		m.bus.Publish(events.SessionTerminatedEvent{
			SessionID: sess.ID,
			Kind:      string(cause.Kind),
			Message:   cause.Error(),
			Timestamp: events.Now(),
		})
	}
	m.setStateLocked(StateIdle)
	m.current = nil
}

func (m *Manager) closeSource(sess *Session) {
	if sess.source == nil {
		return
	}
	start := time.Now()
	if err := sess.source.Close(); err != nil {
		m.logger.Warn("Failed to close frame source", "session_id", sess.ID, "error", err)
	}
	m.logger.Debug("Frame source closed", "session_id", sess.ID, "took", time.Since(start))
}
