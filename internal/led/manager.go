package led

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/session"
)

// statePatterns maps session states to the status LED.
var statePatterns = map[session.State]Pattern{
	session.StateIdle:       PatternOff,
	session.StateConnecting: PatternBlink,
	session.StateStreaming:  PatternSolid,
	session.StateStopping:   PatternBlink,
	session.StateError:      PatternHeartbeat,
}

// Manager follows session events on the bus and drives the LEDs.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger

	mu     sync.Mutex
	unsubs []func()
	torch  bool
}

// NewManager creates a manager for controller.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{controller: controller, eventBus: eventBus, logger: logger}
}

// Start turns the status LED off and subscribes to session events.
func (m *Manager) Start() {
	m.set(RoleStatus, PatternOff)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubs = append(m.unsubs,
		m.eventBus.Subscribe(func(e events.SessionStateChangedEvent) {
			m.handleState(e)
		}),
	)
	if slices.Contains(m.controller.Available(), RoleTorch) {
		m.unsubs = append(m.unsubs,
			m.eventBus.Subscribe(func(e events.ControlAppliedEvent) {
				m.handleControl(e)
			}),
		)
	}
	m.logger.Info("LED manager started", "roles", m.controller.Available())
}

// Stop unsubscribes and turns every LED off.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
	m.mu.Unlock()

	for _, role := range m.controller.Available() {
		m.set(role, PatternOff)
	}
	m.logger.Info("LED manager stopped")
}

func (m *Manager) handleState(e events.SessionStateChangedEvent) {
	state := session.State(e.To)
	pattern, ok := statePatterns[state]
	if !ok {
		return
	}
	m.logger.Debug("Session state changed", "state", e.To, "pattern", pattern)
	m.set(RoleStatus, pattern)

	// The torch never outlives the session that turned it on.
	if state == session.StateIdle {
		m.setTorch(false)
	}
}

func (m *Manager) handleControl(e events.ControlAppliedEvent) {
	m.setTorch(e.Parameters.Flash)
}

func (m *Manager) setTorch(on bool) {
	m.mu.Lock()
	changed := m.torch != on
	m.torch = on
	m.mu.Unlock()
	if !changed {
		return
	}
	pattern := PatternOff
	if on {
		pattern = PatternSolid
	}
	m.set(RoleTorch, pattern)
}

func (m *Manager) set(role string, pattern Pattern) {
	if err := m.controller.Set(role, pattern); err != nil {
		m.logger.Warn("Failed to set LED", "role", role, "pattern", pattern, "error", err)
	}
}
