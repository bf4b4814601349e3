package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rastreio-bot/internal/metrics"
	"rastreio-bot/internal/model"
	"rastreio-bot/pkg/logger"
)

// TransportEventKind identifies a session lifecycle report from the transport
type TransportEventKind int

const (
	// TransportPairingCode carries a fresh pairing code in Code
	TransportPairingCode TransportEventKind = iota
	// TransportAuthenticated means the session is logged in and usable
	TransportAuthenticated
	// TransportSessionLost means the session ended and cannot recover on its
	// own. The transport has already closed its socket.
	TransportSessionLost
)

func (k TransportEventKind) String() string {
	switch k {
	case TransportPairingCode:
		return "pairing_code"
	case TransportAuthenticated:
		return "authenticated"
	case TransportSessionLost:
		return "session_lost"
	default:
		return "unknown"
	}
}

// TransportEvent is a lifecycle report from the messaging transport
type TransportEvent struct {
	Kind   TransportEventKind
	Code   string
	Reason string
}

// SessionTransport is the session side of the messaging transport
type SessionTransport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Identity(ctx context.Context) (*model.BotInfo, error)
	Events() <-chan TransportEvent
}

// PairingRenderer turns a raw pairing code into the artifact shown to operators
type PairingRenderer interface {
	Render(code string) (string, error)
}

// SessionManager owns the process-wide session state. Transitions come from
// operator requests and from the transport event stream consumed by Run.
type SessionManager struct {
	transport SessionTransport
	renderer  PairingRenderer
	publisher Publisher
	logger    *logger.Logger

	identityTimeout time.Duration

	mu    sync.Mutex
	state model.SessionState
}

// NewSessionManager creates a session manager in the DISCONNECTED state
func NewSessionManager(transport SessionTransport, renderer PairingRenderer, publisher Publisher, log *logger.Logger) *SessionManager {
	return &SessionManager{
		transport:       transport,
		renderer:        renderer,
		publisher:       publisher,
		logger:          log.WithComponent("session"),
		identityTimeout: 10 * time.Second,
		state:           model.SessionState{Status: model.SessionDisconnected},
	}
}

// Snapshot returns a copy of the current session state
func (m *SessionManager) Snapshot() model.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state)
}

// IsConnected reports whether the session is CONNECTED
func (m *SessionManager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status == model.SessionConnected
}

// RequestConnect starts session establishment. It is a no-op while a session
// is connecting, awaiting pairing or connected.
func (m *SessionManager) RequestConnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status != model.SessionDisconnected {
		status := m.state.Status
		m.mu.Unlock()
		m.logger.Warn("Connect requested while session is active, ignoring", "status", status)
		return nil
	}
	m.transitionLocked(model.SessionState{Status: model.SessionConnecting})
	m.mu.Unlock()

	m.logger.Info("Connecting to WhatsApp")
	if err := m.transport.Connect(ctx); err != nil {
		m.logger.Error("Failed to start WhatsApp session", "error", err)
		m.reset()
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// RequestDisconnect tears the transport session down and resets the state.
// The state is reset even when the teardown fails.
func (m *SessionManager) RequestDisconnect(ctx context.Context) error {
	err := m.transport.Disconnect(ctx)
	m.reset()
	if err != nil {
		m.logger.Error("WhatsApp teardown failed", "error", err)
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	m.logger.Info("WhatsApp session closed by operator")
	return nil
}

// Run consumes transport events until ctx is cancelled or the stream closes
func (m *SessionManager) Run(ctx context.Context) error {
	events := m.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			m.handleEvent(ctx, evt)
		}
	}
}

func (m *SessionManager) handleEvent(ctx context.Context, evt TransportEvent) {
	switch evt.Kind {
	case TransportPairingCode:
		m.handlePairingCode(evt.Code)
	case TransportAuthenticated:
		m.handleAuthenticated(ctx)
	case TransportSessionLost:
		m.logger.Warn("WhatsApp session lost", "reason", evt.Reason)
		m.reset()
	default:
		m.logger.Debug("Ignoring transport event", "kind", evt.Kind.String())
	}
}

func (m *SessionManager) handlePairingCode(code string) {
	artifact, err := m.renderer.Render(code)
	if err != nil {
		m.logger.Error("Failed to render pairing code", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A late code after an operator disconnect must not revive the session.
	if m.state.Status == model.SessionDisconnected || m.state.Status == model.SessionConnected {
		m.logger.Debug("Dropping pairing code", "status", m.state.Status)
		return
	}
	m.transitionLocked(model.SessionState{Status: model.SessionAwaitingPairing, QRCode: artifact})
	m.logger.Info("Pairing code ready, scan it from WhatsApp > Linked Devices")
}

func (m *SessionManager) handleAuthenticated(ctx context.Context) {
	identityCtx, cancel := context.WithTimeout(ctx, m.identityTimeout)
	info, err := m.transport.Identity(identityCtx)
	cancel()
	if err != nil {
		m.logger.Warn("Could not resolve connected identity", "error", err)
		info = nil
	}

	m.mu.Lock()
	// An operator disconnect that raced the handshake wins.
	if m.state.Status == model.SessionDisconnected {
		m.mu.Unlock()
		m.logger.Warn("Session authenticated after disconnect, closing it")
		if err := m.transport.Disconnect(ctx); err != nil {
			m.logger.WithError(err).Error("WhatsApp teardown failed")
		}
		return
	}
	m.transitionLocked(model.SessionState{Status: model.SessionConnected, BotInfo: info})
	m.mu.Unlock()

	if info != nil {
		m.logger.Info("WhatsApp connected", "name", info.Name, "phone", info.Phone)
	} else {
		m.logger.Info("WhatsApp connected")
	}
}

func (m *SessionManager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(model.SessionState{Status: model.SessionDisconnected})
}

// transitionLocked replaces the state and publishes it. Publishing under the
// lock keeps observers in transition order.
func (m *SessionManager) transitionLocked(next model.SessionState) {
	m.state = next
	metrics.SessionTransitionsTotal.WithLabelValues(string(next.Status)).Inc()
	m.publisher.Publish(model.NewStatusUpdateEvent(copyState(next)))
}

func copyState(s model.SessionState) model.SessionState {
	out := s
	if s.BotInfo != nil {
		info := *s.BotInfo
		out.BotInfo = &info
	}
	return out
}
