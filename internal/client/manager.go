package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messaging-core/internal/models"
)

// Config configures a per-conversation connection manager.
type Config struct {
	GatewayURL     string
	Token          string
	ConversationID string

	Reconnect       ReconnectPolicy
	DeliveryTimeout time.Duration
	ConnectTimeout  time.Duration

	Dialer Dialer
	Clock  Clock
}

// Handlers are the manager's callbacks toward the UI. All are optional
// and never invoked while the manager's lock is held.
type Handlers struct {
	OnState    func(State)
	OnTimeline func([]Entry)
	OnError    func(Notice)
	OnTyping   func(ev models.UserTyping, started bool)
}

// Manager owns one long-lived conversation connection: it dials with the
// auth token, joins the room on connect, reconnects with backoff on
// drops, and reconciles optimistic sends against server confirmations.
// One Manager per active conversation view; Close on unmount.
type Manager struct {
	cfg      Config
	handlers Handlers

	mu            sync.Mutex
	state         State
	attempt       int
	gen           int
	conn          Conn
	timeline      *Timeline
	pendingTimers map[string]Timer
	retryTimer    Timer
	clearTimer    Timer
	lastErr       *Notice
	started       bool
	closed        bool

	writeMu sync.Mutex
}

// NewManager builds a Manager in the Disconnected state.
func NewManager(cfg Config, handlers Handlers) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.Reconnect == (ReconnectPolicy{}) {
		cfg.Reconnect = DefaultReconnectPolicy()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = GorillaDialer{HandshakeTimeout: cfg.ConnectTimeout}
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Manager{
		cfg:           cfg,
		handlers:      handlers,
		state:         StateDisconnected,
		timeline:      NewTimeline(),
		pendingTimers: make(map[string]Timer),
	}
}

// Start begins connecting. Called when the conversation view mounts.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.closed || m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.state = Next(m.state, InputDial)
	m.gen++
	gen := m.gen
	st := m.state
	m.mu.Unlock()

	m.notifyState(st)
	go m.connect(gen)
}

// Close tears the manager down: timers stopped, connection closed, no
// further reconnects. Called when the conversation view unmounts.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	if m.clearTimer != nil {
		m.clearTimer.Stop()
	}
	m.stopPendingTimersLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = Next(m.state, InputShutdown)
	st := m.state
	m.mu.Unlock()

	m.notifyState(st)
}

// Retry leaves the terminal Failed state and dials again. It is the only
// way out of Failed short of recreating the manager.
func (m *Manager) Retry() {
	m.mu.Lock()
	if m.closed || m.state != StateFailed {
		m.mu.Unlock()
		return
	}
	m.attempt = 0
	m.state = Next(m.state, InputDial)
	m.gen++
	gen := m.gen
	st := m.state
	m.mu.Unlock()

	m.notifyState(st)
	go m.connect(gen)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Entries returns a snapshot of the conversation timeline.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeline.Entries()
}

// LastError returns the currently-surfaced error, if any. Transient
// errors clear themselves after TransientErrorClearAfter.
func (m *Manager) LastError() *Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SendMessage validates the content, appends an optimistic placeholder,
// arms the delivery timeout, and emits the send-message event. The
// placeholder is retired by the gateway's ack or the room broadcast,
// whichever arrives first; if neither does within the window, the
// placeholder is dropped and a delivery error surfaced. No automatic
// resend: a delayed-but-successful relay must not duplicate the message.
func (m *Manager) SendMessage(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if err := models.ValidateContent(trimmed); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return "", ErrNotConnected
	}
	conn := m.conn
	localID := "pending-" + uuid.NewString()
	m.timeline.AppendPending(localID, trimmed, m.cfg.Clock.Now())
	m.pendingTimers[localID] = m.cfg.Clock.AfterFunc(m.cfg.DeliveryTimeout, func() {
		m.onDeliveryTimeout(localID)
	})
	entries := m.timeline.Entries()
	m.mu.Unlock()

	m.notifyTimeline(entries)

	// A write failure is not handled here: the read loop will observe the
	// drop and reconnect, and the delivery timer resolves the placeholder.
	_ = m.writeEvent(conn, models.EventSendMessage, models.SendMessage{
		ConversationID: m.cfg.ConversationID,
		Content:        trimmed,
		LocalID:        localID,
	})
	return localID, nil
}

// SetTyping emits a typing-start or typing-stop signal. Fire-and-forget.
func (m *Manager) SetTyping(started bool) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	if started {
		return m.writeEvent(conn, models.EventTypingStart, models.TypingStart{ConversationID: m.cfg.ConversationID})
	}
	return m.writeEvent(conn, models.EventTypingStop, models.TypingStop{ConversationID: m.cfg.ConversationID})
}

func (m *Manager) connect(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	dialer := m.cfg.Dialer
	clock := m.cfg.Clock
	timeout := m.cfg.ConnectTimeout
	target := conversationURL(m.cfg.GatewayURL, m.cfg.Token)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	conn, err := dialer.Dial(ctx, target, nil)
	cancel()

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		m.attempt++
		if m.cfg.Reconnect.Exhausted(m.attempt) {
			m.state = Next(m.state, InputGiveUp)
			st := m.state
			m.mu.Unlock()
			m.notifyState(st)
			m.surfaceError(Notice{Err: ErrRetriesExhausted, Class: ClassPersistent})
			return
		}
		delay := m.cfg.Reconnect.Delay(m.attempt)
		m.state = Next(m.state, InputHandshakeFailed)
		m.retryTimer = clock.AfterFunc(delay, func() { m.connect(gen) })
		m.mu.Unlock()
		m.surfaceError(Notice{Err: fmt.Errorf("connect: %w", err), Class: ClassTransient})
		return
	}

	m.conn = conn
	m.attempt = 0
	m.state = Next(m.state, InputHandshakeOK)
	st := m.state
	m.mu.Unlock()

	m.notifyState(st)
	_ = m.writeEvent(conn, models.EventJoinConversation, models.JoinConversation{ConversationID: m.cfg.ConversationID})
	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.onTransportDrop(gen, err)
			return
		}
		event, perr := models.ParseServerEvent(raw)
		if perr != nil {
			continue
		}
		m.handleServerEvent(event)
	}
}

// onTransportDrop moves Connected -> Connecting and redials. Accumulated
// message history survives the reconnect.
func (m *Manager) onTransportDrop(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
	next := m.gen
	m.attempt = 0
	m.state = Next(m.state, InputTransportDrop)
	st := m.state
	m.mu.Unlock()

	m.notifyState(st)
	m.surfaceError(Notice{Err: fmt.Errorf("connection lost: %w", cause), Class: ClassTransient})
	go m.connect(next)
}

// handleServerEvent switches over the closed server event set.
func (m *Manager) handleServerEvent(event models.ServerEvent) {
	switch ev := event.(type) {
	case models.NewMessage:
		if ev.Message.ConversationID != m.cfg.ConversationID {
			return
		}
		m.mu.Lock()
		m.stopPendingTimersLocked()
		m.timeline.Confirm(ev.Message)
		entries := m.timeline.Entries()
		m.mu.Unlock()
		m.notifyTimeline(entries)
	case models.MessageSent:
		if ev.ConversationID != m.cfg.ConversationID {
			return
		}
		// The ack alone retires optimistic placeholders; the broadcast
		// that follows is idempotent confirmation.
		m.mu.Lock()
		m.stopPendingTimersLocked()
		dropped := m.timeline.ClearPending()
		entries := m.timeline.Entries()
		m.mu.Unlock()
		if len(dropped) > 0 {
			m.notifyTimeline(entries)
		}
	case models.ConversationJoined:
		// Join ack; nothing to update.
	case models.UserTyping:
		if m.handlers.OnTyping != nil {
			m.handlers.OnTyping(ev, true)
		}
	case models.UserStoppedTyping:
		if m.handlers.OnTyping != nil {
			m.handlers.OnTyping(models.UserTyping(ev), false)
		}
	case models.ErrorEvent:
		m.surfaceError(Notice{Err: errors.New(ev.Message), Code: ev.Code, Class: Classify(ev.Code)})
	case models.ConversationUpdated:
		// Delivered on the presence socket; not expected here.
	}
}

func (m *Manager) onDeliveryTimeout(localID string) {
	m.mu.Lock()
	if _, ok := m.pendingTimers[localID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pendingTimers, localID)
	dropped := m.timeline.DropPending(localID)
	entries := m.timeline.Entries()
	m.mu.Unlock()

	if !dropped {
		return
	}
	m.notifyTimeline(entries)
	m.surfaceError(Notice{Err: ErrDeliveryTimeout, Class: ClassTransient})
}

func (m *Manager) stopPendingTimersLocked() {
	for id, t := range m.pendingTimers {
		t.Stop()
		delete(m.pendingTimers, id)
	}
}

func (m *Manager) surfaceError(n Notice) {
	m.mu.Lock()
	m.lastErr = &n
	if m.clearTimer != nil {
		m.clearTimer.Stop()
		m.clearTimer = nil
	}
	if n.Class == ClassTransient {
		m.clearTimer = m.cfg.Clock.AfterFunc(TransientErrorClearAfter, func() {
			m.mu.Lock()
			if m.lastErr == &n {
				m.lastErr = nil
			}
			m.mu.Unlock()
		})
	}
	m.mu.Unlock()

	if m.handlers.OnError != nil {
		m.handlers.OnError(n)
	}
}

func (m *Manager) writeEvent(conn Conn, event string, payload any) error {
	raw, err := models.MarshalEvent(event, payload)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (m *Manager) notifyState(s State) {
	if m.handlers.OnState != nil {
		m.handlers.OnState(s)
	}
}

func (m *Manager) notifyTimeline(entries []Entry) {
	if m.handlers.OnTimeline != nil {
		m.handlers.OnTimeline(entries)
	}
}

func conversationURL(base, token string) string {
	return fmt.Sprintf("%s/ws/conversations?token=%s", strings.TrimSuffix(base, "/"), url.QueryEscape(token))
}
