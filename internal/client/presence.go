package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"messaging-core/internal/models"
)

// PresenceConfig configures the app-wide presence client.
type PresenceConfig struct {
	GatewayURL string
	Token      string

	Reconnect      ReconnectPolicy
	ConnectTimeout time.Duration

	Dialer Dialer
	Clock  Clock
}

// PresenceClient holds the second, app-wide connection used only to
// receive conversation-updated notifications for the conversation list.
// It has no send capability, reconnects indefinitely on drops, and is
// closed on sign-out. Lifecycle is explicit: Start on session start,
// Close on sign-out; there is no package-level singleton.
type PresenceClient struct {
	cfg      PresenceConfig
	onUpdate func(models.ConversationUpdated)

	mu         sync.Mutex
	conn       Conn
	attempt    int
	gen        int
	retryTimer Timer
	started    bool
	closed     bool
}

// NewPresenceClient builds a presence client. The reconnect policy's
// attempt cap is ignored: the presence socket never gives up.
func NewPresenceClient(cfg PresenceConfig, onUpdate func(models.ConversationUpdated)) *PresenceClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
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
	return &PresenceClient{cfg: cfg, onUpdate: onUpdate}
}

// Start begins connecting. Called once when a user session starts.
func (p *PresenceClient) Start() {
	p.mu.Lock()
	if p.closed || p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	go p.connect(gen)
}

// Close shuts the presence connection down. Called on sign-out.
func (p *PresenceClient) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	if p.retryTimer != nil {
		p.retryTimer.Stop()
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.mu.Unlock()
}

func (p *PresenceClient) connect(gen int) {
	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		return
	}
	dialer := p.cfg.Dialer
	clock := p.cfg.Clock
	timeout := p.cfg.ConnectTimeout
	target := presenceURL(p.cfg.GatewayURL, p.cfg.Token)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	conn, err := dialer.Dial(ctx, target, nil)
	cancel()

	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		p.attempt++
		delay := p.cfg.Reconnect.Delay(p.attempt)
		p.retryTimer = clock.AfterFunc(delay, func() { p.connect(gen) })
		p.mu.Unlock()
		return
	}

	p.conn = conn
	p.attempt = 0
	p.mu.Unlock()

	go p.readLoop(conn, gen)
}

func (p *PresenceClient) readLoop(conn Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			p.onDrop(gen)
			return
		}

		event, perr := models.ParseServerEvent(raw)
		if perr != nil {
			continue
		}
		if update, ok := event.(models.ConversationUpdated); ok && p.onUpdate != nil {
			p.onUpdate(update)
		}
	}
}

func (p *PresenceClient) onDrop(gen int) {
	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		return
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.gen++
	next := p.gen
	p.attempt = 0
	p.mu.Unlock()

	go p.connect(next)
}

func presenceURL(base, token string) string {
	return fmt.Sprintf("%s/ws/presence?token=%s", strings.TrimSuffix(base, "/"), url.QueryEscape(token))
}
