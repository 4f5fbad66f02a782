package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"messaging-core/internal/models"
)

// fakeConn is an in-memory connection: the test pushes server frames into
// in, and everything the manager writes is recorded.
type fakeConn struct {
	in   chan []byte
	once sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	raw, ok := <-c.in
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, raw, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.in) })
	return nil
}

// drop simulates the transport failing under the manager.
func (c *fakeConn) drop() {
	c.once.Do(func() { close(c.in) })
}

func (c *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := models.MarshalEvent(event, payload)
	require.NoError(t, err)
	c.in <- raw
}

func (c *fakeConn) writtenEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.writes))
	for _, raw := range c.writes {
		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			names = append(names, env.Event)
		}
	}
	return names
}

func (c *fakeConn) wrote(event string) bool {
	for _, name := range c.writtenEvents() {
		if name == event {
			return true
		}
	}
	return false
}

type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeDialer hands out scripted connections in order.
type fakeDialer struct {
	mu      sync.Mutex
	script  []dialResult
	dials   int
	lastURL string
}

func (d *fakeDialer) queue(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, dialResult{conn: c})
}

func (d *fakeDialer) queueErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, dialResult{err: err})
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.lastURL = url
	if len(d.script) == 0 {
		return nil, errors.New("unscripted dial")
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) dialedURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastURL
}

// fakeClock is a manually advanced clock; due timers fire synchronously
// inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if !t.at.After(c.now) {
			t.stopped = true
			due = append(due, t)
			continue
		}
		remaining = append(remaining, t)
	}
	c.timers = remaining
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

// recorder collects manager callbacks; they arrive on manager goroutines.
type recorder struct {
	mu      sync.Mutex
	states  []State
	notices []Notice
	typing  []bool
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnState: func(s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnError: func(n Notice) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.notices = append(r.notices, n)
		},
		OnTyping: func(ev models.UserTyping, started bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.typing = append(r.typing, started)
		},
	}
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func (r *recorder) lastNotice() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

func (r *recorder) typingSignals() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.typing))
	copy(out, r.typing)
	return out
}
