package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-core/internal/models"
)

func newTestManager(t *testing.T, dialer *fakeDialer, clock *fakeClock, rec *recorder) *Manager {
	t.Helper()
	m := NewManager(Config{
		GatewayURL:      "ws://gateway.local",
		Token:           "tok/1",
		ConversationID:  "c1",
		Reconnect:       ReconnectPolicy{BaseDelay: time.Second, MaxDelay: 4 * time.Second, MaxAttempts: 3},
		DeliveryTimeout: 5 * time.Second,
		ConnectTimeout:  time.Second,
		Dialer:          dialer,
		Clock:           clock,
	}, rec.handlers())
	t.Cleanup(m.Close)
	return m
}

func startConnected(t *testing.T, dialer *fakeDialer, clock *fakeClock, rec *recorder) (*Manager, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	dialer.queue(conn)
	m := newTestManager(t, dialer, clock, rec)
	m.Start()
	require.Eventually(t, func() bool { return m.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
	return m, conn
}

func pendingCount(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if _, ok := e.(Pending); ok {
			n++
		}
	}
	return n
}

func TestManagerConnectsAndJoins(t *testing.T) {
	dialer := &fakeDialer{}
	m, conn := startConnected(t, dialer, newFakeClock(), &recorder{})

	assert.Contains(t, dialer.dialedURL(), "/ws/conversations?token=tok%2F1")
	require.Eventually(t, func() bool { return conn.wrote(models.EventJoinConversation) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerSendAppendsPlaceholderAndEmitsEvent(t *testing.T) {
	m, conn := startConnected(t, &fakeDialer{}, newFakeClock(), &recorder{})

	localID, err := m.SendMessage("  hello  ")
	require.NoError(t, err)
	assert.Contains(t, localID, "pending-")

	entries := m.Entries()
	require.Len(t, entries, 1)
	placeholder, ok := entries[0].(Pending)
	require.True(t, ok)
	assert.Equal(t, "hello", placeholder.Content)
	assert.Equal(t, localID, placeholder.LocalID)

	require.Eventually(t, func() bool { return conn.wrote(models.EventSendMessage) }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerSendRequiresConnection(t *testing.T) {
	m := newTestManager(t, &fakeDialer{}, newFakeClock(), &recorder{})

	_, err := m.SendMessage("hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManagerSendRejectsEmptyContent(t *testing.T) {
	m, _ := startConnected(t, &fakeDialer{}, newFakeClock(), &recorder{})

	_, err := m.SendMessage("   ")
	assert.ErrorIs(t, err, models.ErrEmptyContent)
	assert.Empty(t, m.Entries())
}

func TestManagerAckRetiresPlaceholder(t *testing.T) {
	m, conn := startConnected(t, &fakeDialer{}, newFakeClock(), &recorder{})

	localID, err := m.SendMessage("hello")
	require.NoError(t, err)

	conn.push(t, models.EventMessageSent, models.MessageSent{
		ConversationID: "c1",
		MessageID:      "m1",
		LocalID:        localID,
	})
	require.Eventually(t, func() bool { return pendingCount(m.Entries()) == 0 }, 2*time.Second, 10*time.Millisecond)

	// The broadcast that follows is idempotent confirmation.
	stored := models.Message{ID: "m1", ConversationID: "c1", SenderID: 1, Content: "hello"}
	conn.push(t, models.EventNewMessage, stored)
	require.Eventually(t, func() bool { return len(m.Entries()) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.push(t, models.EventNewMessage, stored)
	conn.push(t, models.EventNewMessage, models.Message{ID: "m2", ConversationID: "c1", Content: "again"})
	require.Eventually(t, func() bool { return len(m.Entries()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"m1", "m2"}, confirmedIDs(m.Entries()))
}

func TestManagerBroadcastAloneConfirms(t *testing.T) {
	m, conn := startConnected(t, &fakeDialer{}, newFakeClock(), &recorder{})

	_, err := m.SendMessage("hello")
	require.NoError(t, err)

	conn.push(t, models.EventNewMessage, models.Message{ID: "m1", ConversationID: "c1", Content: "hello"})

	require.Eventually(t, func() bool {
		entries := m.Entries()
		return len(entries) == 1 && pendingCount(entries) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerIgnoresMessagesForOtherConversations(t *testing.T) {
	m, conn := startConnected(t, &fakeDialer{}, newFakeClock(), &recorder{})

	conn.push(t, models.EventNewMessage, models.Message{ID: "m9", ConversationID: "c-other", Content: "noise"})
	conn.push(t, models.EventNewMessage, models.Message{ID: "m1", ConversationID: "c1", Content: "mine"})

	require.Eventually(t, func() bool { return len(m.Entries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"m1"}, confirmedIDs(m.Entries()))
}

func TestManagerDeliveryTimeoutDropsPlaceholderOnce(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	m, conn := startConnected(t, &fakeDialer{}, clock, rec)

	_, err := m.SendMessage("hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return conn.wrote(models.EventSendMessage) }, 2*time.Second, 10*time.Millisecond)

	clock.Advance(5 * time.Second)

	assert.Empty(t, m.Entries())
	require.Equal(t, 1, rec.noticeCount())
	notice := rec.lastNotice()
	assert.ErrorIs(t, notice.Err, ErrDeliveryTimeout)
	assert.Equal(t, ClassTransient, notice.Class)

	// The timer fired exactly once; more time produces no second error.
	clock.Advance(time.Minute)
	assert.Equal(t, 1, rec.noticeCount())
	assert.Nil(t, m.LastError())
}

func TestManagerTransientErrorClearsItself(t *testing.T) {
	clock := newFakeClock()
	m, conn := startConnected(t, &fakeDialer{}, clock, &recorder{})

	conn.push(t, models.EventError, models.ErrorEvent{Code: models.CodeUpstreamFailure, Message: "store down"})
	require.Eventually(t, func() bool { return m.LastError() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ClassTransient, m.LastError().Class)

	clock.Advance(TransientErrorClearAfter)
	assert.Nil(t, m.LastError())
}

func TestManagerPersistentErrorStays(t *testing.T) {
	clock := newFakeClock()
	m, conn := startConnected(t, &fakeDialer{}, clock, &recorder{})

	conn.push(t, models.EventError, models.ErrorEvent{Code: models.CodeAuthorizationFailed, Message: "not a participant"})
	require.Eventually(t, func() bool { return m.LastError() != nil }, 2*time.Second, 10*time.Millisecond)

	clock.Advance(time.Minute)
	require.NotNil(t, m.LastError())
	assert.Equal(t, ClassPersistent, m.LastError().Class)
	assert.Equal(t, models.CodeAuthorizationFailed, m.LastError().Code)
}

func TestManagerReconnectsAfterDropKeepingHistory(t *testing.T) {
	dialer := &fakeDialer{}
	m, conn := startConnected(t, dialer, newFakeClock(), &recorder{})

	conn.push(t, models.EventNewMessage, models.Message{ID: "m1", ConversationID: "c1", Content: "kept"})
	require.Eventually(t, func() bool { return len(m.Entries()) == 1 }, 2*time.Second, 10*time.Millisecond)

	replacement := newFakeConn()
	dialer.queue(replacement)
	conn.drop()

	require.Eventually(t, func() bool { return dialer.count() == 2 && m.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return replacement.wrote(models.EventJoinConversation) }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"m1"}, confirmedIDs(m.Entries()))
}

func TestManagerFailsAfterExhaustedRetries(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	dialer := &fakeDialer{}
	dialer.queueErr(assert.AnError)
	dialer.queueErr(assert.AnError)
	dialer.queueErr(assert.AnError)

	m := newTestManager(t, dialer, clock, rec)
	m.Start()

	require.Eventually(t, func() bool { return rec.noticeCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnecting, m.State())

	clock.Advance(time.Second)
	require.Equal(t, 2, rec.noticeCount())

	clock.Advance(2 * time.Second)
	require.Equal(t, 3, rec.noticeCount())

	assert.Equal(t, StateFailed, m.State())
	notice := rec.lastNotice()
	assert.ErrorIs(t, notice.Err, ErrRetriesExhausted)
	assert.Equal(t, ClassPersistent, notice.Class)

	// Failed is terminal: no more dials without an explicit retry.
	clock.Advance(time.Minute)
	assert.Equal(t, 3, dialer.count())

	replacement := newFakeConn()
	dialer.queue(replacement)
	m.Retry()
	require.Eventually(t, func() bool { return m.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerCloseIsTerminal(t *testing.T) {
	dialer := &fakeDialer{}
	m, _ := startConnected(t, dialer, newFakeClock(), &recorder{})

	m.Close()
	assert.Equal(t, StateDisconnected, m.State())

	_, err := m.SendMessage("hello")
	assert.ErrorIs(t, err, ErrNotConnected)

	m.Start()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 1, dialer.count())
}

func TestManagerTypingSignals(t *testing.T) {
	rec := &recorder{}
	m, conn := startConnected(t, &fakeDialer{}, newFakeClock(), rec)

	require.NoError(t, m.SetTyping(true))
	require.NoError(t, m.SetTyping(false))
	require.Eventually(t, func() bool {
		return conn.wrote(models.EventTypingStart) && conn.wrote(models.EventTypingStop)
	}, 2*time.Second, 10*time.Millisecond)

	conn.push(t, models.EventUserTyping, models.UserTyping{ConversationID: "c1", UserID: 2, UserName: "Bob"})
	conn.push(t, models.EventUserStoppedTyping, models.UserStoppedTyping{ConversationID: "c1", UserID: 2})
	require.Eventually(t, func() bool { return len(rec.typingSignals()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.typingSignals())
}
