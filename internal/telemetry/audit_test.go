package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-core/internal/mocks"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	var captured AuditEnvelope
	publisher.On("PublishJSON", mock.Anything, "audit.realtime", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(AuditEnvelope)
		}).
		Return(nil)

	emitter := NewAuditEmitter(publisher, "audit.realtime", "messaging-core", "test")
	userID := int64(7)
	emitter.Emit(context.Background(), "WARN", "send rejected", "req-1", "c1", &userID)

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, captured.SchemaVersion)
	assert.Equal(t, "audit_log", captured.EventType)
	assert.Equal(t, "messaging-core", captured.Service)
	assert.Equal(t, "test", captured.Environment)
	assert.Equal(t, "req-1", captured.RequestID)
	require.NotNil(t, captured.UserID)
	assert.Equal(t, int64(7), *captured.UserID)
	assert.Equal(t, "WARN", captured.Payload.Level)
	assert.Equal(t, "send rejected", captured.Payload.Text)
	assert.Equal(t, "c1", captured.Payload.ConversationID)
	assert.NotEmpty(t, captured.OccurredAt)
}

func TestAuditEmitterPropagatesRequestIDHeader(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	publisher.On("PublishJSON", mock.Anything, "audit.realtime", mock.Anything,
		map[string]string{"x-request-id": "req-9"}).Return(nil)

	emitter := NewAuditEmitter(publisher, "audit.realtime", "messaging-core", "test")
	emitter.Emit(context.Background(), "WARN", "handshake without token", "req-9", "", nil)

	publisher.AssertExpectations(t)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "WARN", "text", "", "", nil)
	})

	withoutPublisher := NewAuditEmitter(nil, "audit.realtime", "messaging-core", "test")
	assert.NotPanics(t, func() {
		withoutPublisher.Emit(context.Background(), "WARN", "text", "", "", nil)
	})
}
