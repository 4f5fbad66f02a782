package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-core/internal/identity"
	"messaging-core/internal/models"
	"messaging-core/internal/store"
)

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var ident models.Identity
	if val := args.Get(0); val != nil {
		ident = val.(models.Identity)
	}
	return ident, args.Error(1)
}

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) CreateMessage(ctx context.Context, conversationID string, senderID int64, senderName, content string) (models.Message, models.Conversation, error) {
	args := m.Called(ctx, conversationID, senderID, senderName, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	var conv models.Conversation
	if val := args.Get(1); val != nil {
		conv = val.(models.Conversation)
	}
	return msg, conv, args.Error(2)
}

func (m *StoreMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ identity.Verifier = (*VerifierMock)(nil)
var _ store.Store = (*StoreMock)(nil)
