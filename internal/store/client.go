package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"

	"messaging-core/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Store is the gateway's view of the external system of record. Messages
// and conversations are persisted there; the gateway never owns them.
type Store interface {
	CreateMessage(ctx context.Context, conversationID string, senderID int64, senderName, content string) (models.Message, models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
}

// Client talks to the REST persistence service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a store client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createMessageRequest struct {
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Content    string `json:"content"`
}

type createMessageResponse struct {
	Message      models.Message      `json:"message"`
	Conversation models.Conversation `json:"conversation"`
}

// CreateMessage persists a message and returns the store-assigned record
// together with the refreshed conversation counters, so the caller can
// fan out conversation-updated notifications without a second round-trip.
func (c *Client) CreateMessage(ctx context.Context, conversationID string, senderID int64, senderName, content string) (models.Message, models.Conversation, error) {
	ctx, span := otel.Tracer("messaging-core/store").Start(ctx, "store.create_message")
	defer span.End()

	body, err := json.Marshal(createMessageRequest{SenderID: senderID, SenderName: senderName, Content: content})
	if err != nil {
		return models.Message{}, models.Conversation{}, fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/internal/conversations/%s/messages", c.baseURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.Message{}, models.Conversation{}, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Message{}, models.Conversation{}, fmt.Errorf("store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.Message{}, models.Conversation{}, ErrConversationNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Message{}, models.Conversation{}, fmt.Errorf("store returned %d", resp.StatusCode)
	}

	var decoded createMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return models.Message{}, models.Conversation{}, fmt.Errorf("decode created message: %w", err)
	}
	return decoded.Message, decoded.Conversation, nil
}

// GetConversation fetches a conversation, primarily for participant checks.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	endpoint := fmt.Sprintf("%s/internal/conversations/%s", c.baseURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("build conversation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.Conversation{}, ErrConversationNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Conversation{}, fmt.Errorf("store returned %d", resp.StatusCode)
	}

	var conv models.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return models.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return conv, nil
}
