package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"messaging-core/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier validates bearer tokens against the external identity service.
type Verifier interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// Client calls the identity service over HTTP. Token minting lives in the
// auth service; this client only verifies tokens it is handed.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs an identity client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Verify checks the token and returns the authenticated identity.
// Any non-2xx response or malformed body rejects the token.
func (c *Client) Verify(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/verify", nil)
	if err != nil {
		return models.Identity{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Identity{}, fmt.Errorf("identity service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return models.Identity{}, ErrInvalidToken
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Identity{}, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var ident models.Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return models.Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if ident.UserID == 0 {
		return models.Identity{}, ErrInvalidToken
	}
	return ident, nil
}
