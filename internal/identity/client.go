// Package identity provides a thin client for the hosted identity provider's
// REST surface: password sign-in, signup, logout, password recovery, and
// user lookup by access token.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable wraps transport failures and provider 5xx responses.
var ErrUnavailable = errors.New("identity: provider unavailable")

// User mirrors the provider's user record.
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Metadata  map[string]any `json:"user_metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// FullName extracts the display name from the user metadata, if present.
func (u User) FullName() string {
	if u.Metadata == nil {
		return ""
	}
	if name, ok := u.Metadata["full_name"].(string); ok {
		return strings.TrimSpace(name)
	}
	return ""
}

// TokenPair holds the credentials returned by a successful sign-in.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// APIError carries the provider's structured error response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("identity: %s (status %d)", e.Message, e.Status)
}

// Client talks to the identity provider over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient constructs a Client for the given provider endpoint.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity: base url is required")
	}

	client := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SignInWithPassword exchanges email/password credentials for a token pair.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (TokenPair, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var pair TokenPair
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// SignUp registers a new user with the given metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var user User
	if err := c.do(ctx, http.MethodPost, "/signup", "", body, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// SignOut revokes the session associated with the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// SendPasswordReset asks the provider to mail a recovery link.
func (c *Client) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// GetUser resolves the user record behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}

	var payload struct {
		Code             string `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apiErr
	}

	if payload.Code != "" {
		apiErr.Code = payload.Code
	} else if payload.Error != "" {
		apiErr.Code = payload.Error
	}
	switch {
	case payload.Msg != "":
		apiErr.Message = payload.Msg
	case payload.ErrorDescription != "":
		apiErr.Message = payload.ErrorDescription
	case payload.Message != "":
		apiErr.Message = payload.Message
	}
	return apiErr
}
