// Package commerce talks to the remote WooGraphQL endpoint. Every payload is
// decoded into explicit types and validated here before it reaches a view.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultEndpoint = "https://shop.sharifulbuilds.com/graphql"

	// SessionHeader carries the remote cart session in both directions.
	SessionHeader = "woocommerce-session"
)

type Log interface {
	Debug(string, ...zap.Field)
	Warn(string, ...zap.Field)
}

// Error is returned when the endpoint answers with GraphQL errors or a failing status.
type Error struct {
	Status   int
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("commerce api returned status %d", e.Status)
	}
	return strings.Join(e.Messages, "; ")
}

// UserMessage returns what the API said about err, or fallback when it said nothing.
func UserMessage(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && len(apiErr.Messages) > 0 {
		return apiErr.Error()
	}
	return fallback
}

// Client is safe for concurrent use. Requests carry no session until bound with Session.
type Client struct {
	endpoint string
	http     *http.Client
	log      Log
}

func NewClient(endpoint string, timeout time.Duration, log Log) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Session binds the client to a token store so the remote cart follows the visitor.
func (c *Client) Session(tokens TokenStore) *Session {
	if tokens == nil {
		tokens = &MemoryTokens{}
	}
	return &Session{client: c, tokens: tokens}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// do posts one operation and decodes data into out. Absent data leaves out untouched.
func (c *Client) do(ctx context.Context, tokens TokenStore, op, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := tokens.Token(); tok != "" {
		req.Header.Set(SessionHeader, "Session "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if tok := resp.Header.Get(SessionHeader); tok != "" {
		tokens.SetToken(tok)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}
	c.log.Debug("commerce call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	var envelope gqlResponse
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Messages = messages(envelope.Errors)
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, decodeErr)
	}
	if len(envelope.Errors) > 0 {
		c.log.Warn("commerce api errors", zap.String("op", op), zap.Strings("messages", messages(envelope.Errors)))
		return &Error{Status: resp.StatusCode, Messages: messages(envelope.Errors)}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", op, err)
	}
	return nil
}

func messages(errs []gqlError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Message != "" {
			out = append(out, e.Message)
		}
	}
	return out
}
