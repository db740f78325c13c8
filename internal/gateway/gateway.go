// Package gateway talks to the messaging transport that owns paired sessions.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Message is one outbound message. Target is a phone number for contacts or
// a session phone for internal conversations.
type Message struct {
	SessionID   string `json:"-"`
	Target      string `json:"to"`
	Content     string `json:"content"`
	MessageType string `json:"type"`
	MediaRef    string `json:"media,omitempty"`
}

type Gateway interface {
	// Send hands the message to the transport and returns its receipt id.
	Send(ctx context.Context, m Message) (string, error)
	// Status reports the connection status of a session, e.g. "CONNECTED".
	Status(ctx context.Context, sessionID string) (string, error)
	MarkRead(ctx context.Context, sessionID, chatID string) error
	// ActiveChats lists chats with unread messages.
	ActiveChats(ctx context.Context, sessionID string) ([]string, error)
}

// HTTPGateway is a JSON-over-HTTP client for the transport service.
type HTTPGateway struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPGateway(baseURL, token string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Send(ctx context.Context, m Message) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, g.sessionPath(m.SessionID, "messages"), m, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *HTTPGateway) Status(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, g.sessionPath(sessionID, "status"), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (g *HTTPGateway) MarkRead(ctx context.Context, sessionID, chatID string) error {
	return g.do(ctx, http.MethodPost, g.sessionPath(sessionID, "chats", chatID, "read"), nil, nil)
}

func (g *HTTPGateway) ActiveChats(ctx context.Context, sessionID string) ([]string, error) {
	var out struct {
		Chats []struct {
			ID string `json:"id"`
		} `json:"chats"`
	}
	if err := g.do(ctx, http.MethodGet, g.sessionPath(sessionID, "chats")+"?unread=true", nil, &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Chats))
	for _, c := range out.Chats {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (g *HTTPGateway) sessionPath(sessionID string, parts ...string) string {
	p := "/sessions/" + url.PathEscape(sessionID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, body)
	if err != nil {
		return err
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
