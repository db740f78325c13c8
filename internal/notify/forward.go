package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/unclebandit/warmup-engine/internal/queue"
)

// Forwarder relays queued events to an operator webhook. Handle fits the
// queue.Queue handler signature, so it can consume from either queue.
type Forwarder struct {
	URL    string
	Client *http.Client
}

func NewForwarder(url string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Forwarder{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Handle posts payload as JSON. Any answer outside 2xx is an error so the
// queue retries or requeues the delivery.
func (f *Forwarder) Handle(payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	resp, err := f.Client.Post(f.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("forward event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forward event: webhook answered %d", resp.StatusCode)
	}
	return nil
}

// SubscribeAll attaches handler to the topic of every event type.
func SubscribeAll(q queue.Queue, handler func(payload any) error) error {
	for _, typ := range EventTypes {
		if err := q.Subscribe(Topic(typ), handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", Topic(typ), err)
		}
	}
	return nil
}
