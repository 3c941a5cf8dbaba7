// Package peers implements the request/reply clients for the services the
// resource manager depends on: the model manager, the digital twin, the
// request coordinator and the model evaluation service. Every call is a JSON
// envelope POSTed with a bounded timeout; on transport failure the client
// resets its connections so the next call starts from a fresh socket.
package peers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultCallTimeout = 5 * time.Second

// Envelope is the wire request: an action discriminator plus free-form params.
type Envelope struct {
	RequestID string         `json:"request_id"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
}

// Reply is the wire response. Status is "success" or "error".
type Reply struct {
	RequestID string          `json:"request_id,omitempty"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// remoteError is returned when the peer answered with status "error".
type remoteError struct {
	peer string
	msg  string
}

func (e remoteError) Error() string { return e.peer + ": " + e.msg }

// IsRemoteError reports whether err is a peer-side rejection rather than a
// transport failure. Remote errors do not trigger a socket reset.
func IsRemoteError(err error) bool {
	_, ok := err.(remoteError)
	return ok
}

// Client is a single-peer request/reply client.
type Client struct {
	name    string
	url     string
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	http *http.Client
}

// NewClient builds a client for one peer endpoint. A non-positive timeout
// falls back to the 5s default.
func NewClient(name, url string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		name:    name,
		url:     url,
		timeout: timeout,
		log:     log.With().Str("peer", name).Logger(),
		http:    &http.Client{Timeout: timeout},
	}
}

// Name returns the peer name used in health reports.
func (c *Client) Name() string { return c.name }

// Call issues one request/reply exchange. When out is non-nil the success
// payload is decoded into it. Transport failures reset the underlying
// connections before returning so the next call reconnects.
func (c *Client) Call(ctx context.Context, action string, params map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(Envelope{
		RequestID: uuid.NewString(),
		Action:    action,
		Params:    params,
	})
	if err != nil {
		return fmt.Errorf("%s: encode %s: %w", c.name, action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build %s: %w", c.name, action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	hc := c.http
	c.mu.Unlock()

	resp, err := hc.Do(req)
	if err != nil {
		c.log.Warn().Str("action", action).Err(err).Msg("peer call failed, resetting connection")
		c.Reset()
		return fmt.Errorf("%s: %s: %w", c.name, action, err)
	}
	defer resp.Body.Close()

	var rep Reply
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		c.Reset()
		return fmt.Errorf("%s: decode %s reply: %w", c.name, action, err)
	}
	if rep.Status != "success" {
		msg := rep.Error
		if msg == "" {
			msg = "request failed"
		}
		return remoteError{peer: c.name, msg: msg}
	}
	if out != nil && len(rep.Payload) > 0 {
		if err := json.Unmarshal(rep.Payload, out); err != nil {
			return fmt.Errorf("%s: decode %s payload: %w", c.name, action, err)
		}
	}
	return nil
}

// Ping checks reachability with a minimal exchange.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, "ping", nil, nil)
}

// Reset drops pooled connections and installs a fresh transport so the next
// call dials anew. Safe to call concurrently with in-flight requests.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.http.CloseIdleConnections()
	c.http = &http.Client{Timeout: c.timeout}
}
