package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fakeyudi/motionwatch/internal/events"
)

// ErrUnreachable is returned when no daemon answers at the control address.
var ErrUnreachable = errors.New("control: daemon is not reachable")

// Client talks to a Server.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
}

// NewClient returns a client for the daemon listening on addr, given either
// as host:port or as an http:// URL.
func NewClient(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid control address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid control address %q: scheme must be http or https", addr)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid control address %q: missing host", addr)
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Start asks the daemon to resume capturing.
func (c *Client) Start(ctx context.Context) (CommandResponse, error) {
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, "/v1/camera/start", http.StatusAccepted, &resp)
	return resp, err
}

// Stop asks the daemon to pause capturing. The live recording is flushed.
func (c *Client) Stop(ctx context.Context) (CommandResponse, error) {
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, "/v1/camera/stop", http.StatusAccepted, &resp)
	return resp, err
}

// Status fetches the daemon's status snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", http.StatusOK, &resp)
	return resp, err
}

// Health reports whether the daemon answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	if err := c.do(ctx, http.MethodGet, "/healthz", http.StatusOK, &resp); err != nil {
		return err
	}
	if resp["status"] != "ok" {
		return fmt.Errorf("daemon reports status %q", resp["status"])
	}
	return nil
}

// Events opens the daemon's event stream. The returned channel is closed
// when ctx is cancelled or the connection ends. kinds optionally limits the
// stream to the named event kinds.
func (c *Client) Events(ctx context.Context, kinds ...events.Kind) (<-chan events.Event, error) {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/events"
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = k.String()
		}
		u.RawQuery = url.Values{"kind": {strings.Join(names, ",")}}.Encode()
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("event stream refused: %s", resp.Status)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	out := make(chan events.Event)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, want int, out any) error {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
