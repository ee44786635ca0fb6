package control

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

	"shuttle/internal/daemon"
	"shuttle/internal/status"
)

// ErrUnauthorized is returned when the daemon rejects the secret or
// session key.
var ErrUnauthorized = errors.New("daemon rejected credentials")

// Client talks to a running shuttle daemon over its control API. Open a
// session first; state and command calls reuse its key.
type Client struct {
	base    string
	secret  string
	session string
	http    *http.Client
}

// New returns a client for the daemon at addr ("host:port" or a full URL).
func New(addr, secret string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base:   base,
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Connect opens an observer session with the daemon.
func (c *Client) Connect(ctx context.Context, clientName string) error {
	resp, err := c.do(ctx, http.MethodPost, "/ui/init", daemon.InitRequest{
		Secret:     c.secret,
		ClientName: clientName,
	})
	if err != nil {
		return err
	}
	var init daemon.InitResponse
	if err := json.Unmarshal(resp, &init); err != nil {
		return fmt.Errorf("decode init response: %w", err)
	}
	c.session = init.SessionKey
	return nil
}

// State fetches the current engine snapshot.
func (c *Client) State(ctx context.Context) (status.Snapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, "/ui/state", nil)
	if err != nil {
		return status.Snapshot{}, err
	}
	return status.DecodeSnapshot(resp)
}

// StartUploading opens the upload gate.
func (c *Client) StartUploading(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/ui/commands/uploading/start", nil)
	return err
}

// StopUploading closes the upload gate.
func (c *Client) StopUploading(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/ui/commands/uploading/stop", nil)
	return err
}

// AddWorkers asks the daemon for n more workers and reports how many were
// actually added.
func (c *Client) AddWorkers(ctx context.Context, n int) (int, string, error) {
	return c.workerCommand(ctx, "add", n)
}

// RemoveWorkers retires up to n workers.
func (c *Client) RemoveWorkers(ctx context.Context, n int) (int, string, error) {
	return c.workerCommand(ctx, "remove", n)
}

func (c *Client) workerCommand(ctx context.Context, action string, n int) (int, string, error) {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/ui/commands/workers/%s/%d", action, n), nil)
	if err != nil {
		return 0, "", err
	}
	var cmd daemon.CommandResponse
	if err := json.Unmarshal(resp, &cmd); err != nil {
		return 0, "", fmt.Errorf("decode command response: %w", err)
	}
	return cmd.Applied, cmd.Detail, nil
}

// StopServer asks the daemon to shut down.
func (c *Client) StopServer(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/ui/commands/server/stop", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set(daemon.SessionKeyHeader, c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, errors.New(apiErr.Error)
		}
		return nil, fmt.Errorf("daemon returned %s", resp.Status)
	}
	return data, nil
}
