package rendezvous

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/util"
)

// Client talks to the rendezvous service. Endpoints are tried in order;
// later entries act as relay fallbacks when earlier ones are unreachable.
type Client struct {
	endpoints []string
	httpc     *http.Client
	logger    zerolog.Logger
}

// NewClient creates a client for the given endpoint list.
func NewClient(endpoints []string) *Client {
	return &Client{
		endpoints: endpoints,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		logger:    util.ComponentLogger("rendezvous-client"),
	}
}

// Register claims id for address with the given TTL.
func (c *Client) Register(ctx context.Context, id, address string, ttl time.Duration) error {
	body := map[string]any{
		"id":      id,
		"address": address,
		"ttl_sec": int(ttl / time.Second),
	}
	_, err := c.do(ctx, http.MethodPost, "/v1/identities", body)
	return err
}

// Heartbeat refreshes a live registration.
func (c *Client) Heartbeat(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/identities/"+id+"/heartbeat", nil)
	return err
}

// Resolve returns the address registered for id.
func (c *Client) Resolve(ctx context.Context, id string) (string, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/v1/identities/"+id, nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse resolve response: %w", err)
	}
	return resp.Address, nil
}

// Unregister releases a registration. Best effort; absent ids succeed.
func (c *Client) Unregister(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/identities/"+id, nil)
	return err
}

// do walks the endpoint list until one answers, then interprets the status.
// Conflict and not-found answers are authoritative and stop the walk;
// network failures and infrastructure faults move on to the next endpoint.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	var (
		lastNetErr error
		lastSrvErr error
	)
	for _, endpoint := range c.endpoints {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("endpoint unreachable, trying next")
			lastNetErr = err
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		if readErr != nil {
			lastNetErr = readErr
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode == http.StatusConflict:
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrTaken)
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
		default:
			c.logger.Debug().
				Int("status", resp.StatusCode).
				Str("endpoint", endpoint).
				Msg("endpoint fault, trying next")
			lastSrvErr = fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrServer)
		}
	}

	if lastSrvErr != nil {
		return nil, lastSrvErr
	}
	if lastNetErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastNetErr)
	}
	return nil, ErrUnavailable
}
