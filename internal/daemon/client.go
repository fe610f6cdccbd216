package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
)

// Client talks to a running service over its control socket. Each call
// opens its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new control-plane client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the service.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeDaemonUnavailable, "failed to connect to indexq service", err).
			WithSuggestion("Start the service with 'indexq run'")
	}
	return conn, nil
}

// IsRunning checks if the service is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the service is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var result PingResult
	return c.call(ctx, MethodPing, nil, &result, true)
}

// Status retrieves service status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status, true); err != nil {
		return nil, err
	}
	return &status, nil
}

// Queue asks the service to index refs. It waits while the service queue is
// full, up to the client timeout.
func (c *Client) Queue(ctx context.Context, params QueueParams) (*QueueResult, error) {
	return c.queue(ctx, MethodQueue, params)
}

// QueueDelete asks the service to remove refs from the index.
func (c *Client) QueueDelete(ctx context.Context, params QueueParams) (*QueueResult, error) {
	return c.queue(ctx, MethodQueueDelete, params)
}

func (c *Client) queue(ctx context.Context, method string, params QueueParams) (*QueueResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var result QueueResult
	if err := c.call(ctx, method, params, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// Rebuild starts a rebuild of params.Scope, or of every wiki.
func (c *Client) Rebuild(ctx context.Context, params RebuildParams) (*RebuildResult, error) {
	var result RebuildResult
	if err := c.call(ctx, MethodRebuild, params, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search sends a search request to the service.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var results []SearchResult
	if err := c.call(ctx, MethodSearch, params, &results, true); err != nil {
		return nil, err
	}
	return results, nil
}

// AwaitEmpty waits until the service queue drains or timeout passes. A zero
// timeout waits for as long as ctx allows. It reports whether the queue
// drained.
func (c *Client) AwaitEmpty(ctx context.Context, timeout time.Duration) (bool, error) {
	params := AwaitEmptyParams{TimeoutMs: timeout.Milliseconds()}
	var result AwaitEmptyResult
	if err := c.call(ctx, MethodAwaitEmpty, params, &result, false); err != nil {
		return false, err
	}
	return result.Empty, nil
}

// call performs one request. Bounded calls also honour the client timeout;
// unbounded ones only the ctx deadline.
func (c *Client) call(ctx context.Context, method string, params, out any, bounded bool) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	var deadline time.Time
	if bounded {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock the read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      c.nextID(),
	}
	if params != nil {
		if req.Params, err = json.Marshal(params); err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ixerrors.New(ixerrors.ErrCodeDaemonTimeout, fmt.Sprintf("%s timed out", method), err)
		}
		return fmt.Errorf("failed to receive response: %w", err)
	}

	if resp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
