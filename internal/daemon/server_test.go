package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/index"
)

// testSocketPath returns a socket path short enough for sun_path limits.
func testSocketPath(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join("/tmp", fmt.Sprintf("indexq-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { os.Remove(socketPath) })
	return socketPath
}

type fakeHandler struct {
	mu       sync.Mutex
	queued   []QueueParams
	removed  bool
	queueErr error
	awaitErr error
	release  chan struct{}
}

func (f *fakeHandler) Queue(_ context.Context, params QueueParams, remove bool) (QueueResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueErr != nil {
		return QueueResult{}, f.queueErr
	}
	f.queued = append(f.queued, params)
	f.removed = remove
	return QueueResult{Queued: params.Refs}, nil
}

func (f *fakeHandler) snapshot() ([]QueueParams, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]QueueParams(nil), f.queued...), f.removed
}

func (f *fakeHandler) Rebuild(_ context.Context, params RebuildParams) (RebuildResult, error) {
	if params.Scope == "" {
		return RebuildResult{Scopes: []string{"alpha", "beta"}}, nil
	}
	return RebuildResult{Scopes: []string{params.Scope}}, nil
}

func (f *fakeHandler) Search(_ context.Context, params SearchParams) ([]SearchResult, error) {
	return []SearchResult{{Ref: "w:S.D", Title: params.Query, Score: float64(params.Limit)}}, nil
}

func (f *fakeHandler) AwaitEmpty(ctx context.Context) error {
	if f.awaitErr != nil {
		return f.awaitErr
	}
	if f.release == nil {
		return nil
	}
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeHandler) Status() index.Status {
	return index.Status{Backend: "sqlite", Documents: 7}
}

// startServer runs a server until the test ends and returns a client for it.
func startServer(t *testing.T, h Handler, opts ...ServerOption) (*Server, *Client) {
	t.Helper()
	socketPath := testSocketPath(t)
	srv, err := NewServer(socketPath, h, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}
	return srv, NewClient(Config{SocketPath: socketPath, PIDPath: "unused", Timeout: 2 * time.Second})
}

// rawCall sends one request without the client.
func rawCall(t *testing.T, socketPath string, req any) Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(req))
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer("", &fakeHandler{})
	assert.Error(t, err)

	_, err = NewServer("/tmp/x.sock", nil)
	assert.Error(t, err)
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	socketPath := testSocketPath(t)
	srv, err := NewServer(socketPath, &fakeHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	<-srv.Ready()

	_, err = os.Stat(socketPath)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.NoFileExists(t, socketPath, "socket removed on exit")
}

func TestServer_RefusesSocketOfLiveServer(t *testing.T) {
	first, _ := startServer(t, &fakeHandler{})

	second, err := NewServer(first.socketPath, &fakeHandler{})
	require.NoError(t, err)
	err = second.ListenAndServe(context.Background())

	assert.Equal(t, ixerrors.ErrCodeLockHeld, ixerrors.GetCode(err))
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	socketPath := testSocketPath(t)
	require.NoError(t, os.WriteFile(socketPath, nil, 0o600))

	srv, err := NewServer(socketPath, &fakeHandler{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ListenAndServe(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not replace stale socket")
	}
}

func TestServer_ProtocolErrors(t *testing.T) {
	srv, _ := startServer(t, &fakeHandler{})

	tests := []struct {
		name string
		req  any
		code int
	}{
		{"unknown method", Request{JSONRPC: "2.0", Method: "nope", ID: "1"}, ErrCodeMethodNotFound},
		{"wrong version", Request{JSONRPC: "1.0", Method: MethodPing, ID: "1"}, ErrCodeInvalidRequest},
		{"bad params", map[string]any{"jsonrpc": "2.0", "method": MethodSearch, "id": "1", "params": []int{1}}, ErrCodeInvalidParams},
		{"missing query", Request{JSONRPC: "2.0", Method: MethodSearch, ID: "1", Params: json.RawMessage(`{"query":""}`)}, ErrCodeInvalidParams},
		{"missing refs", Request{JSONRPC: "2.0", Method: MethodQueue, ID: "1"}, ErrCodeInvalidParams},
		{"negative wait", Request{JSONRPC: "2.0", Method: MethodAwaitEmpty, ID: "1", Params: json.RawMessage(`{"timeout_ms":-1}`)}, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawCall(t, srv.socketPath, tt.req)

			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "1", resp.ID)
		})
	}
}

func TestServer_MalformedJSON(t *testing.T) {
	srv, _ := startServer(t, &fakeHandler{})

	conn, err := net.Dial("unix", srv.socketPath)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestServer_ServiceErrorsCarryCode(t *testing.T) {
	h := &fakeHandler{queueErr: ixerrors.New(ixerrors.ErrCodeInvalidReference, "invalid reference \":x\"", nil)}
	srv, _ := startServer(t, h)

	resp := rawCall(t, srv.socketPath, Request{
		JSONRPC: "2.0", Method: MethodQueue, ID: "7",
		Params: json.RawMessage(`{"refs":[":x"]}`),
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	assert.Equal(t, ixerrors.ErrCodeInvalidReference, resp.Error.Data)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"timeout", fmt.Errorf("put: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"cancelled", context.Canceled, ErrCodeShuttingDown},
		{"validation", ixerrors.ValidationError("bad", nil), ErrCodeInvalidParams},
		{"engine", ixerrors.EngineError("down", nil), ErrCodeServiceFailed},
		{"plain", errors.New("boom"), ErrCodeServiceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := errorResponse("1", tt.err)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestServer_ConcurrentRequests(t *testing.T) {
	_, client := startServer(t, &fakeHandler{})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Ping(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
