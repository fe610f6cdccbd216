package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestTimeout bounds every request except await_empty.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Server listens on a Unix socket and handles one request per connection.
type Server struct {
	socketPath string
	handler    Handler
	timeout    time.Duration
	logger     *slog.Logger
	started    time.Time
	ready      chan struct{}

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for socketPath dispatching to handler.
func NewServer(socketPath string, handler Handler, opts ...ServerOption) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	s := &Server{
		socketPath: socketPath,
		handler:    handler,
		timeout:    30 * time.Second,
		logger:     slog.Default(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAndServe serves until ctx is cancelled, then waits for in-flight
// requests. A socket owned by another live server is an error; a stale one
// is replaced.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if conn, err := net.DialTimeout("unix", s.socketPath, time.Second); err == nil {
		_ = conn.Close()
		return ixerrors.New(ixerrors.ErrCodeLockHeld, fmt.Sprintf("another service is listening on %s", s.socketPath), nil).
			WithSuggestion("Stop the running service or use 'indexq status'")
	}
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("control_socket_listening", slog.String("socket", s.socketPath))
	close(s.ready)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		s.logger.Warn("set_deadline_failed", slog.String("error", err.Error()))
	}

	encoder := json.NewEncoder(conn)
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	start := time.Now()
	resp := s.handleRequest(ctx, req)
	s.logger.Debug("rpc_handled",
		slog.String("method", req.Method),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("ok", resp.Error == nil))

	_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))
	_ = encoder.Encode(resp)
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status())
	case MethodQueue, MethodQueueDelete:
		return s.handleQueue(ctx, req)
	case MethodRebuild:
		return s.handleRebuild(ctx, req)
	case MethodSearch:
		return s.handleSearch(ctx, req)
	case MethodAwaitEmpty:
		return s.handleAwaitEmpty(ctx, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleQueue(ctx context.Context, req Request) Response {
	var params QueueParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.handler.Queue(ctx, params, req.Method == MethodQueueDelete)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, result)
}

func (s *Server) handleRebuild(ctx context.Context, req Request) Response {
	var params RebuildParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.handler.Rebuild(ctx, params)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, result)
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	results, err := s.handler.Search(ctx, params)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, results)
}

func (s *Server) handleAwaitEmpty(ctx context.Context, req Request) Response {
	var params AwaitEmptyParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}
	if params.TimeoutMs < 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "timeout_ms must not be negative")
	}

	if params.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	if err := s.handler.AwaitEmpty(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewSuccessResponse(req.ID, AwaitEmptyResult{Empty: false})
		}
		return errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, AwaitEmptyResult{Empty: true})
}

func (s *Server) status() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	return StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
		Service: s.handler.Status(),
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// decodeParams unmarshals req.Params into v. Absent params leave v zero.
func decodeParams(req Request, v any) (Response, bool) {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return Response{}, true
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, fmt.Sprintf("failed to decode params: %v", err)), false
	}
	return Response{}, true
}

// errorResponse maps a service error onto a JSON-RPC error.
func errorResponse(id string, err error) Response {
	code := ErrCodeServiceFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		code = ErrCodeShuttingDown
	case ixerrors.GetCategory(err) == ixerrors.CategoryValidation:
		code = ErrCodeInvalidParams
	}

	resp := NewErrorResponse(id, code, err.Error())
	if ie, ok := ixerrors.As(err); ok {
		resp.Error.Message = ie.Message
		resp.Error.Data = ie.Code
	}
	return resp
}
