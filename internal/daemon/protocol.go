package daemon

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aman-CERP/indexq/internal/index"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing        = "ping"
	MethodStatus      = "status"
	MethodQueue       = "queue"
	MethodQueueDelete = "queue_delete"
	MethodRebuild     = "rebuild"
	MethodSearch      = "search"
	MethodAwaitEmpty  = "await_empty"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for service errors.
const (
	ErrCodeServiceFailed = -32001
	ErrCodeTimeout       = -32002
	ErrCodeShuttingDown  = -32003
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error. Data carries the indexq error code
// when the failure came from the service.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Data)
	}
	return e.Message
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, fmt.Sprintf("failed to encode result: %v", err))
	}
	return Response{
		JSONRPC: "2.0",
		Result:  data,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// QueueParams are the parameters for queue and queue_delete.
type QueueParams struct {
	// Refs are job references such as "main:Dev.Install" (required).
	Refs []string `json:"refs"`

	// Priority names the priority level. Empty means the service default.
	Priority string `json:"priority,omitempty"`
}

// Validate checks that required fields are present.
func (p *QueueParams) Validate() error {
	if len(p.Refs) == 0 {
		return fmt.Errorf("refs is required")
	}
	for _, ref := range p.Refs {
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("refs must not contain empty references")
		}
	}
	return nil
}

// QueueResult lists the canonical references that were queued.
type QueueResult struct {
	Queued []string `json:"queued"`
}

// RebuildParams are the parameters for rebuild.
type RebuildParams struct {
	// Scope is the reference to rebuild. Empty rebuilds every wiki.
	Scope string `json:"scope,omitempty"`

	// Priority overrides the rebuild priority (low).
	Priority string `json:"priority,omitempty"`
}

// RebuildResult lists the scopes that were queued.
type RebuildResult struct {
	Scopes []string `json:"scopes"`
}

// SearchParams are the parameters for search.
type SearchParams struct {
	// Query is the search query (required).
	Query string `json:"query"`

	// Limit is the maximum number of results (default: 10).
	Limit int `json:"limit,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	// Correct negative limit to default
	if p.Limit <= 0 {
		p.Limit = 10
	}
	return nil
}

// SearchResult represents a single search hit.
type SearchResult struct {
	Ref   string  `json:"ref"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// AwaitEmptyParams are the parameters for await_empty.
type AwaitEmptyParams struct {
	// TimeoutMs bounds the wait. Zero waits until the queue drains or the
	// service stops.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// AwaitEmptyResult reports whether the queue was drained.
type AwaitEmptyResult struct {
	Empty bool `json:"empty"`
}

// StatusResult contains service status information.
type StatusResult struct {
	Running bool         `json:"running"`
	PID     int          `json:"pid"`
	Uptime  string       `json:"uptime"`
	Service index.Status `json:"service"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
