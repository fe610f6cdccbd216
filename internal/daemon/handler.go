package daemon

import (
	"context"
	"fmt"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/index"
	"github.com/Aman-CERP/indexq/internal/job"
)

// Handler serves the service methods of the control plane.
type Handler interface {
	Queue(ctx context.Context, params QueueParams, remove bool) (QueueResult, error)
	Rebuild(ctx context.Context, params RebuildParams) (RebuildResult, error)
	Search(ctx context.Context, params SearchParams) ([]SearchResult, error)
	AwaitEmpty(ctx context.Context) error
	Status() index.Status
}

// ServiceHandler adapts an index.Service to Handler.
type ServiceHandler struct {
	svc *index.Service
}

// NewServiceHandler creates a handler backed by svc.
func NewServiceHandler(svc *index.Service) *ServiceHandler {
	return &ServiceHandler{svc: svc}
}

// Queue parses every reference before queueing any, so a bad reference
// queues nothing. Queueing may block while the queue is full.
func (h *ServiceHandler) Queue(ctx context.Context, params QueueParams, remove bool) (QueueResult, error) {
	opts, err := priorityOption(params.Priority)
	if err != nil {
		return QueueResult{}, err
	}

	ids := make([]job.ID, 0, len(params.Refs))
	for _, ref := range params.Refs {
		id, err := index.ParseRef(ref)
		if err != nil {
			return QueueResult{}, err
		}
		ids = append(ids, id)
	}

	result := QueueResult{Queued: make([]string, 0, len(ids))}
	for _, id := range ids {
		if remove {
			err = h.svc.QueueDelete(ctx, id, opts...)
		} else {
			err = h.svc.Queue(ctx, id, opts...)
		}
		if err != nil {
			return result, err
		}
		result.Queued = append(result.Queued, id.String())
	}
	return result, nil
}

// Rebuild queues a rebuild of params.Scope, or of every wiki.
func (h *ServiceHandler) Rebuild(ctx context.Context, params RebuildParams) (RebuildResult, error) {
	opts, err := priorityOption(params.Priority)
	if err != nil {
		return RebuildResult{}, err
	}

	var scope job.ID
	if params.Scope != "" {
		if scope, err = index.ParseRef(params.Scope); err != nil {
			return RebuildResult{}, err
		}
	}

	scopes, err := h.svc.Rebuild(ctx, scope, opts...)
	if err != nil {
		return RebuildResult{}, err
	}
	result := RebuildResult{Scopes: make([]string, len(scopes))}
	for i, s := range scopes {
		result.Scopes[i] = s.String()
	}
	return result, nil
}

// Search runs a query against the engine.
func (h *ServiceHandler) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	hits, err := h.svc.Search(ctx, params.Query, params.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{Ref: hit.Ref, Title: hit.Title, Score: hit.Score}
	}
	return results, nil
}

// AwaitEmpty blocks until the queue drains.
func (h *ServiceHandler) AwaitEmpty(ctx context.Context) error {
	return h.svc.AwaitEmpty(ctx)
}

// Status reports the service state.
func (h *ServiceHandler) Status() index.Status {
	return h.svc.Status()
}

func priorityOption(name string) ([]index.QueueOption, error) {
	if name == "" {
		return nil, nil
	}
	p, err := job.ParsePriority(name)
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeInvalidPriority, fmt.Sprintf("invalid priority %q", name), err).
			WithSuggestion("Use one of lowest, low, default, high, highest")
	}
	return []index.QueueOption{index.WithPriority(p)}, nil
}
