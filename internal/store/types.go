// Package store holds the persistent side of indexing: the full-text engine
// documents are written to, and the state store remembering what was indexed.
package store

import (
	"context"

	"github.com/Aman-CERP/indexq/internal/job"
)

// Document is the indexable form of a content item.
type Document struct {
	ID    job.ID
	Title string
	Body  string
}

// Hit is a single search result.
type Hit struct {
	ID    job.ID  `json:"id"`
	Ref   string  `json:"ref"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Engine is a full-text index over documents. Implementations are safe for
// concurrent use.
type Engine interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, docs ...*Document) error

	// Delete removes the document with exactly this ID.
	Delete(ctx context.Context, id job.ID) error

	// DeleteScope removes every document the scope contains: all of a wiki,
	// all of a space, or a document with its translations and attachments.
	DeleteScope(ctx context.Context, scope job.ID) error

	// Search returns up to limit documents matching query, best first.
	Search(ctx context.Context, query string, limit int) ([]*Hit, error)

	// Count returns the number of indexed documents.
	Count() (int, error)

	// Backend names the implementation.
	Backend() Backend

	Close() error
}

// Backend selects an Engine implementation.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 with BM25 ranking (default). WAL mode
	// lets the CLI read while the service writes.
	BackendSQLite Backend = "sqlite"

	// BackendBleve uses Bleve v2. Its BoltDB store holds an exclusive lock,
	// so only one process can open it.
	BackendBleve Backend = "bleve"
)

// DefaultSearchLimit is used when a caller passes a non-positive limit.
const DefaultSearchLimit = 10

// scopeFields lists the ID fields that are set, from the outside in. Both
// backends select a scope by requiring each of them to match.
func scopeFields(scope job.ID) [][2]string {
	fields := [][2]string{{"wiki", scope.Wiki}}
	for _, f := range [][2]string{
		{"space", scope.Space},
		{"doc", scope.Doc},
		{"lang", scope.Lang},
		{"attachment", scope.Attachment},
	} {
		if f[1] != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
