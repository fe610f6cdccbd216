package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/job"
)

const (
	// TextTokenizerName is the registered name of the Tokenize adapter.
	TextTokenizerName = "indexq_text"

	// TextAnalyzerName is the analyzer used for title and body.
	TextAnalyzerName = "indexq_text_analyzer"

	// scopeDeletePage bounds how many IDs one scope deletion batch holds.
	scopeDeletePage = 500
)

func init() {
	registry.RegisterTokenizer(TextTokenizerName, textTokenizerConstructor)
}

// BleveEngine implements Engine on Bleve v2.
type BleveEngine struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ Engine = (*BleveEngine)(nil)

// bleveDocument is what gets indexed. ID parts are keywords so scopes can be
// selected with term queries.
type bleveDocument struct {
	Wiki       string `json:"wiki"`
	Space      string `json:"space"`
	Doc        string `json:"doc"`
	Lang       string `json:"lang"`
	Attachment string `json:"attachment"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// validateIndexIntegrity checks an existing index directory before opening.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error from bleve.Open indicates a damaged index.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveEngine opens or creates the index at path. An empty path creates an
// in-memory index. A corrupted index is cleared and recreated.
func NewBleveEngine(path string) (*BleveEngine, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, ixerrors.InternalError("failed to create index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, ixerrors.New(ixerrors.ErrCodeFilePermission, fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("bleve_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, ixerrors.New(ixerrors.ErrCodeCorruptIndex,
					fmt.Sprintf("index corrupted at %s and cannot be removed (original error: %v)", path, validErr), removeErr)
			}
			slog.Info("bleve_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("bleve_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, ixerrors.New(ixerrors.ErrCodeCorruptIndex, "index corrupted and cannot be cleared", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, ixerrors.EngineError("failed to create or open index", err)
	}

	return &BleveEngine{index: idx, path: path}, nil
}

// createIndexMapping maps ID parts as keywords and title/body through the
// shared text tokenizer, so both backends agree on what a term is.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TextTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = TextAnalyzerName

	docMapping := bleve.NewDocumentMapping()
	for _, field := range []string{"wiki", "space", "doc", "lang", "attachment"} {
		docMapping.AddFieldMappingsAt(field, bleve.NewKeywordFieldMapping())
	}

	title := bleve.NewTextFieldMapping()
	title.Analyzer = TextAnalyzerName
	docMapping.AddFieldMappingsAt("title", title)

	body := bleve.NewTextFieldMapping()
	body.Analyzer = TextAnalyzerName
	body.Store = false
	docMapping.AddFieldMappingsAt("body", body)

	indexMapping.DefaultMapping = docMapping
	return indexMapping, nil
}

// Index adds or replaces documents in one batch.
func (b *BleveEngine) Index(ctx context.Context, docs ...*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		id := doc.ID
		bd := bleveDocument{
			Wiki:       id.Wiki,
			Space:      id.Space,
			Doc:        id.Doc,
			Lang:       id.Lang,
			Attachment: id.Attachment,
			Title:      doc.Title,
			Body:       doc.Body,
		}
		if err := batch.Index(id.String(), bd); err != nil {
			return ixerrors.EngineError(fmt.Sprintf("failed to index document %s", id), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return ixerrors.EngineError("failed to execute batch", err)
	}
	return nil
}

// Delete removes one document.
func (b *BleveEngine) Delete(ctx context.Context, id job.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.index.Delete(id.String()); err != nil {
		return ixerrors.EngineError(fmt.Sprintf("failed to delete document %s", id), err)
	}
	return nil
}

// DeleteScope pages through the documents matching every set ID part and
// deletes them batch by batch.
func (b *BleveEngine) DeleteScope(ctx context.Context, scope job.ID) error {
	fields := scopeFields(scope)
	conjuncts := make([]query.Query, len(fields))
	for i, f := range fields {
		tq := bleve.NewTermQuery(f[1])
		tq.SetField(f[0])
		conjuncts[i] = tq
	}
	q := bleve.NewConjunctionQuery(conjuncts...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for {
		req := bleve.NewSearchRequestOptions(q, scopeDeletePage, 0, false)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return ixerrors.EngineError(fmt.Sprintf("failed to select scope %s", scope), err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return ixerrors.EngineError(fmt.Sprintf("failed to delete scope %s", scope), err)
		}
	}
}

// Search matches all query terms in the title or the body. Title matches are
// boosted.
func (b *BleveEngine) Search(ctx context.Context, queryStr string, limit int) ([]*Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	if len(Terms(queryStr)) == 0 {
		return []*Hit{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	inTitle := bleve.NewMatchQuery(queryStr)
	inTitle.SetField("title")
	inTitle.SetOperator(query.MatchQueryOperatorAnd)
	inTitle.SetBoost(2.0)

	inBody := bleve.NewMatchQuery(queryStr)
	inBody.SetField("body")
	inBody.SetOperator(query.MatchQueryOperatorAnd)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(inTitle, inBody))
	req.Size = limit
	req.Fields = []string{"title"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeSearchFailed, "search failed", err)
	}

	hits := make([]*Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := job.ParseID(h.ID)
		if err != nil {
			slog.Warn("bleve_index_bad_ref", slog.String("ref", h.ID), slog.String("error", err.Error()))
			continue
		}
		title, _ := h.Fields["title"].(string)
		hits = append(hits, &Hit{ID: id, Ref: h.ID, Title: title, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (b *BleveEngine) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, ixerrors.EngineError("failed to count documents", err)
	}
	return int(n), nil
}

// Backend returns BackendBleve.
func (b *BleveEngine) Backend() Backend {
	return BackendBleve
}

// Close closes the index. It is idempotent.
func (b *BleveEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func textTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return textTokenizer{}, nil
}

// textTokenizer adapts Tokenize to bleve's analysis pipeline.
type textTokenizer struct{}

func (textTokenizer) Tokenize(input []byte) analysis.TokenStream {
	tokens := Tokenize(string(input))
	stream := make(analysis.TokenStream, 0, len(tokens))
	for i, t := range tokens {
		stream = append(stream, &analysis.Token{
			Term:     []byte(t.Term),
			Start:    t.Start,
			End:      t.End,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}
