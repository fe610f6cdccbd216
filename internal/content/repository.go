// Package content reads documents and attachments from a directory tree laid
// out as <root>/<wiki>/<space>/<doc>.md. Translations live next to their
// document as <doc>.<lang>.md and attachments under <root>/<wiki>/<space>/<doc>/.
//
// Only the configured languages (DefaultLanguages unless set with
// WithLanguages) and their regional variants such as de_CH count as
// translation suffixes, so Setup.js.md is the document "Setup.js". A document
// whose own name ends in a configured language, such as "Notes.de" with "de"
// configured, cannot be stored: its file reads as the "de" translation of
// "Notes".
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/indexq/internal/job"
)

// DocExt is the file extension of documents.
const DocExt = ".md"

// DefaultCacheSize is the number of loaded documents kept in memory.
const DefaultCacheSize = 512

// MaxAttachmentBytes caps how much of an attachment is read for indexing.
const MaxAttachmentBytes = 8 << 20

var (
	// ErrNotFound is returned when the content for an ID does not exist.
	ErrNotFound = errors.New("content not found")
	// ErrNotContent is returned for paths outside the repository layout.
	ErrNotContent = errors.New("path is not repository content")
)

// DefaultLanguages are the translation suffixes recognised when none are
// configured.
var DefaultLanguages = []string{"de", "en", "es", "fr", "it", "nl", "pt"}

var langSuffix = regexp.MustCompile(`^(.+)\.([a-z]{2}(?:[-_][A-Za-z]{2,4})?)$`)

// textAttachments are indexed by content; other attachments by name only.
var textAttachments = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true,
	".html": true, ".htm": true, ".xml": true, ".yaml": true, ".yml": true,
}

// Document is a loaded content unit ready for indexing.
type Document struct {
	ID      job.ID
	Path    string
	Title   string
	Body    string
	Size    int64
	ModTime time.Time
	// Hash is the hex SHA-256 of the raw file.
	Hash string
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	doc     *Document
}

// Repository is a filesystem-backed content store.
type Repository struct {
	root      string
	cache     *lru.Cache[string, cacheEntry]
	languages map[string]bool
}

// Option configures a Repository.
type Option func(*Repository)

// WithLanguages sets the language codes read as translation suffixes.
// Codes are matched case-insensitively; an empty list disables translations.
func WithLanguages(langs ...string) Option {
	return func(r *Repository) {
		r.languages = languageSet(langs)
	}
}

func languageSet(langs []string) map[string]bool {
	set := make(map[string]bool, len(langs))
	for _, l := range langs {
		if l = strings.TrimSpace(l); l != "" {
			set[strings.ToLower(l)] = true
		}
	}
	return set
}

// isLanguage reports whether code is configured, either itself or through
// its base language ("de_CH" through "de").
func (r *Repository) isLanguage(code string) bool {
	code = strings.ToLower(code)
	if r.languages[code] {
		return true
	}
	base, _, _ := strings.Cut(strings.ReplaceAll(code, "_", "-"), "-")
	return r.languages[base]
}

// NewRepository opens the repository rooted at root.
func NewRepository(root string, cacheSize int, opts ...Option) (*Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content root: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create content cache: %w", err)
	}
	r := &Repository{root: abs, cache: cache, languages: languageSet(DefaultLanguages)}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the absolute repository root.
func (r *Repository) Root() string {
	return r.root
}

// Resolve maps a path inside the repository to the ID it stores. Wiki and
// space directories resolve to scope IDs.
func (r *Repository) Resolve(path string) (job.ID, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return job.ID{}, ErrNotContent
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if p == "" || strings.HasPrefix(p, ".") {
			return job.ID{}, ErrNotContent
		}
	}

	switch len(parts) {
	case 1:
		return job.WikiID(parts[0]), nil
	case 2:
		return job.SpaceID(parts[0], parts[1]), nil
	case 3:
		name, ok := strings.CutSuffix(parts[2], DocExt)
		if !ok || name == "" {
			return job.ID{}, ErrNotContent
		}
		id := job.DocID(parts[0], parts[1], name)
		if m := langSuffix.FindStringSubmatch(name); m != nil && r.isLanguage(m[2]) {
			id = job.DocID(parts[0], parts[1], m[1]).WithLang(m[2])
		}
		return id, nil
	case 4:
		return job.AttachmentID(parts[0], parts[1], parts[2], parts[3]), nil
	default:
		return job.ID{}, ErrNotContent
	}
}

// PathOf is the inverse of Resolve.
func (r *Repository) PathOf(id job.ID) string {
	switch id.Kind() {
	case job.KindWiki:
		return filepath.Join(r.root, id.Wiki)
	case job.KindSpace:
		return filepath.Join(r.root, id.Wiki, id.Space)
	case job.KindAttachment:
		return filepath.Join(r.root, id.Wiki, id.Space, id.Doc, id.Attachment)
	case job.KindDocument:
		name := id.Doc
		if id.Lang != "" {
			name += "." + id.Lang
		}
		return filepath.Join(r.root, id.Wiki, id.Space, name+DocExt)
	default:
		return r.root
	}
}

// Load reads the document or attachment named by id. Unchanged files are
// served from the cache.
func (r *Repository) Load(ctx context.Context, id job.ID) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k := id.Kind(); k != job.KindDocument && k != job.KindAttachment {
		return nil, fmt.Errorf("cannot load %s %s: %w", k, id, ErrNotContent)
	}

	path := r.PathOf(id)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.cache.Remove(path)
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, ErrNotContent)
	}

	if e, ok := r.cache.Get(path); ok && e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
		return e.doc, nil
	}

	data, err := readCapped(path, MaxAttachmentBytes)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	doc := &Document{
		ID:      id,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hex.EncodeToString(sum[:]),
	}
	if id.Kind() == job.KindDocument {
		doc.Body = string(data)
		doc.Title = titleOf(doc.Body, id.Doc)
	} else {
		doc.Title = id.Attachment
		if textAttachments[strings.ToLower(filepath.Ext(id.Attachment))] {
			doc.Body = string(data)
		}
	}

	r.cache.Add(path, cacheEntry{modTime: info.ModTime(), size: info.Size(), doc: doc})
	return doc, nil
}

// Walk calls fn for every document and attachment inside scope, in lexical
// order. scope may be a wiki, space or document ID; a document scope also
// yields its translations and attachments.
func (r *Repository) Walk(ctx context.Context, scope job.ID, fn func(job.ID) error) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	var base string
	switch scope.Kind() {
	case job.KindWiki, job.KindSpace:
		base = r.PathOf(scope)
	case job.KindDocument, job.KindAttachment:
		base = filepath.Join(r.root, scope.Wiki, scope.Space)
	}

	if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", scope, ErrNotFound)
	}

	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != base {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		id, err := r.Resolve(path)
		if err != nil || id.IsScope() || !scope.Contains(id) {
			return nil
		}
		return fn(id)
	})
}

// Wikis lists the wikis in the repository, sorted by name.
func (r *Repository) Wikis() ([]job.ID, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.root, err)
	}
	var wikis []job.ID
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			wikis = append(wikis, job.WikiID(e.Name()))
		}
	}
	return wikis, nil
}

func readCapped(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// titleOf returns the first level-one markdown heading, or fallback.
func titleOf(body, fallback string) string {
	for _, line := range strings.SplitN(body, "\n", 50) {
		line = strings.TrimSpace(line)
		if title, ok := strings.CutPrefix(line, "# "); ok && strings.TrimSpace(title) != "" {
			return strings.TrimSpace(title)
		}
	}
	return fallback
}
