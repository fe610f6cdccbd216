package job

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyID is returned when a job has no key.
var ErrEmptyID = errors.New("job id is empty")

// Kind describes which content unit an ID names.
type Kind int

const (
	KindNone Kind = iota
	KindWiki
	KindSpace
	KindDocument
	KindAttachment
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindWiki:
		return "wiki"
	case KindSpace:
		return "space"
	case KindDocument:
		return "document"
	case KindAttachment:
		return "attachment"
	default:
		return "none"
	}
}

// ID identifies a unit of content. It is comparable and used as the
// de-duplication key of the queue.
//
// Fields are filled from the outside in: a space requires a wiki, a document
// requires a space, an attachment requires a document. Lang is only
// meaningful for documents.
type ID struct {
	Wiki       string `json:"wiki"`
	Space      string `json:"space,omitempty"`
	Doc        string `json:"doc,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Attachment string `json:"attachment,omitempty"`
}

// WikiID names a whole wiki.
func WikiID(wiki string) ID {
	return ID{Wiki: wiki}
}

// SpaceID names a space inside a wiki.
func SpaceID(wiki, space string) ID {
	return ID{Wiki: wiki, Space: space}
}

// DocID names a document, in its default language.
func DocID(wiki, space, doc string) ID {
	return ID{Wiki: wiki, Space: space, Doc: doc}
}

// WithLang returns the translation of a document ID.
func (id ID) WithLang(lang string) ID {
	id.Lang = lang
	return id
}

// AttachmentID names a file attached to a document.
func AttachmentID(wiki, space, doc, file string) ID {
	return ID{Wiki: wiki, Space: space, Doc: doc, Attachment: file}
}

// IsZero reports whether id names nothing.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Kind returns the most specific unit the ID names.
func (id ID) Kind() Kind {
	switch {
	case id.Attachment != "":
		return KindAttachment
	case id.Doc != "":
		return KindDocument
	case id.Space != "":
		return KindSpace
	case id.Wiki != "":
		return KindWiki
	default:
		return KindNone
	}
}

// IsScope reports whether the ID stands for many documents.
func (id ID) IsScope() bool {
	k := id.Kind()
	return k == KindWiki || k == KindSpace
}

// Document returns the owning document of an attachment or translation.
func (id ID) Document() ID {
	return DocID(id.Wiki, id.Space, id.Doc)
}

// Contains reports whether other lies inside the scope named by id.
func (id ID) Contains(other ID) bool {
	if id.Wiki != other.Wiki {
		return false
	}
	switch id.Kind() {
	case KindWiki:
		return true
	case KindSpace:
		return id.Space == other.Space
	case KindDocument:
		return id.Space == other.Space && id.Doc == other.Doc && (id.Lang == "" || id.Lang == other.Lang)
	default:
		return id == other
	}
}

// Validate checks that the ID names something and that its fields nest.
func (id ID) Validate() error {
	if id.IsZero() {
		return ErrEmptyID
	}
	if id.Wiki == "" {
		return fmt.Errorf("job id %q: wiki is required", id.String())
	}
	if id.Doc != "" && id.Space == "" {
		return fmt.Errorf("job id %q: document requires a space", id.String())
	}
	if (id.Attachment != "" || id.Lang != "") && id.Doc == "" {
		return fmt.Errorf("job id %q: attachment and language require a document", id.String())
	}
	if id.Attachment != "" && id.Lang != "" {
		return fmt.Errorf("job id %q: attachments have no language", id.String())
	}
	return nil
}

// String renders the canonical reference: wiki, wiki:space, wiki:space.doc,
// wiki:space.doc@lang or wiki:space.doc/file.
func (id ID) String() string {
	var b strings.Builder
	b.WriteString(id.Wiki)
	if id.Space != "" {
		b.WriteByte(':')
		b.WriteString(id.Space)
	}
	if id.Doc != "" {
		b.WriteByte('.')
		b.WriteString(id.Doc)
	}
	if id.Lang != "" {
		b.WriteByte('@')
		b.WriteString(id.Lang)
	}
	if id.Attachment != "" {
		b.WriteByte('/')
		b.WriteString(id.Attachment)
	}
	return b.String()
}

// ParseID is the inverse of ID.String.
func ParseID(ref string) (ID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ID{}, ErrEmptyID
	}

	var id ID
	rest := ref
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		id.Attachment = rest[i+1:]
		rest = rest[:i]
	}

	wiki, spaceDoc, hasSpace := strings.Cut(rest, ":")
	id.Wiki = wiki
	if hasSpace {
		space, doc, hasDoc := strings.Cut(spaceDoc, ".")
		id.Space = space
		if hasDoc {
			if d, lang, ok := strings.Cut(doc, "@"); ok {
				doc, id.Lang = d, lang
			}
			id.Doc = doc
		}
	}

	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}
