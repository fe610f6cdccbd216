package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/job"
)

// statePrefix namespaces content hash records.
const statePrefix = "state/"

// StateStore remembers the content hash each document was last indexed
// with, so unchanged documents can be skipped.
type StateStore struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

// OpenStateStore opens or creates the pebble database in dir.
func OpenStateStore(dir string) (*StateStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, ixerrors.StorageError(fmt.Sprintf("failed to open state store at %s", dir), err)
	}
	return &StateStore{db: db}, nil
}

// stateKey encodes every ID part followed by a NUL, so the keys of a scope
// share the scope's key as a prefix whatever characters names contain.
func stateKey(id job.ID) []byte {
	var b strings.Builder
	b.WriteString(statePrefix)
	for _, part := range []string{id.Wiki, id.Space, id.Doc, id.Lang, id.Attachment} {
		b.WriteString(part)
		b.WriteByte(0)
	}
	return []byte(b.String())
}

// scopePrefix keeps the parts up to the last one set.
func scopePrefix(scope job.ID) []byte {
	parts := []string{scope.Wiki, scope.Space, scope.Doc, scope.Lang, scope.Attachment}
	last := 0
	for i, p := range parts {
		if p != "" {
			last = i
		}
	}
	var b strings.Builder
	b.WriteString(statePrefix)
	for _, part := range parts[:last+1] {
		b.WriteString(part)
		b.WriteByte(0)
	}
	return []byte(b.String())
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Get returns the recorded hash for id.
func (s *StateStore) Get(id job.ID) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}
	val, closer, err := s.db.Get(stateKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ixerrors.StorageError(fmt.Sprintf("failed to read state of %s", id), err)
	}
	defer closer.Close()
	return string(val), true, nil
}

// Put records hash for id.
func (s *StateStore) Put(id job.ID, hash string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.db.Set(stateKey(id), []byte(hash), pebble.Sync); err != nil {
		return ixerrors.StorageError(fmt.Sprintf("failed to record state of %s", id), err)
	}
	return nil
}

// Delete forgets id.
func (s *StateStore) Delete(id job.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.db.Delete(stateKey(id), pebble.Sync); err != nil {
		return ixerrors.StorageError(fmt.Sprintf("failed to delete state of %s", id), err)
	}
	return nil
}

// DeletePrefix forgets every document under scope.
func (s *StateStore) DeletePrefix(scope job.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	start := scopePrefix(scope)
	if err := s.db.DeleteRange(start, prefixUpperBound(start), pebble.Sync); err != nil {
		return ixerrors.StorageError(fmt.Sprintf("failed to delete state under %s", scope), err)
	}
	return nil
}

// Count returns the number of recorded documents.
func (s *StateStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	lower := []byte(statePrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return 0, ixerrors.StorageError("failed to iterate state", err)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Close flushes and closes the database. It is idempotent.
func (s *StateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Metrics returns pebble's internal metrics, or nil once closed.
func (s *StateStore) Metrics() *pebble.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	return s.db.Metrics()
}

// Scan calls fn for every recorded document under scope, in key order.
func (s *StateStore) Scan(scope job.ID, fn func(id job.ID, hash string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	lower := scopePrefix(scope)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return ixerrors.StorageError("failed to iterate state", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, ok := parseStateKey(iter.Key())
		if !ok {
			continue
		}
		if err := fn(id, string(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}

func parseStateKey(key []byte) (job.ID, bool) {
	rest, ok := strings.CutPrefix(string(key), statePrefix)
	if !ok {
		return job.ID{}, false
	}
	parts := strings.Split(rest, "\x00")
	// Five terminated parts leave an empty sixth.
	if len(parts) != 6 {
		return job.ID{}, false
	}
	return job.ID{
		Wiki:       parts[0],
		Space:      parts[1],
		Doc:        parts[2],
		Lang:       parts[3],
		Attachment: parts[4],
	}, true
}
