package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexq/internal/job"
)

func newTestState(t *testing.T) *StateStore {
	t.Helper()
	s, err := OpenState(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStateStore_PutGetDelete(t *testing.T) {
	s := newTestState(t)
	id := job.DocID("w", "S", "Page")

	_, ok, err := s.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(id, "abc"))
	hash, ok, err := s.Get(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", hash)

	require.NoError(t, s.Put(id, "def"))
	hash, _, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "def", hash)

	require.NoError(t, s.Delete(id))
	_, ok, err = s.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateStore_DeletePrefix(t *testing.T) {
	ids := []job.ID{
		job.DocID("w", "S", "Page"),
		job.DocID("w", "S", "Page").WithLang("fr"),
		job.AttachmentID("w", "S", "Page", "a.png"),
		job.DocID("w", "S", "PageTwo"),
		job.DocID("w", "S.x", "Page"),
		job.DocID("w", "T", "Page"),
		job.DocID("w2", "S", "Page"),
	}

	tests := []struct {
		name  string
		scope job.ID
		left  int
	}{
		{"document", job.DocID("w", "S", "Page"), 4},
		{"translation", job.DocID("w", "S", "Page").WithLang("fr"), 6},
		{"attachment", job.AttachmentID("w", "S", "Page", "a.png"), 6},
		{"space", job.SpaceID("w", "S"), 3},
		{"wiki", job.WikiID("w"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a state store holding sibling names that share text prefixes
			s := newTestState(t)
			for _, id := range ids {
				require.NoError(t, s.Put(id, "h"))
			}

			// When deleting a scope
			require.NoError(t, s.DeletePrefix(tt.scope))

			// Then only documents inside it are forgotten
			n, err := s.Count()
			require.NoError(t, err)
			assert.Equal(t, tt.left, n)
			for _, id := range ids {
				_, ok, err := s.Get(id)
				require.NoError(t, err)
				assert.Equal(t, !tt.scope.Contains(id), ok, id.String())
			}
		})
	}
}

func TestStateStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	id := job.DocID("w", "S", "Page")

	s, err := OpenState(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(id, "abc"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Get(id)
	assert.ErrorIs(t, err, ErrClosed)

	s, err = OpenState(dir)
	require.NoError(t, err)
	defer s.Close()
	hash, ok, err := s.Get(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", hash)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("state0"), prefixUpperBound([]byte("state/")))
	assert.Equal(t, []byte{0x01}, prefixUpperBound([]byte{0x00, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}

func TestStateStore_Scan(t *testing.T) {
	s := newTestState(t)
	in := []job.ID{
		job.DocID("w", "S", "B"),
		job.DocID("w", "S", "A"),
		job.AttachmentID("w", "S", "A", "f.txt"),
		job.DocID("w", "T", "A"),
	}
	for i, id := range in {
		require.NoError(t, s.Put(id, string(rune('0'+i))))
	}

	var got []string
	err := s.Scan(job.SpaceID("w", "S"), func(id job.ID, hash string) error {
		got = append(got, id.String()+"="+hash)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"w:S.A=1", "w:S.A/f.txt=2", "w:S.B=0"}, got)
}
