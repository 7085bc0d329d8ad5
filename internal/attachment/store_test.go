package attachment

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewStore(s, maxBytes)
}

func TestStore_SaveAndOpen(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 1<<20)

	a, err := s.Save(ctx, "b1", "t1", "notes.txt", strings.NewReader("two sum: use a hash map\n"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", a.Name)
	assert.True(t, strings.HasPrefix(a.Type, "text/plain"), a.Type)
	assert.Equal(t, int64(24), a.Size)
	assert.Equal(t, Key("b1", "t1", a.ID+".txt"), a.Key)
	assert.Equal(t, "/api/"+a.Key, a.URL)

	data, err := s.Open(ctx, "b1", "t1", a.ID+".txt")
	require.NoError(t, err)
	assert.Equal(t, "two sum: use a hash map\n", string(data))

	img, err := s.Save(ctx, "b1", "t1", `C:\Users\bob\diagram.PNG`, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "diagram.PNG", img.Name)
	assert.Equal(t, "image/png", img.Type)
	assert.True(t, strings.HasSuffix(img.Key, ".png"))
}

func TestStore_SaveRejects(t *testing.T) {
	elf := append([]byte("\x7fELF\x02\x01\x01"), make([]byte, 24)...)
	tests := []struct {
		name string
		file string
		body []byte
		rule string
	}{
		{"extension", "setup.exe", []byte("MZ"), "type"},
		{"no extension", "README", []byte("hello"), "type"},
		{"content", "notes.txt", elf, "type"},
		{"empty", "notes.txt", nil, "required"},
		{"too large", "notes.txt", bytes.Repeat([]byte("a"), 65), "max_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, 64)
			_, err := s.Save(context.Background(), "b1", "t1", tt.file, bytes.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, cerr.InvalidArgument), "got %v", err)
			var cErr *cerr.Error
			require.ErrorAs(t, err, &cErr)
			require.Len(t, cErr.Details, 1)
			v, ok := cErr.Details[0].(*validate.Violation)
			require.True(t, ok)
			assert.Equal(t, "file."+tt.rule, v.GetRuleId())
		})
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 1<<20)

	a, err := s.Save(ctx, "b1", "t1", "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, a.Key))
	require.NoError(t, s.Delete(ctx, a.Key), "deleting twice is not an error")

	_, err = s.Open(ctx, "b1", "t1", a.ID+".txt")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
