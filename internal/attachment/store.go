// Package attachment keeps task attachment blobs on a storage.Storage and
// serves them back to board members.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/storage"
)

const prefix = "attachments"

var allowedExtensions = []string{".jpeg", ".jpg", ".png", ".gif", ".pdf", ".doc", ".docx", ".txt", ".zip", ".rar"}

// allowedMIMEs are matched against the sniffed content, aliases included.
var allowedMIMEs = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/pdf",
	"application/msword",
	"application/x-ole-storage",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
	"application/zip",
	"application/x-rar-compressed",
}

type Store struct {
	storage  storage.Storage
	maxBytes int64
}

var _ task.BlobStore = (*Store)(nil)

func NewStore(s storage.Storage, maxBytes int64) *Store {
	return &Store{storage: s, maxBytes: maxBytes}
}

func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Key is where the blob of a task attachment lives.
func Key(boardID, taskID, file string) string {
	return path.Join(prefix, boardID, taskID, file)
}

// URL is the API path that serves key.
func URL(key string) string {
	return "/api/" + key
}

// Save validates the upload by extension and sniffed content type and
// stores it under a fresh name.
func (s *Store) Save(ctx context.Context, boardID, taskID, name string, r io.Reader) (*task.Attachment, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	ext := strings.ToLower(path.Ext(name))
	if name == "." || name == "/" || !slices.Contains(allowedExtensions, ext) {
		return nil, cerr.InvalidField("file", "type", "only images, PDF, Word, text, zip and rar files are allowed")
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "failed to read upload", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, cerr.InvalidField("file", "max_size", fmt.Sprintf("file must be at most %d bytes", s.maxBytes))
	}
	if len(data) == 0 {
		return nil, cerr.InvalidField("file", "required", "file is empty")
	}
	mime := mimetype.Detect(data)
	if !slices.ContainsFunc(allowedMIMEs, mime.Is) {
		return nil, cerr.InvalidField("file", "type", fmt.Sprintf("content type %s is not allowed", mime.String()))
	}

	id := ulid.Make().String()
	key := Key(boardID, taskID, id+ext)
	if err := s.storage.Write(ctx, key, data); err != nil {
		return nil, cerr.WrapStorageWriteError("attachment", err)
	}
	return &task.Attachment{
		ID:   id,
		Name: name,
		URL:  URL(key),
		Key:  key,
		Type: mime.String(),
		Size: int64(len(data)),
	}, nil
}

// Delete treats a missing blob as already deleted.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageDeleteError("attachment", err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, boardID, taskID, file string) ([]byte, error) {
	data, err := s.storage.Read(ctx, Key(boardID, taskID, file))
	if err != nil {
		return nil, cerr.WrapStorageReadError("attachment", err)
	}
	return data, nil
}
