package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/pkg/cerr"
)

// multipart framing allowance on top of the blob limit
const multipartOverhead = 64 << 10

// UploadAttachment stores the blob first and then attaches its descriptor to
// the task. The blob is removed again when attaching fails.
func (s *Server) UploadAttachment(ctx context.Context, taskID, name string, r io.Reader) (*Change, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	b, err := s.guard.Authorize(ctx, userID, t.BoardID, board.RoleMember)
	if err != nil {
		return nil, err
	}
	if !b.Settings.AllowAttachments {
		return nil, cerr.NewError(cerr.FailedPrecondition, "attachments are disabled on this board", nil)
	}
	a, err := s.blobs.Save(ctx, t.BoardID, t.ID, name, r)
	if err != nil {
		return nil, err
	}
	a.UploadedBy = userID
	a.UploadedAt = s.now()

	change, err := s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskUpdated, func(_ context.Context, m *mutation) (*Change, error) {
		return &Change{Attachment: m.task.AddAttachment(*a)}, nil
	})
	if err != nil {
		deleteBlobs(ctx, s.blobs, []Attachment{*a})
		return nil, err
	}
	return change, nil
}

func (s *Server) DeleteAttachment(ctx context.Context, taskID, attachmentID string) (*Change, error) {
	var removed *Attachment
	change, err := s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskUpdated, func(_ context.Context, m *mutation) (*Change, error) {
		a, ok := m.task.RemoveAttachment(attachmentID)
		if !ok {
			return nil, cerr.NewError(cerr.NotFound, "attachment not found", nil)
		}
		removed = a
		return &Change{}, nil
	})
	if err != nil {
		return nil, err
	}
	deleteBlobs(ctx, s.blobs, []Attachment{*removed})
	return change, nil
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		r.Body = http.MaxBytesReader(w, r.Body, s.blobs.MaxBytes()+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, cerr.InvalidField("file", "max_size", fmt.Sprintf("file must be at most %d bytes", s.blobs.MaxBytes()))
			}
			return nil, cerr.InvalidField("file", "required", "file is required")
		}
		defer file.Close()
		return s.UploadAttachment(ctx, chi.URLParam(r, "id"), header.Filename, file)
	})
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.DeleteAttachment(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "attachmentId"))
	})
}
