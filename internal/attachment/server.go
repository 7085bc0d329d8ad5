package attachment

import (
	"bytes"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/pkg/cerr"
)

// Server serves attachment downloads. Responses are raw file bodies, so its
// routes are mounted outside the JSON envelope middleware.
type Server struct {
	store *Store
	guard board.Authorizer
}

func NewServer(store *Store, guard board.Authorizer) *Server {
	return &Server{store: store, guard: guard}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/attachments/{boardId}/{taskId}/{file}", s.handleDownload)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	boardID := chi.URLParam(r, "boardId")
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		cerr.WriteJSONError(ctx, w, err)
		return
	}
	if _, err := s.guard.Authorize(ctx, userID, boardID, board.RoleViewer); err != nil {
		cerr.WriteJSONError(ctx, w, err)
		return
	}
	file := chi.URLParam(r, "file")
	data, err := s.store.Open(ctx, boardID, chi.URLParam(r, "taskId"), file)
	if err != nil {
		cerr.WriteJSONError(ctx, w, err)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(file)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, file, time.Time{}, bytes.NewReader(data))
}
