package reorder

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/pkg/cerr"
)

type Server struct {
	engine *Engine
}

func NewServer(engine *Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/tasks/reorder", s.handleReorder)
	r.Post("/tasks/{id}/move", s.handleMove)
	r.Get("/boards/{id}/ordering", s.handleVersions)
}

type ReorderRequest struct {
	BoardID  string   `json:"boardId"`
	Tasks    []Item   `json:"tasks"`
	Versions Versions `json:"versions"`
}

type MoveRequest struct {
	Column   board.ColumnType `json:"column"`
	Position *int             `json:"position"`
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req ReorderRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.engine.Reorder(ctx, req.BoardID, req.Tasks, req.Versions)
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req MoveRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.engine.Move(ctx, chi.URLParam(r, "id"), req.Column, req.Position)
	})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.engine.CurrentVersions(ctx, chi.URLParam(r, "id"))
	})
}
