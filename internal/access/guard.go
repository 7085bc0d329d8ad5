// Package access gates every board and task operation on board membership.
package access

import (
	"context"
	"fmt"

	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/clog"
)

type Guard struct {
	boards board.Repository
}

var _ board.Authorizer = (*Guard)(nil)

func NewGuard(boards board.Repository) *Guard {
	return &Guard{boards: boards}
}

// Authorize loads boardID and checks that userID holds at least required on
// it. It never mutates anything. Non-members and members below required get
// PermissionDenied; a missing board gets NotFound.
func (g *Guard) Authorize(ctx context.Context, userID, boardID string, required board.Role) (*board.Board, error) {
	if userID == "" {
		return nil, cerr.NewError(cerr.Unauthenticated, "authentication required", nil)
	}
	if boardID == "" {
		return nil, cerr.InvalidField("boardId", "required", "board id is required")
	}
	if !required.Valid() {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("invalid required role %d", int(required)))
	}
	b, err := g.boards.Get(ctx, boardID)
	if err != nil {
		return nil, err
	}
	clog.AddBoard(ctx, boardID)
	if err := Check(b, userID, required); err != nil {
		return nil, err
	}
	return b, nil
}

// Check applies the membership rule to an already loaded board.
func Check(b *board.Board, userID string, required board.Role) error {
	role := b.RoleOf(userID)
	if role == board.RoleNone {
		return cerr.NewError(cerr.PermissionDenied, "access denied: not a member of this board", nil)
	}
	if !role.AtLeast(required) {
		return cerr.NewError(cerr.PermissionDenied, fmt.Sprintf("access denied: requires %s role", required), nil)
	}
	return nil
}
