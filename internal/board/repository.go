package board

import "context"

type Repository interface {
	// Create fails with AlreadyExists when the id or invite code is taken.
	Create(ctx context.Context, b *Board) error
	Get(ctx context.Context, id string) (*Board, error)
	GetByInviteCode(ctx context.Context, code string) (*Board, error)
	// ListByMember returns the boards userID belongs to, newest first.
	ListByMember(ctx context.Context, userID string, archived bool) ([]*Board, error)
	List(ctx context.Context) ([]*Board, error)
	// Update fails with AlreadyExists when a changed invite code is taken.
	Update(ctx context.Context, b *Board) error
	Delete(ctx context.Context, id string) error
}

// Authorizer resolves a board for a caller who holds at least the required
// role on it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, boardID string, required Role) (*Board, error)
}

// TaskPurger removes every task of a board together with its attachments.
type TaskPurger interface {
	PurgeBoard(ctx context.Context, boardID string) error
}

// TaskStore is the part of the task store a board server needs.
type TaskStore interface {
	TaskPurger
	// ColumnsInUse returns the columns of a board holding at least one
	// task, archived or not.
	ColumnsInUse(ctx context.Context, boardID string) ([]ColumnType, error)
}
