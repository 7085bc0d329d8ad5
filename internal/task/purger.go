package task

import (
	"context"
	"log/slog"
	"slices"

	"github.com/kazz187/prepboard/internal/board"
)

// Purger answers for a board's tasks as a whole: it deletes every task,
// archived or not, with their attachment blobs, and reports which columns
// hold tasks.
type Purger struct {
	repo  Repository
	blobs BlobStore
}

var _ board.TaskStore = (*Purger)(nil)

func NewPurger(repo Repository, blobs BlobStore) *Purger {
	return &Purger{repo: repo, blobs: blobs}
}

func (p *Purger) PurgeBoard(ctx context.Context, boardID string) error {
	for _, archived := range []bool{false, true} {
		tasks, err := p.repo.ListByBoard(ctx, boardID, Filter{Archived: archived})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			deleteBlobs(ctx, p.blobs, t.Attachments)
		}
	}
	return p.repo.DeleteByBoard(ctx, boardID)
}

func (p *Purger) ColumnsInUse(ctx context.Context, boardID string) ([]board.ColumnType, error) {
	var used []board.ColumnType
	for _, archived := range []bool{false, true} {
		tasks, err := p.repo.ListByBoard(ctx, boardID, Filter{Archived: archived})
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if !slices.Contains(used, t.Column) {
				used = append(used, t.Column)
			}
		}
	}
	return used, nil
}

// deleteBlobs is best effort; an orphaned blob is only logged.
func deleteBlobs(ctx context.Context, blobs BlobStore, attachments []Attachment) {
	for _, a := range attachments {
		if err := blobs.Delete(ctx, a.Key); err != nil {
			slog.WarnContext(ctx, "failed to delete attachment blob", "key", a.Key, "error", err)
		}
	}
}
