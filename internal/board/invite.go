package board

import (
	"context"
	"fmt"

	"github.com/kazz187/prepboard/pkg/cerr"
)

const inviteAttempts = 5

// CreateWithInvite stores a new board under a freshly generated invite code,
// regenerating the code on collision.
func CreateWithInvite(ctx context.Context, repo Repository, b *Board) error {
	var err error
	for range inviteAttempts {
		b.InviteCode = NewInviteCode()
		err = repo.Create(ctx, b)
		if !cerr.IsCode(err, cerr.AlreadyExists) {
			return err
		}
	}
	return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("no free invite code after %d attempts: %w", inviteAttempts, err))
}

// RotateInvite replaces the invite code of an existing board, regenerating on
// collision. The old code stops working once this returns.
func RotateInvite(ctx context.Context, repo Repository, b *Board) error {
	previous := b.InviteCode
	var err error
	for range inviteAttempts {
		b.InviteCode = NewInviteCode()
		err = repo.Update(ctx, b)
		if !cerr.IsCode(err, cerr.AlreadyExists) {
			if err != nil {
				b.InviteCode = previous
			}
			return err
		}
	}
	b.InviteCode = previous
	return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("no free invite code after %d attempts: %w", inviteAttempts, err))
}
