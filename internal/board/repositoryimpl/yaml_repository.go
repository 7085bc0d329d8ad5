package repositoryimpl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/storage"
)

const (
	boardsPrefix  = "boards"
	invitesPrefix = "board_invites"
)

// YAMLRepository stores one YAML document per board plus a small index
// document per invite code, which is how invite code uniqueness is enforced.
type YAMLRepository struct {
	storage storage.Storage
	// serializes invite index changes against each other
	mu sync.Mutex
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", boardsPrefix, id)
}

func invitePath(code string) string {
	return fmt.Sprintf("%s/%s.yaml", invitesPrefix, code)
}

type inviteIndex struct {
	BoardID string `yaml:"board_id"`
}

func (r *YAMLRepository) Create(ctx context.Context, b *board.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := r.storage.Exists(ctx, path(b.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("board", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "board already exists", nil)
	}
	if err := r.claimInvite(ctx, b.InviteCode, b.ID); err != nil {
		return err
	}
	return r.write(ctx, b)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*board.Board, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("board", err)
	}
	return decode(data)
}

func (r *YAMLRepository) GetByInviteCode(ctx context.Context, code string) (*board.Board, error) {
	data, err := r.storage.Read(ctx, invitePath(code))
	if err != nil {
		return nil, cerr.WrapStorageReadError("invite", err)
	}
	var idx inviteIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, cerr.WrapUnmarshalError("invite", err)
	}
	b, err := r.Get(ctx, idx.BoardID)
	if err != nil {
		return nil, err
	}
	// stale index left behind by an interrupted update
	if b.InviteCode != code {
		return nil, cerr.NewError(cerr.NotFound, "invite not found", nil)
	}
	return b, nil
}

func (r *YAMLRepository) ListByMember(ctx context.Context, userID string, archived bool) ([]*board.Board, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*board.Board
	for _, b := range all {
		if b.Archived != archived {
			continue
		}
		if _, ok := b.Member(userID); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// List returns every board, newest first.
func (r *YAMLRepository) List(ctx context.Context) ([]*board.Board, error) {
	all, err := storage.LoadAll(ctx, r.storage, boardsPrefix, decode)
	if err != nil {
		return nil, cerr.WrapStorageReadError("boards", err)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

func (r *YAMLRepository) Update(ctx context.Context, b *board.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Get(ctx, b.ID)
	if err != nil {
		return err
	}
	if current.InviteCode != b.InviteCode {
		if err := r.claimInvite(ctx, b.InviteCode, b.ID); err != nil {
			return err
		}
	}
	if err := r.write(ctx, b); err != nil {
		return err
	}
	if current.InviteCode != b.InviteCode {
		r.releaseInvite(ctx, current.InviteCode)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("board", err)
	}
	r.releaseInvite(ctx, current.InviteCode)
	return nil
}

func (r *YAMLRepository) claimInvite(ctx context.Context, code, boardID string) error {
	if code == "" {
		return cerr.NewError(cerr.InvalidArgument, "invite code is required", nil)
	}
	exists, err := r.storage.Exists(ctx, invitePath(code))
	if err != nil {
		return cerr.WrapStorageWriteError("invite", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "invite code already exists", nil)
	}
	data, err := yaml.Marshal(inviteIndex{BoardID: boardID})
	if err != nil {
		return cerr.WrapMarshalError("invite", err)
	}
	if err := r.storage.Write(ctx, invitePath(code), data); err != nil {
		return cerr.WrapStorageWriteError("invite", err)
	}
	return nil
}

// releaseInvite is best effort: a leftover index is ignored by
// GetByInviteCode and only blocks reuse of a random code.
func (r *YAMLRepository) releaseInvite(ctx context.Context, code string) {
	if code == "" {
		return
	}
	_ = r.storage.Delete(ctx, invitePath(code))
}

func (r *YAMLRepository) write(ctx context.Context, b *board.Board) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return cerr.WrapMarshalError("board", err)
	}
	if err := r.storage.Write(ctx, path(b.ID), data); err != nil {
		return cerr.WrapStorageWriteError("board", err)
	}
	return nil
}

func decode(data []byte) (*board.Board, error) {
	var b board.Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, cerr.WrapUnmarshalError("board", err)
	}
	return &b, nil
}
