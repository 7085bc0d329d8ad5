package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/prepboard/internal/access"
	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/config"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/internal/reorder"
	"github.com/kazz187/prepboard/internal/store"
	"github.com/kazz187/prepboard/pkg/color"
	"github.com/kazz187/prepboard/pkg/keylock"
)

var (
	app = kingpin.New("prepboard", "Operator tool for the prepboard server")

	tokenCmd  = app.Command("token", "Mint an identity token for a user")
	tokenUser = tokenCmd.Arg("user", "User ID").Required().String()
	tokenTTL  = tokenCmd.Flag("ttl", "Token lifetime, 0 for no expiry").Default("24h").Duration()

	compactCmd   = app.Command("compact", "Rewrite every column ordering as 0..n-1")
	compactBoard = compactCmd.Arg("board", "Board ID; all boards when omitted").String()

	rotateCmd   = app.Command("rotate-invite", "Replace a board's invite code")
	rotateBoard = rotateCmd.Arg("board", "Board ID").Required().String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	app.FatalIfError(err, "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case tokenCmd.FullCommand():
		err = runToken(env, *tokenUser, *tokenTTL)
	case compactCmd.FullCommand():
		err = withStores(ctx, env, func(stores *store.Stores) error {
			return runCompact(ctx, stores, *compactBoard)
		})
	case rotateCmd.FullCommand():
		err = withStores(ctx, env, func(stores *store.Stores) error {
			return runRotateInvite(ctx, stores, *rotateBoard)
		})
	}
	app.FatalIfError(err, "%s", command)
}

func withStores(ctx context.Context, env *config.Env, fn func(*store.Stores) error) error {
	stores, err := store.Open(ctx, env)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close(context.Background()) }()
	return fn(stores)
}

func runToken(env *config.Env, userID string, ttl time.Duration) error {
	token, err := auth.NewVerifier(env.JWTSecret).Issue(userID, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runCompact(ctx context.Context, stores *store.Stores, boardID string) error {
	var boards []*board.Board
	if boardID != "" {
		b, err := stores.Boards.Get(ctx, boardID)
		if err != nil {
			return err
		}
		boards = append(boards, b)
	} else {
		all, err := stores.Boards.List(ctx)
		if err != nil {
			return err
		}
		boards = all
	}

	engine := reorder.NewEngine(stores.Tasks, access.NewGuard(stores.Boards), eventbus.New(), keylock.New())
	for _, b := range boards {
		res, err := engine.CompactBoard(ctx, b)
		if err != nil {
			color.Failuref(os.Stderr, b.ID, "%v", err)
			return err
		}
		color.Successf(os.Stdout, b.ID, "%d tasks compacted across %d columns", len(res.Tasks), len(res.Columns))
	}
	return nil
}

func runRotateInvite(ctx context.Context, stores *store.Stores, boardID string) error {
	b, err := stores.Boards.Get(ctx, boardID)
	if err != nil {
		return err
	}
	b.UpdatedAt = time.Now().UTC()
	if err := board.RotateInvite(ctx, stores.Boards, b); err != nil {
		return err
	}
	fmt.Println(b.InviteCode)
	return nil
}
