package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/prepboard/internal/access"
	"github.com/kazz187/prepboard/internal/attachment"
	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/config"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/internal/membership"
	"github.com/kazz187/prepboard/internal/pushnotification"
	pushsubrepo "github.com/kazz187/prepboard/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/prepboard/internal/realtime"
	"github.com/kazz187/prepboard/internal/reorder"
	"github.com/kazz187/prepboard/internal/store"
	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/clog"
	"github.com/kazz187/prepboard/pkg/keylock"
	"github.com/kazz187/prepboard/pkg/panicerr"

	server "github.com/kazz187/prepboard/internal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler, clog.WithResolver(clog.UserAttributeKey, auth.UserIDFromContext))))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Setup storage and repositories
	stores, err := store.Open(ctx, env)
	if err != nil {
		slog.Error("failed to open store", "store_type", env.StoreEnv.Type, "error", err)
		os.Exit(1)
	}
	pushSubRepo := pushsubrepo.NewYAMLRepository(stores.Storage)

	bus := eventbus.New()
	locks := keylock.New()
	guard := access.NewGuard(stores.Boards)
	verifier := auth.NewVerifier(env.JWTSecret)

	// Setup servers
	blobs := attachment.NewStore(stores.Storage, env.AttachmentEnv.MaxBytes)
	purger := task.NewPurger(stores.Tasks, blobs)
	engine := reorder.NewEngine(stores.Tasks, guard, bus, locks)

	boardServer := board.NewServer(stores.Boards, guard, purger, bus, locks)
	membershipServer := membership.NewServer(stores.Boards, guard, purger, bus, locks)
	taskServer := task.NewServer(stores.Tasks, guard, engine, blobs, bus)
	reorderServer := reorder.NewServer(engine)
	attachmentServer := attachment.NewServer(blobs, guard)

	hub := realtime.NewHub()
	realtimeServer := realtime.NewServer(hub, guard, verifier, bus, env.RealtimeEnv.SendBuffer, env.AllowedOrigins())

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushNotificationServer := pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	srv := server.NewServer(
		env,
		verifier,
		boardServer,
		membershipServer,
		taskServer,
		reorderServer,
		attachmentServer,
		pushNotificationServer,
		realtimeServer,
	)

	var workers conc.WaitGroup
	workers.Go(func() { panicerr.Supervise(ctx, "reorder", engine.Run) })
	workers.Go(func() { panicerr.Supervise(ctx, "realtime", realtimeServer.Run) })
	if pushSender.Enabled() {
		workers.Go(func() { panicerr.Supervise(ctx, "push", pushDispatcher.Run) })
	} else {
		slog.Info("web push disabled, VAPID keys not configured")
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	workers.Wait()
	if err := stores.Close(shutdownCtx); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}
