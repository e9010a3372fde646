package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/crictactoe/internal/config"
	"github.com/rocketscienceinc/crictactoe/internal/dataset"
	"github.com/rocketscienceinc/crictactoe/internal/repository"
	"github.com/rocketscienceinc/crictactoe/internal/repository/storage"
	"github.com/rocketscienceinc/crictactoe/internal/selector"
	"github.com/rocketscienceinc/crictactoe/internal/session"
	"github.com/rocketscienceinc/crictactoe/internal/transport/cli"
	"github.com/rocketscienceinc/crictactoe/internal/transport/rest"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisAddrString := conf.Redis.GetRedisAddr()
	if conf.Redis.Host == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, storage.RedisOptions{
		Addr:     redisAddrString,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	sqliteStorage, err := storage.NewSQLiteStorage(conf.SQLiteStoragePath)
	if err != nil {
		return fmt.Errorf("could not open sqlite storage: %w", err)
	}

	defer func() {
		if err = sqliteStorage.Close(); err != nil {
			log.Error("could not close sqlite storage", "error", err)
		}
	}()

	if err = sqliteStorage.Init(ctx); err != nil {
		return fmt.Errorf("could not init sqlite storage: %w", err)
	}

	squad, err := dataset.Default()
	if err != nil {
		return fmt.Errorf("could not load player dataset: %w", err)
	}

	userID, err := resolveUserID(ctx, conf, repository.NewIdentityRepository(sqliteStorage.Connection))
	if err != nil {
		return err
	}

	usageRepo := repository.NewUsageRepository(sqliteStorage.Connection)
	categories := selector.New(logger.With("component", "selector"), squad, usageRepo,
		rand.New(rand.NewSource(time.Now().UnixNano()))) //nolint: gosec // not security sensitive

	roomRepo := repository.NewRoomRepository(logger, redisStorage.Connection, repository.RoomOptions{
		TTL: conf.Room.TTL,
		Retry: repository.RetryPolicy{
			Retries:   conf.Room.Retries,
			BaseDelay: conf.Room.RetryBaseDelay,
		},
	})

	controller := session.New(logger, roomRepo, categories, squad, clock.New(), userID, session.Options{
		TurnTimeout:      conf.Timers.Turn,
		QuestionTimeout:  conf.Timers.Question,
		LobbyReturnDelay: conf.Timers.LobbyReturn,
	})
	defer controller.Close()

	group, groupCtx := errgroup.WithContext(ctx)

	// run the terminal client; quitting it stops everything else
	group.Go(func() error {
		defer cancel()

		log.Info("Starting CLI", "user_id", userID)
		if cliErr := cli.New(logger, controller, squad, os.Stdout).Start(groupCtx, os.Stdin); cliErr != nil {
			return fmt.Errorf("CLI error: %w", cliErr)
		}

		return nil
	})

	// run HTTP server
	if conf.HTTPPort != "" {
		group.Go(func() error {
			server := rest.New(logger, conf.HTTPPort, map[string]rest.Pinger{
				"redis":  redisStorage,
				"sqlite": sqliteStorage,
			})
			if httpErr := server.Start(groupCtx); httpErr != nil {
				return fmt.Errorf("HTTP server error: %w", httpErr)
			}

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

type identityStore interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// resolveUserID - the configured user id, or the guest id stored on this machine.
func resolveUserID(ctx context.Context, conf *config.Config, identities identityStore) (string, error) {
	if conf.UserID != "" {
		return conf.UserID, nil
	}

	userID, err := identities.GetOrCreate(ctx)
	if err != nil {
		return "", fmt.Errorf("could not resolve guest identity: %w", err)
	}

	return userID, nil
}
