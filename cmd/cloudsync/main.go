package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/cloudsync/internal/config"
	"github.com/alexjbarnes/cloudsync/internal/files"
	"github.com/alexjbarnes/cloudsync/internal/logging"
	"github.com/alexjbarnes/cloudsync/internal/models"
	"github.com/alexjbarnes/cloudsync/internal/remote"
	"github.com/alexjbarnes/cloudsync/internal/spaces"
	"github.com/alexjbarnes/cloudsync/internal/storage"
	"github.com/alexjbarnes/cloudsync/internal/store"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLoggerWithFile(cfg.Environment, cfg.LogDir)
	logger.Info("cloudsync starting",
		slog.String("version", Version),
		slog.String("account", cfg.AccountName),
		slog.String("server", cfg.ServerURL),
		slog.Duration("refresh_interval", cfg.RefreshInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	disk, err := storage.NewProvider(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	client := remote.NewClient(nil, cfg.AuthToken)
	resolver := spaces.NewResolver(client, cfg.ServerURL)
	repo := files.NewRepository(client, st, disk, resolver, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runPeriodicRefresh(gctx, cfg, repo, client, logger)
	})

	if cfg.EnableChangeFeed {
		g.Go(func() error {
			return runChangeFeed(gctx, cfg, repo, logger)
		})
	}

	if cfg.WatchCache {
		g.Go(func() error {
			return runCacheWatcher(gctx, disk, repo, logger)
		})
	}

	return g.Wait()
}

// runPeriodicRefresh refreshes the root of every space at the configured
// interval, once immediately on startup.
func runPeriodicRefresh(ctx context.Context, cfg *config.Config, repo *files.Repository, client *remote.Client, logger *slog.Logger) error {
	refreshAll := func() {
		if err := refreshRoots(ctx, cfg, repo, client); err != nil {
			logger.Warn("refresh failed", slog.String("error", err.Error()))
		}
	}

	refreshAll()

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			refreshAll()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// refreshRoots refreshes the root folder of each of the account's
// spaces, falling back to the single legacy scope when the server
// reports none.
func refreshRoots(ctx context.Context, cfg *config.Config, repo *files.Repository, client *remote.Client) error {
	spaceList, err := client.Spaces(ctx, cfg.ServerURL)
	if err != nil {
		return err
	}

	if len(spaceList) == 0 {
		spaceList = []models.Space{{}}
	}

	for _, space := range spaceList {
		if _, err := repo.FileByPath(cfg.AccountName, space.ID, models.RootPath); err != nil {
			return err
		}

		if _, err := repo.RefreshFolder(ctx, cfg.AccountName, space.ID, models.RootPath); err != nil {
			return err
		}
	}

	return nil
}

// runChangeFeed refreshes folders the server reports as changed.
func runChangeFeed(ctx context.Context, cfg *config.Config, repo *files.Repository, logger *slog.Logger) error {
	feed := remote.NewChangeFeed(cfg.ServerURL, cfg.AuthToken, logger)
	changes := make(chan remote.Change)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return feed.Run(gctx, changes)
	})

	g.Go(func() error {
		for {
			select {
			case change := <-changes:
				if _, err := repo.RefreshFolder(gctx, cfg.AccountName, change.SpaceID, change.FolderPath); err != nil {
					logger.Warn("change-feed refresh failed",
						slog.String("folder", change.FolderPath),
						slog.String("error", err.Error()),
					)
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	return g.Wait()
}

// runCacheWatcher feeds local cache edits back into the repository.
func runCacheWatcher(ctx context.Context, disk *storage.Provider, repo *files.Repository, logger *slog.Logger) error {
	events := make(chan storage.ChangeEvent)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return disk.Watch(gctx, events)
	})

	g.Go(func() error {
		for {
			select {
			case event := <-events:
				if err := repo.MarkLocalChange(event.StoragePath); err != nil {
					logger.Warn("recording local change failed",
						slog.String("path", event.RemotePath),
						slog.String("error", err.Error()),
					)
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	return g.Wait()
}
