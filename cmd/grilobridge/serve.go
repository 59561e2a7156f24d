package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grilobridge/grilobridge/internal/fuse"
	"github.com/grilobridge/grilobridge/pkg/api"
	"github.com/grilobridge/grilobridge/pkg/health"
	"github.com/grilobridge/grilobridge/pkg/status"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var mountPoint string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sources over HTTP and, optionally, a FUSE mount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if mountPoint != "" {
					a.config.FUSE.MountPoint = mountPoint
				}
				return serve(ctx, a)
			})
		},
	}

	cmd.Flags().StringVarP(&mountPoint, "mount", "m", "", "Also mount the sources read-only at this directory")
	return cmd
}

// serve runs every enabled frontend until ctx ends or one of them fails.
func serve(ctx context.Context, a *app) error {
	cfg := a.config

	healthTracker := health.NewTracker(health.DefaultConfig(), a.logger)
	for _, id := range a.Buckets() {
		healthTracker.RegisterComponent(id)
	}
	healthTracker.AddStateChangeCallback(health.StateUnavailable, func(id string, _, _ health.HealthState, err error) {
		a.logger.Error("source unavailable", "source", id, "error", err)
	})
	check := func(ctx context.Context, id string) error {
		err := a.checkSource(ctx, id)
		if stats, ok := a.bucketStats(id); ok {
			for k, v := range stats {
				healthTracker.SetComponentMetadata(id, k, v)
			}
		}
		return err
	}
	statusTracker := status.NewTracker(status.TrackerConfig{HealthTracker: healthTracker})

	// Mount before anything runs so a bad mount point fails fast.
	var mm *fuse.MountManager
	if cfg.FUSE.MountPoint != "" {
		var err error
		if mm, err = mount(a); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if mm != nil {
		g.Go(func() error {
			<-gctx.Done()
			if !mm.IsMounted() {
				return nil
			}
			return mm.Unmount()
		})
	}

	g.Go(func() error {
		healthTracker.StartHealthChecks(gctx, check)
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			if err := a.metrics.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			return stopWithTimeout(a.metrics.Stop)
		})
	}

	if cfg.API.Enabled {
		serverConfig := api.DefaultServerConfig()
		serverConfig.Address = cfg.API.Address
		serverConfig.ReadTimeout = cfg.API.ReadTimeout
		serverConfig.WriteTimeout = cfg.API.WriteTimeout
		serverConfig.BrowseTimeout = cfg.API.BrowseTimeout
		server := api.NewServer(serverConfig, a.extensions, statusTracker, healthTracker, a.logger)

		g.Go(func() error {
			if err := server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return stopWithTimeout(server.Shutdown)
		})
	}

	a.logger.Info("serving",
		"api", cfg.API.Enabled,
		"metrics", cfg.Metrics.Enabled,
		"mount_point", cfg.FUSE.MountPoint)

	err := g.Wait()
	a.logger.Info("stopped")
	return err
}

func stopWithTimeout(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return stop(ctx)
}

// mount exposes the sources at the configured mount point.
func mount(a *app) (*fuse.MountManager, error) {
	cfg := a.config.FUSE

	fsConfig := fuse.DefaultConfig()
	fsConfig.CallTimeout = a.config.API.BrowseTimeout
	filesystem := fuse.NewFileSystem(a.extensions, fsConfig, a.logger)

	mountConfig := fuse.DefaultMountConfig(cfg.MountPoint)
	mountConfig.AllowOther = cfg.AllowOther
	mountConfig.Debug = cfg.Debug
	mountConfig.AttrTimeout = cfg.AttrTTL
	mountConfig.EntryTimeout = cfg.EntryTTL

	mm := fuse.NewMountManager(filesystem, mountConfig, a.logger)
	if err := mm.Mount(); err != nil {
		return nil, err
	}
	return mm, nil
}
