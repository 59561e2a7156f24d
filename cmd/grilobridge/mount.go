package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grilobridge/grilobridge/pkg/errors"
)

var errMountPoint = errors.NewError(errors.ErrCodeInvalidConfig, "no mount point given and fuse.mount_point is not set")

func newMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount [MOUNT-POINT]",
		Short: "Mount the sources read-only until interrupted",
		Long: "Mount every source as a top-level directory. Containers are directories and " +
			"other objects are YAML files holding their metadata. Without MOUNT-POINT, " +
			"fuse.mount_point from the configuration is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if len(args) == 1 {
					a.config.FUSE.MountPoint = args[0]
				}
				if a.config.FUSE.MountPoint == "" {
					return errMountPoint
				}

				mm, err := mount(a)
				if err != nil {
					return err
				}

				done := make(chan struct{})
				go func() {
					mm.Wait()
					close(done)
				}()

				select {
				case <-ctx.Done():
					a.logger.Info("unmounting", "mount_point", mm.GetMountPoint())
					if err := mm.Unmount(); err != nil {
						return err
					}
					<-done
				case <-done:
					// Unmounted externally, e.g. with fusermount -u.
				}
				return nil
			})
		},
	}
}
