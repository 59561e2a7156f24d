/*
Package fuse mounts the registered sources as a read-only filesystem.

# Layout

Every source is a top-level directory named by its id. Below it each
container becomes a directory named by its title and every other object a
YAML file holding its metadata:

	/mnt/media/
	└── demo/                   source "demo", object id demo::
	    ├── Rock/               demo::Box:rock
	    │   ├── One.yaml        demo::Audio:1
	    │   └── One (2).yaml    demo::Audio:2, same title
	    └── Empty/

Objects without a title fall back to their native id. Path separators in
titles are replaced by underscores.

# Behaviour

Directory listings come from a full browse of the container with the title
and mime-type keys and are reused for Config.ListingTTL. File contents are
fetched once per inode with the wildcard key:

	object_id: demo::Audio:1
	mime-type: audio/mpeg
	title: One

All calls into a source are bounded by Config.CallTimeout. Writes of any
kind fail with EROFS.

# Errors

NOT_FOUND and INVALID_IDENTIFIER map to ENOENT, UNIMPLEMENTED to ENOTSUP,
cancellation to EINTR and timeouts to ETIMEDOUT. Anything else is EIO.

# Usage

	fsys := fuse.NewFileSystem(extensions, fuse.DefaultConfig(), logger)
	mgr := fuse.NewMountManager(fsys, fuse.DefaultMountConfig("/mnt/media"), logger)
	if err := mgr.Mount(); err != nil {
		return err
	}
	defer mgr.Unmount()
	mgr.Wait()
*/
package fuse
