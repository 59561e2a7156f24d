package fuse

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"gopkg.in/yaml.v2"

	"github.com/grilobridge/grilobridge/internal/frontend"
	"github.com/grilobridge/grilobridge/internal/keymap"
	"github.com/grilobridge/grilobridge/internal/objectid"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// safeIntToUint32 safely converts int to uint32, preventing overflow
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

// metadataSuffix is appended to the name of every non-container entry.
const metadataSuffix = ".yaml"

var listingKeys = []string{keymap.Title, keymap.MimeType}

// FileSystem is a read-only view of the registered sources. Each source is
// a top-level directory, containers are directories and every other object
// is a YAML file holding its metadata.
type FileSystem struct {
	catalog frontend.Catalog
	config  *Config
	logger  *slog.Logger
	stats   *Stats
}

// Config represents FUSE filesystem configuration
type Config struct {
	// Filesystem behavior
	DefaultUID  uint32        `yaml:"default_uid"`
	DefaultGID  uint32        `yaml:"default_gid"`
	FileMode    uint32        `yaml:"file_mode"`
	DirMode     uint32        `yaml:"dir_mode"`
	ListingTTL  time.Duration `yaml:"listing_ttl"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultConfig returns the filesystem defaults.
func DefaultConfig() *Config {
	return &Config{
		FileMode:    0444,
		DirMode:     0555,
		ListingTTL:  5 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

// Stats tracks filesystem operation statistics
type Stats struct {
	mu sync.RWMutex

	// Operation counts
	Lookups  int64 `json:"lookups"`
	Readdirs int64 `json:"readdirs"`
	Opens    int64 `json:"opens"`
	Reads    int64 `json:"reads"`

	// Data transfer
	BytesRead int64 `json:"bytes_read"`

	// Listing cache
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	// Error counts
	Errors int64 `json:"errors"`

	// Performance metrics
	AvgBrowseTime time.Duration `json:"avg_browse_time"`
}

// NewFileSystem creates a new FUSE filesystem over catalog.
func NewFileSystem(catalog frontend.Catalog, config *Config, logger *slog.Logger) *FileSystem {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystem{
		catalog: catalog,
		config:  config,
		logger:  logger.With("component", "fuse"),
		stats:   &Stats{},
	}
}

// Root returns the root inode
func (fsys *FileSystem) Root() fs.InodeEmbedder {
	return &rootNode{fs: fsys}
}

// GetStats returns current filesystem statistics
func (fsys *FileSystem) GetStats() *Stats {
	fsys.stats.mu.RLock()
	defer fsys.stats.mu.RUnlock()

	return &Stats{
		Lookups:       fsys.stats.Lookups,
		Readdirs:      fsys.stats.Readdirs,
		Opens:         fsys.stats.Opens,
		Reads:         fsys.stats.Reads,
		BytesRead:     fsys.stats.BytesRead,
		CacheHits:     fsys.stats.CacheHits,
		CacheMisses:   fsys.stats.CacheMisses,
		Errors:        fsys.stats.Errors,
		AvgBrowseTime: fsys.stats.AvgBrowseTime,
	}
}

// rootNode lists one directory per source.
type rootNode struct {
	fs.Inode
	fs *FileSystem
}

var (
	_ fs.NodeReaddirer = (*rootNode)(nil)
	_ fs.NodeLookuper  = (*rootNode)(nil)
	_ fs.NodeGetattrer = (*rootNode)(nil)
)

func (r *rootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	r.fs.count(func(s *Stats) { s.Readdirs++ })

	sources := r.fs.catalog.List()
	entries := make([]fuse.DirEntry, 0, len(sources))
	for _, src := range sources {
		entries = append(entries, fuse.DirEntry{Name: src.ID(), Mode: fuse.S_IFDIR})
	}
	return fs.NewListDirStream(entries), 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	r.fs.count(func(s *Stats) { s.Lookups++ })

	src, ok := r.fs.catalog.Get(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	r.fs.dirAttr(&out.Attr)
	child := &dirNode{fs: r.fs, src: src, objectID: objectid.EncodeRoot(src.ID())}
	return r.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

func (r *rootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	r.fs.dirAttr(&out.Attr)
	return 0
}

// entry is one child of a container as it appears in the tree.
type entry struct {
	name     string
	objectID string
	dir      bool
}

// dirNode is a container of one source.
type dirNode struct {
	fs.Inode
	fs       *FileSystem
	src      types.Source
	objectID string

	mu       sync.Mutex
	entries  []entry
	loadedAt time.Time
}

var (
	_ fs.NodeReaddirer = (*dirNode)(nil)
	_ fs.NodeLookuper  = (*dirNode)(nil)
	_ fs.NodeGetattrer = (*dirNode)(nil)
	_ fs.NodeMkdirer   = (*dirNode)(nil)
	_ fs.NodeCreater   = (*dirNode)(nil)
	_ fs.NodeUnlinker  = (*dirNode)(nil)
)

func (n *dirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	n.fs.count(func(s *Stats) { s.Readdirs++ })

	entries, errno := n.children(ctx)
	if errno != 0 {
		return nil, errno
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.dir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

func (n *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.fs.count(func(s *Stats) { s.Lookups++ })

	entries, errno := n.children(ctx)
	if errno != 0 {
		return nil, errno
	}
	for _, e := range entries {
		if e.name != name {
			continue
		}
		if e.dir {
			n.fs.dirAttr(&out.Attr)
			child := &dirNode{fs: n.fs, src: n.src, objectID: e.objectID}
			return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
		}
		child := &fileNode{fs: n.fs, src: n.src, objectID: e.objectID}
		n.fs.fileAttr(&out.Attr, 0)
		return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG}), 0
	}
	return nil, syscall.ENOENT
}

func (n *dirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fs.dirAttr(&out.Attr)
	return 0
}

func (n *dirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (n *dirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

func (n *dirNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EROFS
}

// children browses the container, reusing the last listing while it is
// younger than ListingTTL.
func (n *dirNode) children(ctx context.Context) ([]entry, syscall.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.entries != nil && time.Since(n.loadedAt) < n.fs.config.ListingTTL {
		n.fs.count(func(s *Stats) { s.CacheHits++ })
		return n.entries, 0
	}
	n.fs.count(func(s *Stats) { s.CacheMisses++ })

	ctx, cancel := n.fs.callContext(ctx)
	defer cancel()

	start := time.Now()
	results, err := frontend.Browse(ctx, n.src, types.BrowseRequest{
		ObjectID: n.objectID,
		Keys:     listingKeys,
	})
	n.fs.recordBrowseTime(time.Since(start))
	if err != nil {
		n.fs.count(func(s *Stats) { s.Errors++ })
		n.fs.logger.Warn("Browse failed", "object_id", n.objectID, "error", err)
		return nil, toErrno(err)
	}

	n.entries = entriesFor(results)
	n.loadedAt = time.Now()
	return n.entries, 0
}

// fileNode renders the metadata of a single object.
type fileNode struct {
	fs.Inode
	fs       *FileSystem
	src      types.Source
	objectID string

	mu      sync.Mutex
	content []byte
}

var (
	_ fs.NodeGetattrer = (*fileNode)(nil)
	_ fs.NodeOpener    = (*fileNode)(nil)
	_ fs.NodeReader    = (*fileNode)(nil)
	_ fs.NodeSetattrer = (*fileNode)(nil)
)

func (f *fileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, errno := f.load(ctx)
	if errno != 0 {
		return errno
	}
	f.fs.fileAttr(&out.Attr, len(data))
	return 0
}

func (f *fileNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f.fs.count(func(s *Stats) { s.Opens++ })

	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_CREAT|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	if _, errno := f.load(ctx); errno != 0 {
		return nil, 0, errno
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *fileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, errno := f.load(ctx)
	if errno != 0 {
		return nil, errno
	}

	chunk := sliceAt(data, off, len(dest))
	f.fs.count(func(s *Stats) {
		s.Reads++
		s.BytesRead += int64(len(chunk))
	})
	return fuse.ReadResultData(chunk), 0
}

// load fetches and renders the metadata once per node.
func (f *fileNode) load(ctx context.Context) ([]byte, syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.content != nil {
		return f.content, 0
	}

	ctx, cancel := f.fs.callContext(ctx)
	defer cancel()

	res, err := frontend.Metadata(ctx, f.src, f.objectID, []string{types.Wildcard})
	if err != nil {
		f.fs.count(func(s *Stats) { s.Errors++ })
		f.fs.logger.Warn("Metadata failed", "object_id", f.objectID, "error", err)
		return nil, toErrno(err)
	}

	data, err := render(f.objectID, res.Metadata)
	if err != nil {
		f.fs.logger.Error("Render failed", "object_id", f.objectID, "error", err)
		return nil, syscall.EIO
	}
	f.content = data
	return data, 0
}

// Helper methods for FileSystem

func (fsys *FileSystem) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if fsys.config.CallTimeout > 0 {
		return context.WithTimeout(ctx, fsys.config.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (fsys *FileSystem) dirAttr(out *fuse.Attr) {
	out.Mode = fuse.S_IFDIR | fsys.config.DirMode
	out.Uid = fsys.config.DefaultUID
	out.Gid = fsys.config.DefaultGID
}

func (fsys *FileSystem) fileAttr(out *fuse.Attr, size int) {
	out.Mode = fuse.S_IFREG | fsys.config.FileMode
	out.Size = uint64(max(size, 0))
	out.Uid = fsys.config.DefaultUID
	out.Gid = fsys.config.DefaultGID
}

func (fsys *FileSystem) count(fn func(*Stats)) {
	fsys.stats.mu.Lock()
	defer fsys.stats.mu.Unlock()
	fn(fsys.stats)
}

func (fsys *FileSystem) recordBrowseTime(duration time.Duration) {
	fsys.stats.mu.Lock()
	defer fsys.stats.mu.Unlock()

	if fsys.stats.AvgBrowseTime == 0 {
		fsys.stats.AvgBrowseTime = duration
	} else {
		fsys.stats.AvgBrowseTime = time.Duration(
			(int64(fsys.stats.AvgBrowseTime)*9 + int64(duration)) / 10,
		)
	}
}

// entriesFor names browse results. Containers become directories named by
// title, everything else a metadata file. Collisions get a numeric suffix.
func entriesFor(results []types.BrowseResult) []entry {
	entries := make([]entry, 0, len(results))
	used := make(map[string]int, len(results))

	for _, r := range results {
		dir := isContainer(r.Metadata)
		base := baseName(r)

		name := base
		if n := used[base]; n > 0 {
			name = fmt.Sprintf("%s (%d)", base, n+1)
		}
		used[base]++
		if !dir {
			name += metadataSuffix
		}
		entries = append(entries, entry{name: name, objectID: r.ObjectID, dir: dir})
	}
	return entries
}

func isContainer(meta map[string]any) bool {
	mime, _ := meta[keymap.MimeType].(string)
	return mime == keymap.ContainerMime
}

// baseName picks a path element for r: its title, else its native id.
func baseName(r types.BrowseResult) string {
	name, _ := r.Metadata[keymap.Title].(string)
	if strings.TrimSpace(name) == "" {
		if ref, err := objectid.Decode(r.ObjectID); err == nil {
			name = ref.ID
		}
	}
	name = strings.Map(func(c rune) rune {
		if c == '/' || c == 0 {
			return '_'
		}
		return c
	}, strings.TrimSpace(name))
	switch name {
	case "", ".", "..":
		return "_"
	}
	return name
}

// render formats metadata as YAML with keys in sorted order.
func render(objectID string, meta map[string]any) ([]byte, error) {
	doc := yaml.MapSlice{{Key: "object_id", Value: objectID}}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc = append(doc, yaml.MapItem{Key: k, Value: meta[k]})
	}
	return yaml.Marshal(doc)
}

func sliceAt(data []byte, off int64, size int) []byte {
	if off < 0 || off >= int64(len(data)) || size <= 0 {
		return nil
	}
	end := off + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end]
}

// toErrno maps adapter errors onto the closest errno.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.IsCode(err, errors.ErrCodeNotFound), errors.IsCode(err, errors.ErrCodeInvalidIdentifier):
		return syscall.ENOENT
	case errors.IsCode(err, errors.ErrCodeUnimplemented):
		return syscall.ENOTSUP
	case errors.IsCode(err, errors.ErrCodeOperationCanceled):
		return syscall.EINTR
	case stderrors.Is(err, context.Canceled):
		return syscall.EINTR
	case stderrors.Is(err, context.DeadlineExceeded):
		return syscall.ETIMEDOUT
	default:
		return syscall.EIO
	}
}
