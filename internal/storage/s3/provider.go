package s3

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/grilobridge/grilobridge/internal/circuit"
	"github.com/grilobridge/grilobridge/internal/storage/ops"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

var supportedKeys = []media.Key{
	media.KeyID,
	media.KeyTitle,
	media.KeyURL,
	media.KeyMime,
	media.KeyArtist,
	media.KeyAlbum,
	media.KeyGenre,
	media.KeyDescription,
}

// Provider exposes a bucket prefix as a browsable tree: common prefixes are
// boxes and objects with a known media extension are audio, video or image
// records. Record ids are full object keys.
type Provider struct {
	api     API
	config  *Config
	kinds   *media.Registry
	logger  *slog.Logger
	breaker *circuit.Breaker
	ops     *ops.Table

	mu      sync.Mutex
	metrics ProviderMetrics
}

// ProviderMetrics tracks request statistics against the bucket.
type ProviderMetrics struct {
	Requests       int64         `json:"requests"`
	Errors         int64         `json:"errors"`
	AverageLatency time.Duration `json:"average_latency"`
	LastError      string        `json:"last_error,omitempty"`
	LastErrorTime  time.Time     `json:"last_error_time,omitempty"`
}

var _ types.Provider = (*Provider)(nil)

// NewProvider creates a provider over api.
func NewProvider(api API, cfg *Config, logger *slog.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		api:    api,
		config: cfg,
		kinds:  media.Builtin(),
		logger: logger.With("component", "s3-provider", "bucket", cfg.Bucket),
		ops:    ops.NewTable(),
	}

	breakerConfig := cfg.Breaker
	breakerConfig.OnStateChange = func(name string, from, to circuit.State) {
		p.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}
	p.breaker = circuit.New("s3:"+cfg.Bucket, breakerConfig)
	return p, nil
}

// ID implements types.Provider.
func (p *Provider) ID() string { return p.config.ProviderID() }

// Name implements types.Provider.
func (p *Provider) Name() string { return p.config.DisplayName() }

// Operations implements types.Provider.
func (p *Provider) Operations() types.Ops {
	if p.config.Resolve {
		return types.OpBrowse | types.OpResolve
	}
	return types.OpBrowse
}

// SupportedKeys implements types.Provider.
func (p *Provider) SupportedKeys() []media.Key {
	return append([]media.Key(nil), supportedKeys...)
}

// Browse implements types.Provider.
func (p *Provider) Browse(ctx context.Context, spec types.BrowseSpec, results chan<- types.BrowseDelivery) uint {
	return p.ops.Browse(ctx, results, spec.Skip, spec.Count, func(ctx context.Context) ([]media.Record, error) {
		return p.children(ctx, spec.Container, spec.Keys)
	})
}

// Resolve implements types.Provider.
func (p *Provider) Resolve(ctx context.Context, spec types.ResolveSpec, results chan<- types.ResolveDelivery) uint {
	return p.ops.Resolve(ctx, results, func(ctx context.Context) (media.Record, error) {
		rec := spec.Record
		switch {
		case rec.IsContainer() && rec.ID() == "":
			root := media.NewBox()
			root.Set(media.KeyTitle, p.Name())
			return root, nil
		case rec.IsContainer():
			if !p.owns(rec.ID()) {
				return nil, notFound(rec.ID())
			}
			return p.boxRecord(rec.ID(), spec.Keys), nil
		default:
			return p.head(ctx, rec.ID(), spec.Keys)
		}
	})
}

// Cancel implements types.Provider.
func (p *Provider) Cancel(opID uint) {
	if p.ops.Cancel(opID) {
		p.logger.Debug("operation cancelled", "op_id", opID)
	}
}

// HealthCheck verifies that the bucket is reachable. It bypasses the
// circuit breaker and closes it when the bucket answers.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.config.Bucket),
	})
	if err != nil {
		return p.translateError(err, "head_bucket", p.config.Bucket)
	}
	if p.breaker.State() != circuit.StateClosed {
		p.breaker.Reset()
	}
	return nil
}

// BreakerState reports the circuit breaker guarding the bucket.
func (p *Provider) BreakerState() circuit.State {
	return p.breaker.State()
}

// GetMetrics returns current request statistics.
func (p *Provider) GetMetrics() ProviderMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// children lists the records under container. Browsing an object yields
// the object itself.
func (p *Provider) children(ctx context.Context, container media.Record, keys []media.Key) ([]media.Record, error) {
	prefix := p.config.Prefix
	if container != nil && container.ID() != "" {
		if !container.IsContainer() {
			rec, err := p.head(ctx, container.ID(), keys)
			if err != nil {
				return nil, err
			}
			return []media.Record{rec}, nil
		}
		if !p.owns(container.ID()) {
			return nil, notFound(container.ID())
		}
		prefix = container.ID()
	}
	return p.list(ctx, prefix, keys)
}

// list returns the boxes then the media objects directly under prefix.
func (p *Provider) list(ctx context.Context, prefix string, keys []media.Key) ([]media.Record, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.config.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	if p.config.PageSize > 0 {
		input.MaxKeys = aws.Int32(p.config.PageSize)
	}

	var boxes, items []media.Record
	paginator := s3.NewListObjectsV2Paginator(p.api, input)
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := p.breaker.Execute(ctx, func(ctx context.Context) error {
			start := time.Now()
			var err error
			page, err = paginator.NextPage(ctx)
			p.recordMetrics(time.Since(start), err)
			if err != nil {
				return p.translateError(err, "ListObjectsV2", prefix)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, cp := range page.CommonPrefixes {
			boxes = append(boxes, p.boxRecord(aws.ToString(cp.Prefix), keys))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}
			mime := detectContentType(key)
			kind := kindFor(mime)
			if kind == "" {
				continue
			}
			items = append(items, p.objectRecord(key, kind, mime, nil, keys))
		}
	}

	return append(boxes, items...), nil
}

// head resolves a single object.
func (p *Provider) head(ctx context.Context, key string, keys []media.Key) (media.Record, error) {
	if !p.owns(key) {
		return nil, notFound(key)
	}

	var out *s3.HeadObjectOutput
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		start := time.Now()
		var err error
		out, err = p.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.config.Bucket),
			Key:    aws.String(key),
		})
		p.recordMetrics(time.Since(start), err)
		if err != nil {
			return p.translateError(err, "HeadObject", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	mime := aws.ToString(out.ContentType)
	if kindFor(mime) == "" {
		mime = detectContentType(key)
	}
	kind := kindFor(mime)
	if kind == "" {
		kind = media.TypeMedia
	}
	return p.objectRecord(key, kind, mime, out.Metadata, keys), nil
}

func (p *Provider) boxRecord(prefix string, keys []media.Key) media.Record {
	box := media.NewBox()
	box.SetID(prefix)
	setKeys(box, keys, map[media.Key]string{
		media.KeyTitle: titleFor(prefix),
	})
	return box
}

// objectRecord builds a record for key. User metadata (x-amz-meta-*)
// supplies tags when present.
func (p *Provider) objectRecord(key, kind, mime string, meta map[string]string, keys []media.Key) media.Record {
	rec, ok := p.kinds.New(kind)
	if !ok {
		rec = media.NewMedia()
	}
	rec.SetID(key)

	title := meta["title"]
	if title == "" {
		title = titleFor(key)
	}
	setKeys(rec, keys, map[media.Key]string{
		media.KeyTitle:       title,
		media.KeyURL:         "s3://" + p.config.Bucket + "/" + key,
		media.KeyMime:        mime,
		media.KeyArtist:      meta["artist"],
		media.KeyAlbum:       meta["album"],
		media.KeyGenre:       meta["genre"],
		media.KeyDescription: meta["description"],
	})
	return rec
}

// owns reports whether key lies under the configured prefix.
func (p *Provider) owns(key string) bool {
	return strings.HasPrefix(key, p.config.Prefix)
}

func (p *Provider) recordMetrics(duration time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.Requests++
	if err != nil {
		p.metrics.Errors++
		p.metrics.LastError = err.Error()
		p.metrics.LastErrorTime = time.Now()
	}

	// Calculate rolling average latency
	if p.metrics.Requests == 1 {
		p.metrics.AverageLatency = duration
	} else {
		p.metrics.AverageLatency = time.Duration(
			(int64(p.metrics.AverageLatency)*9 + int64(duration)) / 10,
		)
	}
}

func (p *Provider) translateError(err error, operation, key string) error {
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return notFound(key)
	case isErrorType[*s3types.NoSuchBucket](err):
		return errors.NewError(errors.ErrCodeNotFound, "bucket not found").
			WithComponent("s3-provider").
			WithOperation(operation).
			WithDetail("bucket", p.config.Bucket)
	default:
		return errors.Wrap(errors.ErrCodeBackendError, fmt.Sprintf("%s failed for %s", operation, key), err).
			WithComponent("s3-provider").
			WithOperation(operation)
	}
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}

func setKeys(rec media.Record, keys []media.Key, values map[media.Key]string) {
	for _, k := range keys {
		if v := values[k]; v != "" {
			rec.Set(k, v)
		}
	}
}

func notFound(key string) error {
	return errors.NewError(errors.ErrCodeNotFound, "no such object").
		WithComponent("s3-provider").
		WithDetail("key", key)
}
