package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/grilobridge/grilobridge/internal/config"
	"github.com/grilobridge/grilobridge/internal/metrics"
	"github.com/grilobridge/grilobridge/internal/plugin"
	"github.com/grilobridge/grilobridge/internal/registry"
	"github.com/grilobridge/grilobridge/internal/storage/memory"
	"github.com/grilobridge/grilobridge/internal/storage/s3"
	"github.com/grilobridge/grilobridge/pkg/retry"
	"github.com/grilobridge/grilobridge/pkg/types"
	"github.com/grilobridge/grilobridge/pkg/utils"
)

// app is everything a command needs once the plugin is initialized.
type app struct {
	config     *config.Configuration
	logger     *slog.Logger
	logCloser  io.Closer
	metrics    *metrics.Collector
	providers  *registry.Providers
	extensions *registry.Extensions
	manager    *plugin.Manager

	mu      sync.Mutex
	buckets map[string]*s3.Provider
}

// loadConfig builds the configuration from defaults, the optional file and
// the environment, in that order.
func loadConfig(path string) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openApp sets up logging and metrics, then initializes the plugin, which
// loads every configured provider.
func openApp(ctx context.Context, cfg *config.Configuration) (*app, error) {
	logger, closer, err := utils.SetupLogging(utils.LogOptions{
		Level:      cfg.Global.LogLevel,
		Format:     cfg.Global.LogFormat,
		File:       cfg.Global.LogFile,
		MaxSizeMB:  cfg.Global.LogMaxSizeMB,
		MaxBackups: cfg.Global.LogMaxBackups,
		Compress:   cfg.Global.LogCompress,
	})
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Address:   cfg.Metrics.Address,
		Path:      cfg.Metrics.Path,
		Namespace: cfg.Metrics.Namespace,
		Labels:    cfg.Metrics.Labels,
	}, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	a := &app{
		config:     cfg,
		logger:     logger,
		logCloser:  closer,
		metrics:    collector,
		extensions: registry.NewExtensions(logger),
		buckets:    make(map[string]*s3.Provider),
	}
	a.providers = registry.NewProviders(logger, a.loadCatalogs, a.openBuckets)

	// Resolutions were checked by Validate.
	browseRes, _ := types.ParseResolution(cfg.Plugin.BrowseResolution)
	metadataRes, _ := types.ParseResolution(cfg.Plugin.MetadataResolution)

	a.manager = plugin.NewManager(plugin.Options{
		Logger:             logger,
		Metrics:            collector,
		RequireResolve:     cfg.Plugin.RequireResolve,
		BrowseResolution:   browseRes,
		MetadataResolution: metadataRes,
		DefaultMime:        cfg.Plugin.DefaultMime,
		IdleRelay:          cfg.Plugin.IdleRelay,
	})
	if err := a.manager.Initialize(ctx, a.providers, a.extensions); err != nil {
		_ = closer.Close()
		return nil, err
	}

	logger.Info("grilobridge ready", "sources", a.extensions.Len())
	return a, nil
}

// Close releases every source and the log file.
func (a *app) Close() {
	a.manager.Deinitialize()
	_ = a.logCloser.Close()
}

// loadCatalogs is the registry loader for static catalogs. A broken catalog
// fails startup.
func (a *app) loadCatalogs(context.Context) ([]types.Provider, error) {
	var found []types.Provider
	for _, path := range a.config.Providers.Catalogs {
		c, err := memory.LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		p, err := memory.New(c, a.logger)
		if err != nil {
			return nil, err
		}
		found = append(found, p)
	}
	return found, nil
}

// openBuckets is the registry loader for S3 buckets. Transient failures are
// retried; a bucket that still cannot be opened is skipped so the others
// stay available.
func (a *app) openBuckets(ctx context.Context) ([]types.Provider, error) {
	r := retry.New(retry.Config{
		MaxAttempts:  a.config.Providers.OpenAttempts,
		InitialDelay: a.config.Providers.OpenBackoff,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	})

	var found []types.Provider
	for _, pc := range a.config.Providers.S3 {
		cfg := s3Config(pc)
		logger := a.logger.With("provider", cfg.ProviderID(), "bucket", cfg.Bucket)

		var p *s3.Provider
		err := r.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("failed to open bucket, retrying", "attempt", attempt, "delay", delay, "error", err)
		}).Do(ctx, func(ctx context.Context) error {
			var err error
			p, err = s3.Open(ctx, cfg, a.logger)
			return err
		})
		if err != nil {
			logger.Error("skipping bucket", "error", err)
			continue
		}

		a.mu.Lock()
		a.buckets[p.ID()] = p
		a.mu.Unlock()
		found = append(found, p)
	}
	return found, nil
}

// Buckets returns the ids of the opened S3 providers, sorted.
func (a *app) Buckets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.buckets))
	for id := range a.buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// checkSource is the periodic health probe. Only buckets can fail it.
func (a *app) checkSource(ctx context.Context, id string) error {
	a.mu.Lock()
	p, ok := a.buckets[id]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.HealthCheck(ctx)
}

// bucketStats describes the breaker and request counters of bucket id for
// health reports. ok is false for anything but an opened bucket.
func (a *app) bucketStats(id string) (map[string]interface{}, bool) {
	a.mu.Lock()
	p, ok := a.buckets[id]
	a.mu.Unlock()
	if !ok {
		return nil, false
	}

	m := p.GetMetrics()
	stats := map[string]interface{}{
		"breaker":  p.BreakerState().String(),
		"requests": m.Requests,
		"errors":   m.Errors,
	}
	if m.LastError != "" {
		stats["last_error"] = m.LastError
	}
	return stats, true
}

// s3Config maps a configured bucket onto the provider config, keeping the
// provider defaults for unset fields.
func s3Config(pc config.S3ProviderConfig) *s3.Config {
	cfg := s3.NewDefaultConfig()
	cfg.ID = pc.ID
	cfg.Name = pc.Name
	cfg.Bucket = pc.Bucket
	cfg.Prefix = pc.Prefix
	if pc.Region != "" {
		cfg.Region = pc.Region
	}
	cfg.Endpoint = pc.Endpoint
	cfg.AccessKeyID = pc.AccessKeyID
	cfg.SecretAccessKey = pc.SecretAccessKey
	cfg.SessionToken = pc.SessionToken
	cfg.ForcePathStyle = pc.ForcePathStyle
	if pc.MaxRetries > 0 {
		cfg.MaxRetries = pc.MaxRetries
	}
	cfg.Resolve = pc.Resolve
	return cfg
}
