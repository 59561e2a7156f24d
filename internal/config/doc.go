/*
Package config provides configuration management for grilobridge.

Configuration is assembled from three layers, later layers winning:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│          (GRILOBRIDGE_*)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	│           (NewDefault)                      │
	└─────────────────────────────────────────────┘

# Sections

	global:      log level, log file and log format
	plugin:      discovery filter and per-source property defaults
	api:         HTTP frontend address and timeouts
	metrics:     Prometheus endpoint
	fuse:        read-only mount point and kernel cache TTLs
	providers:   S3 buckets and YAML catalogs to expose as providers

# Example

	global:
	  log_level: INFO
	  log_format: json

	plugin:
	  require_resolve: false
	  browse_resolution: fast-only
	  metadata_resolution: full
	  default_mime: audio/unknown

	api:
	  enabled: true
	  address: 127.0.0.1:8080
	  browse_timeout: 30s

	metrics:
	  enabled: true
	  address: 127.0.0.1:9090
	  path: /metrics

	providers:
	  catalogs:
	    - /etc/grilobridge/radio.yaml
	  s3:
	    - id: music
	      bucket: my-media
	      prefix: music/
	      region: us-west-2

# Usage

	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

Environment variables:

	GRILOBRIDGE_LOG_LEVEL, GRILOBRIDGE_LOG_FILE, GRILOBRIDGE_LOG_FORMAT
	GRILOBRIDGE_REQUIRE_RESOLVE, GRILOBRIDGE_BROWSE_RESOLUTION,
	GRILOBRIDGE_METADATA_RESOLUTION, GRILOBRIDGE_DEFAULT_MIME
	GRILOBRIDGE_API_ENABLED, GRILOBRIDGE_API_ADDRESS, GRILOBRIDGE_BROWSE_TIMEOUT
	GRILOBRIDGE_METRICS_ENABLED, GRILOBRIDGE_METRICS_ADDRESS
	GRILOBRIDGE_MOUNT_POINT
	GRILOBRIDGE_CATALOGS (path list separated like PATH)
*/
package config
