/*
Package types defines the contracts shared by grilobridge components.

Two vocabularies meet here. Providers speak the native one: records from
package media, native keys, and channels of BrowseDelivery / ResolveDelivery
values. Frontends speak the caller one: Source, string object ids, string
attribute keys and the BrowseResult / MetadataResult messages passed to
callbacks.

	┌──────────────────────────────────────────┐
	│  Frontends (HTTP API, FUSE view, CLI)    │
	└──────────────────────────────────────────┘
	                    │ Source
	┌──────────────────────────────────────────┐
	│  Adapter instances (internal/adapter)    │
	└──────────────────────────────────────────┘
	                    │ Provider
	┌──────────────────────────────────────────┐
	│  Providers (internal/storage/s3, ...)    │
	└──────────────────────────────────────────┘

# Provider contract

Browse and Resolve return an operation id at once and report through the
channel they were given. The last browse delivery carries Remaining == 0 or
an error. Cancel is advisory: the provider still reports a terminal
delivery for the cancelled operation.

# Callback delivery

Every BrowseFunc and MetadataFunc runs on a single delivery goroutine, so
callers never see two callbacks at once.
*/
package types
