/*
Package adapter implements the source instance: one types.Source per
accepted provider, translating caller requests into native provider
operations and provider deliveries back into caller callbacks.

# Request flow

	caller ──Browse──▶ Source ──codec/keymap──▶ Provider.Browse(ctx, spec, ch)
	                     │                               │
	                  tracker                        deliveries
	                     │                               ▼
	caller ◀──cb── delivery loop ◀──post── pump goroutine (one per request)

Browse registers the request before calling the provider, so a cancel that
arrives while the provider call is still running is remembered and issued as
soon as the native operation id is known. A request leaves the tracker
exactly once: on its terminal delivery (Remaining == 0 or an error), or when
Close drains the tracker during teardown, in which case the caller receives
OPERATION_CANCELED instead.

GetMetadata has no browse id and cannot be cancelled. Providers that declare
types.OpResolve are asked directly; others get a browse with skip 0 and
count 1 whose first delivery is forwarded. Extra deliveries are a provider
protocol violation: they are logged, counted and drained.

# Properties

Each source carries three runtime properties, set and read as strings:

	browse-resolution     fast-only | normal | full
	metadata-resolution   fast-only | normal | full
	default-mime          content kind for records without one

Watch subscribes to changes; notifications run on the delivery loop.

# Teardown

Close detaches the provider, cancels every in-flight browse, reports
OPERATION_CANCELED to their callers and cancels the context handed to the
provider. Afterwards Browse and GetMetadata report UNIMPLEMENTED
synchronously, the same behaviour as a source with no provider.
*/
package adapter
