// Package observability provides hooks for metrics and tracing.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about lookup construction, evaluation, and artifact store
// operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Libraries never import a metrics backend; [Prometheus] implements every
// hook interface and is registered by the CLI when a metrics file is
// requested.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    prom := observability.NewPrometheus()
//	    observability.SetLookupHooks(prom)
//	    observability.SetEvalHooks(prom)
//	    observability.SetStoreHooks(prom)
//	    // ... run application
//	    _ = prom.WriteTextfile("metrics.prom")
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Lookup().OnChunkStart(ctx, i, n)
//	// ... read and index slab ...
//	observability.Lookup().OnChunkComplete(ctx, i, nodes, duration)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Lookup Hooks
// =============================================================================

// LookupHooks receives events from lookup table construction.
type LookupHooks interface {
	// Chunked build events
	OnChunkStart(ctx context.Context, chunk, total int)
	OnChunkComplete(ctx context.Context, chunk, nodes int, duration time.Duration)

	// Tiled build events. skipped is true when the tile output already existed.
	OnTileComplete(ctx context.Context, tile string, included int, skipped bool, duration time.Duration, err error)

	// Combine events
	OnCombineComplete(ctx context.Context, tiles int, duration time.Duration, err error)
}

// =============================================================================
// Evaluation Hooks
// =============================================================================

// EvalHooks receives events from skeleton evaluation and ERL aggregation.
type EvalHooks interface {
	// OnEvaluateStart records the size of the graph being evaluated.
	OnEvaluateStart(ctx context.Context, skeletons, edges int)

	// OnEvaluateComplete records edge classification totals.
	OnEvaluateComplete(ctx context.Context, omitted, split, merged, correct int, duration time.Duration)

	// OnERL records the aggregate metric and its perfect-reconstruction reference.
	OnERL(ctx context.Context, erl, skelAll float64)
}

// =============================================================================
// Store Hooks
// =============================================================================

// StoreHooks receives events from artifact store operations.
type StoreHooks interface {
	// OnStoreHit records a successful read.
	OnStoreHit(ctx context.Context, kind string, size int)

	// OnStoreMiss records a read of an absent key.
	OnStoreMiss(ctx context.Context, kind string)

	// OnStorePut records a write.
	OnStorePut(ctx context.Context, kind string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopLookupHooks is a no-op implementation of LookupHooks.
type NoopLookupHooks struct{}

func (NoopLookupHooks) OnChunkStart(context.Context, int, int)                   {}
func (NoopLookupHooks) OnChunkComplete(context.Context, int, int, time.Duration) {}
func (NoopLookupHooks) OnTileComplete(context.Context, string, int, bool, time.Duration, error) {
}
func (NoopLookupHooks) OnCombineComplete(context.Context, int, time.Duration, error) {}

// NoopEvalHooks is a no-op implementation of EvalHooks.
type NoopEvalHooks struct{}

func (NoopEvalHooks) OnEvaluateStart(context.Context, int, int)                             {}
func (NoopEvalHooks) OnEvaluateComplete(context.Context, int, int, int, int, time.Duration) {}
func (NoopEvalHooks) OnERL(context.Context, float64, float64)                               {}

// NoopStoreHooks is a no-op implementation of StoreHooks.
type NoopStoreHooks struct{}

func (NoopStoreHooks) OnStoreHit(context.Context, string, int) {}
func (NoopStoreHooks) OnStoreMiss(context.Context, string)     {}
func (NoopStoreHooks) OnStorePut(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	lookupHooks LookupHooks = NoopLookupHooks{}
	evalHooks   EvalHooks   = NoopEvalHooks{}
	storeHooks  StoreHooks  = NoopStoreHooks{}
	hooksMu     sync.RWMutex
)

// SetLookupHooks registers custom lookup hooks.
// This should be called once at application startup before any lookup builds.
func SetLookupHooks(h LookupHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		lookupHooks = h
	}
}

// SetEvalHooks registers custom evaluation hooks.
func SetEvalHooks(h EvalHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		evalHooks = h
	}
}

// SetStoreHooks registers custom store hooks.
func SetStoreHooks(h StoreHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storeHooks = h
	}
}

// Lookup returns the registered lookup hooks.
func Lookup() LookupHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return lookupHooks
}

// Eval returns the registered evaluation hooks.
func Eval() EvalHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return evalHooks
}

// Store returns the registered store hooks.
func Store() StoreHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storeHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	lookupHooks = NoopLookupHooks{}
	evalHooks = NoopEvalHooks{}
	storeHooks = NoopStoreHooks{}
}
