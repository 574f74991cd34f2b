package observability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Lookup hooks
	l := NoopLookupHooks{}
	l.OnChunkStart(ctx, 0, 4)
	l.OnChunkComplete(ctx, 0, 100, time.Second)
	l.OnTileComplete(ctx, "0_0_0", 10, false, time.Second, nil)
	l.OnCombineComplete(ctx, 8, time.Second, nil)

	// Eval hooks
	e := NoopEvalHooks{}
	e.OnEvaluateStart(ctx, 3, 10)
	e.OnEvaluateComplete(ctx, 1, 2, 3, 4, time.Second)
	e.OnERL(ctx, 1.5, 2.0)

	// Store hooks
	s := NoopStoreHooks{}
	s.OnStoreHit(ctx, "lut", 1024)
	s.OnStoreMiss(ctx, "graph")
	s.OnStorePut(ctx, "seg", 1024)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Lookup().(NoopLookupHooks); !ok {
		t.Error("Lookup() should return NoopLookupHooks by default")
	}
	if _, ok := Eval().(NoopEvalHooks); !ok {
		t.Error("Eval() should return NoopEvalHooks by default")
	}
	if _, ok := Store().(NoopStoreHooks); !ok {
		t.Error("Store() should return NoopStoreHooks by default")
	}

	// Set custom hooks
	customLookup := &testLookupHooks{}
	SetLookupHooks(customLookup)
	if Lookup() != customLookup {
		t.Error("SetLookupHooks should set custom hooks")
	}

	customEval := &testEvalHooks{}
	SetEvalHooks(customEval)
	if Eval() != customEval {
		t.Error("SetEvalHooks should set custom hooks")
	}

	customStore := &testStoreHooks{}
	SetStoreHooks(customStore)
	if Store() != customStore {
		t.Error("SetStoreHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Lookup().(NoopLookupHooks); !ok {
		t.Error("Reset() should restore NoopLookupHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testLookupHooks{}
	SetLookupHooks(custom)

	// Setting nil should be ignored
	SetLookupHooks(nil)

	if Lookup() != custom {
		t.Error("SetLookupHooks(nil) should be ignored")
	}

	Reset()
}

func TestPrometheus(t *testing.T) {
	ctx := context.Background()
	p := NewPrometheus()

	p.OnChunkComplete(ctx, 0, 10, time.Millisecond)
	p.OnChunkComplete(ctx, 1, 5, time.Millisecond)
	p.OnTileComplete(ctx, "0_0_0", 3, false, time.Millisecond, nil)
	p.OnTileComplete(ctx, "0_0_1", 0, true, 0, nil)
	p.OnTileComplete(ctx, "0_0_2", 0, false, 0, errors.New("boom"))
	p.OnEvaluateComplete(ctx, 1, 2, 3, 4, time.Millisecond)
	p.OnERL(ctx, 1.5, 2)
	p.OnStorePut(ctx, "lut", 100)
	p.OnStoreMiss(ctx, "lut")

	if got := testutil.ToFloat64(p.chunks); got != 2 {
		t.Errorf("chunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.chunkNodes); got != 15 {
		t.Errorf("chunk nodes = %v, want 15", got)
	}
	for result, want := range map[string]float64{"computed": 1, "skipped": 1, "error": 1} {
		if got := testutil.ToFloat64(p.tiles.WithLabelValues(result)); got != want {
			t.Errorf("tiles[%s] = %v, want %v", result, got, want)
		}
	}
	if got := testutil.ToFloat64(p.edges.WithLabelValues("correct")); got != 4 {
		t.Errorf("correct edges = %v, want 4", got)
	}
	if got := testutil.ToFloat64(p.erl); got != 1.5 {
		t.Errorf("erl = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(p.storeBytes.WithLabelValues("lut", "write")); got != 100 {
		t.Errorf("store bytes = %v, want 100", got)
	}

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "emerl_erl 1.5") {
		t.Errorf("textfile missing emerl_erl sample:\n%s", data)
	}
}

// Test implementations
type testLookupHooks struct{ NoopLookupHooks }
type testEvalHooks struct{ NoopEvalHooks }
type testStoreHooks struct{ NoopStoreHooks }
