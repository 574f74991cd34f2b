package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
	"github.com/matzehuels/emerl/pkg/pipeline"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "emerl.toml", `
store = "badger:/tmp/erl"
mode = "chunked"
chunk_count = 8
resolution = [40, 4, 4]
intervals = [0, 1000, 5000]
merge_threshold = 2

[skeleton_lengths]
"12" = 350.5

[keys]
lookup = "run1/lookup"
`)
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Store != "badger:/tmp/erl" {
		t.Errorf("Store = %q", opts.Store)
	}
	if opts.Mode != pipeline.ModeChunked || opts.ChunkCount != 8 {
		t.Errorf("Mode = %q, ChunkCount = %d", opts.Mode, opts.ChunkCount)
	}
	if opts.Resolution != [3]int64{40, 4, 4} {
		t.Errorf("Resolution = %v", opts.Resolution)
	}
	if len(opts.Intervals) != 3 || opts.Intervals[2] != 5000 {
		t.Errorf("Intervals = %v", opts.Intervals)
	}
	if opts.SkeletonLengths["12"] != 350.5 {
		t.Errorf("SkeletonLengths = %v", opts.SkeletonLengths)
	}
	if opts.Keys.Lookup != "run1/lookup" {
		t.Errorf("Keys.Lookup = %q", opts.Keys.Lookup)
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Errorf("ValidateAndSetDefaults: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "emerl.yml", `
mode: tiled
tile_factor: [1, 512, 512]
tile_grid: [4, 2, 2]
workers: 4
use_mask: true
`)
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Mode != pipeline.ModeTiled {
		t.Errorf("Mode = %q", opts.Mode)
	}
	if opts.TileFactor != [3]int{1, 512, 512} || opts.TileGrid != [3]int{4, 2, 2} {
		t.Errorf("TileFactor = %v, TileGrid = %v", opts.TileFactor, opts.TileGrid)
	}
	if opts.Workers != 4 || !opts.UseMask {
		t.Errorf("Workers = %d, UseMask = %v", opts.Workers, opts.UseMask)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	path := writeFile(t, "empty.yaml", "")
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Mode != "" {
		t.Errorf("Mode = %q, want empty", opts.Mode)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		code    emerrors.Code
	}{
		{"unknown toml key", "a.toml", "bogus = 1\n", emerrors.ErrCodeInvalidInput},
		{"unknown yaml key", "a.yaml", "bogus: 1\n", emerrors.ErrCodeInvalidInput},
		{"bad toml", "a.toml", "mode = \n", emerrors.ErrCodeInvalidInput},
		{"wrong type", "a.yaml", "chunk_count: many\n", emerrors.ErrCodeInvalidInput},
		{"unknown extension", "a.ini", "mode=full\n", emerrors.ErrCodeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !emerrors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !emerrors.Is(err, emerrors.ErrCodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"x.toml", FormatTOML},
		{"x.TOML", FormatTOML},
		{"dir/x.yaml", FormatYAML},
		{"x.yml", FormatYAML},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		if err != nil || got != tt.want {
			t.Errorf("FormatOf(%q) = %q, %v; want %q", tt.path, got, err, tt.want)
		}
	}
	if _, err := FormatOf("x.json"); err == nil {
		t.Error("FormatOf(x.json) should fail")
	}
}

func TestWriteDefault(t *testing.T) {
	for _, name := range []string{"emerl.toml", "emerl.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			if err := WriteDefault(path); err != nil {
				t.Fatalf("WriteDefault: %v", err)
			}
			opts, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if opts.Mode != pipeline.DefaultMode {
				t.Errorf("Mode = %q, want %q", opts.Mode, pipeline.DefaultMode)
			}
			if opts.Keys != pipeline.DefaultKeys() {
				t.Errorf("Keys = %+v, want defaults", opts.Keys)
			}
			if err := WriteDefault(path); err == nil {
				t.Error("second WriteDefault should fail")
			}
		})
	}
}

func TestEncodeTOMLOmitsRuntimeFields(t *testing.T) {
	var sb strings.Builder
	if err := Encode(&sb, pipeline.Options{Mode: "full"}, FormatTOML); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.ToLower(sb.String()), "logger") {
		t.Errorf("encoded config contains logger:\n%s", sb.String())
	}
}
