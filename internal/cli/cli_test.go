package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/emerl/pkg/volume"
)

// execute runs one CLI invocation and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

type jsonResult struct {
	RunID string `json:"run_id"`
	ERL   struct {
		Total struct {
			ERL     float64 `json:"erl"`
			SkelAll float64 `json:"skel_all"`
			Count   int     `json:"count"`
		} `json:"total"`
		Intervals []struct {
			Count int `json:"count"`
		} `json:"intervals"`
	} `json:"erl"`
}

// setupWorkspace writes a skeleton file and a raw 4x4x4 uint8
// segmentation: row y=3 is segment 3, the rest splits at x=2 into
// segments 1 and 2. It returns the store flag and the two file paths.
func setupWorkspace(t *testing.T) (store, skeletons, raw string) {
	t.Helper()
	dir := t.TempDir()
	store = "file:" + filepath.Join(dir, "store")

	skeletons = filepath.Join(dir, "skeletons.json")
	if err := os.WriteFile(skeletons, []byte(`[
		{"id": 10, "vertices": [[1,1,0],[1,1,1],[1,1,2],[1,1,3]], "edges": [[0,1],[1,2],[2,3]]},
		{"id": 20, "vertices": [[0,3,0],[3,3,0]], "edges": [[0,1]]},
		{"id": 30, "vertices": [[0,0,0]], "edges": []}
	]`), 0o644); err != nil {
		t.Fatal(err)
	}

	var voxels []byte
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				switch {
				case y == 3:
					voxels = append(voxels, 3)
				case x < 2:
					voxels = append(voxels, 1)
				default:
					voxels = append(voxels, 2)
				}
			}
		}
	}
	raw = filepath.Join(dir, "seg.raw")
	if err := os.WriteFile(raw, voxels, 0o644); err != nil {
		t.Fatal(err)
	}

	mustExecute(t, "--store", store, "graph", "build", "--skeletons", skeletons)
	mustExecute(t, "--store", store, "volume", "import", raw, "--shape", "4,4,4", "--dtype", "uint8")
	return store, skeletons, raw
}

func decodeResult(t *testing.T, out string) jsonResult {
	t.Helper()
	var res jsonResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	return res
}

func checkERL(t *testing.T, res jsonResult) {
	t.Helper()
	if got, want := res.ERL.Total.ERL, 11.0/6; math.Abs(got-want) > 1e-9 {
		t.Errorf("erl = %v, want %v", got, want)
	}
	if got := res.ERL.Total.SkelAll; math.Abs(got-3) > 1e-9 {
		t.Errorf("skel_all = %v, want 3", got)
	}
	if res.ERL.Total.Count != 2 {
		t.Errorf("count = %d, want 2", res.ERL.Total.Count)
	}
	if res.RunID == "" {
		t.Error("empty run_id")
	}
}

func TestFullModeWorkflow(t *testing.T) {
	store, _, _ := setupWorkspace(t)

	mustExecute(t, "--store", store, "graph", "info")
	mustExecute(t, "--store", store, "volume", "info")
	mustExecute(t, "--store", store, "lut", "build")
	out := mustExecute(t, "--store", store, "eval", "--json", "--intervals", "0,2,10")
	res := decodeResult(t, out)
	checkERL(t, res)
	if len(res.ERL.Intervals) != 3 {
		t.Errorf("intervals = %d, want 3", len(res.ERL.Intervals))
	}

	// Table output runs without error.
	mustExecute(t, "--store", store, "eval", "--stats")
}

func TestEvalJSONStats(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	mustExecute(t, "--store", store, "lut", "build")

	out := mustExecute(t, "--store", store, "eval", "--json", "--stats")
	var res struct {
		ERL struct {
			PerSkeleton map[string]struct {
				Scores struct {
					Split int `json:"split"`
				} `json:"scores"`
			} `json:"per_skeleton"`
			Stats struct {
				Splits map[string][]struct {
					A uint64 `json:"a"`
					B uint64 `json:"b"`
				} `json:"splits"`
			} `json:"stats"`
		} `json:"erl"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	splits := res.ERL.Stats.Splits["10"]
	if len(splits) != 1 || splits[0].A != 1 || splits[0].B != 2 {
		t.Errorf("splits of skeleton 10 = %+v, want [{1 2}]", splits)
	}
	if got := res.ERL.PerSkeleton["10"].Scores.Split; got != 1 {
		t.Errorf("skeleton 10 split edges = %d, want 1", got)
	}

	// Without --stats the JSON stays a summary.
	out = mustExecute(t, "--store", store, "eval", "--json")
	if strings.Contains(out, "per_skeleton") || strings.Contains(out, "splits") {
		t.Errorf("summary JSON carries per-skeleton detail:\n%s", out)
	}
}

func TestEvalTableOutput(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	mustExecute(t, "--store", store, "lut", "build")

	out := mustExecute(t, "--store", store, "eval", "--stats")
	for _, want := range []string{"Expected run length", "skel_all", "1|2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestGraphResolutionCarriesToLookup(t *testing.T) {
	store, skeletons, _ := setupWorkspace(t)
	mustExecute(t, "--store", store, "graph", "build", "--skeletons", skeletons, "--resolution", "4,4,4")
	mustExecute(t, "--store", store, "lut", "build")

	res := decodeResult(t, mustExecute(t, "--store", store, "eval", "--json"))
	if got, want := res.ERL.Total.ERL, 4*11.0/6; math.Abs(got-want) > 1e-9 {
		t.Errorf("erl = %v, want %v", got, want)
	}
}

func TestEvalMaskFlag(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	mustExecute(t, "--store", store, "lut", "build")
	if _, err := execute(t, "--store", store, "eval", "--mask"); err == nil {
		t.Error("eval --mask without stored mask support should fail")
	}
}

func TestCombineMissingTiles(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	tile := []string{"--store", store, "--mode", "tiled", "--tile-factor", "2,2,2"}

	mustExecute(t, append([]string{"lut", "stage"}, tile...)...)
	if _, err := execute(t, "--store", store, "lut", "combine", "--grid", "2,2,2", "--dry-run"); err == nil {
		t.Fatal("dry run before computing tiles should report missing tiles")
	}
}

func TestTiledCombine(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	tile := []string{"--store", store, "--mode", "tiled", "--tile-factor", "2,2,2", "--grid", "2,2,2"}

	mustExecute(t, append([]string{"lut", "stage"}, tile...)...)
	mustExecute(t, append([]string{"lut", "tile", "--workers", "3"}, tile...)...)
	mustExecute(t, "--store", store, "lut", "combine", "--grid", "2,2,2", "--dry-run")
	mustExecute(t, "--store", store, "lut", "combine", "--grid", "2,2,2")
	out := mustExecute(t, "--store", store, "eval", "--json")
	checkERL(t, decodeResult(t, out))
}

func TestRunChunkedWithConfig(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	cfg := filepath.Join(t.TempDir(), "emerl.toml")
	content := "store = \"" + store + "\"\nmode = \"chunked\"\nchunk_count = 3\n"
	if err := os.WriteFile(cfg, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, "--config", cfg, "run", "--json")
	checkERL(t, decodeResult(t, out))
}

func TestRunMetricsFile(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	metrics := filepath.Join(t.TempDir(), "emerl.prom")

	mustExecute(t, "--store", store, "run", "--json", "--metrics-file", metrics)
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "emerl_erl") {
		t.Errorf("metrics file missing emerl_erl:\n%s", data)
	}
}

func TestEvalLengthsFile(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	mustExecute(t, "--store", store, "lut", "build")

	lengths := filepath.Join(t.TempDir(), "lengths.json")
	if err := os.WriteFile(lengths, []byte(`{"10": 3, "20": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}
	out := mustExecute(t, "--store", store, "eval", "--json", "--lengths", lengths)
	checkERL(t, decodeResult(t, out))
}

func TestEvalWithoutLookup(t *testing.T) {
	store, _, _ := setupWorkspace(t)
	if _, err := execute(t, "--store", store, "eval"); err == nil {
		t.Error("eval without a lookup should fail")
	}
}

func TestStoreCommands(t *testing.T) {
	store := "file:" + filepath.Join(t.TempDir(), "store")
	src := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	mustExecute(t, "--store", store, "store", "put", "misc/blob", src)
	if out := mustExecute(t, "--store", store, "store", "get", "misc/blob"); out != "payload" {
		t.Errorf("get = %q, want payload", out)
	}
	mustExecute(t, "--store", store, "store", "rm", "misc/blob")
	if _, err := execute(t, "--store", store, "store", "get", "misc/blob"); err == nil {
		t.Error("get after rm should fail")
	}
	if out := mustExecute(t, "--store", store, "store", "path"); strings.TrimSpace(out) != store {
		t.Errorf("path = %q, want %q", out, store)
	}
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emerl.yaml")
	mustExecute(t, "config", "init", path)
	out := mustExecute(t, "--config", path, "config", "show")
	if !strings.Contains(out, `mode = "full"`) {
		t.Errorf("config show output missing mode:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out := mustExecute(t, "version")
	if !strings.HasPrefix(out, appName+" version:") {
		t.Errorf("version output = %q", out)
	}
}

func TestFlagValidation(t *testing.T) {
	tests := [][]string{
		{"lut", "build", "--mode", "bogus"},
		{"lut", "build", "--tile-factor", "1,2"},
		{"graph", "build"},
		{"volume", "import", "x.raw", "--shape", "4,4"},
		{"completion", "tcsh"},
	}
	for _, args := range tests {
		if _, err := execute(t, append([]string{"--store", "mem:"}, args...)...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestReadRaw(t *testing.T) {
	shape := volume.Shape{1, 1, 2}
	v, err := readRaw(bytes.NewReader([]byte{1, 0, 2, 1}), shape, "uint16")
	if err != nil {
		t.Fatal(err)
	}
	if v.At(0, 0, 0) != 1 || v.At(0, 0, 1) != 258 {
		t.Errorf("voxels = %v, want [1 258]", v.Data())
	}

	if _, err := readRaw(bytes.NewReader([]byte{1, 0, 2}), shape, "uint16"); err == nil {
		t.Error("short input should fail")
	}
	if _, err := readRaw(bytes.NewReader([]byte{1, 0, 2, 0, 9}), shape, "uint16"); err == nil {
		t.Error("long input should fail")
	}
	if _, err := readRaw(bytes.NewReader(nil), shape, "float32"); err == nil {
		t.Error("unknown dtype should fail")
	}
}
