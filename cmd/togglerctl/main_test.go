package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/shadertoggle/config"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/shader"
)

const trace = `
api = "d3d11"
width = 1920
height = 1080

[[textures]]
name = "scene"
width = 1920
height = 1080

[[techniques]]
name = "Bloom"
effect = "Bloom.fx"
enabled = true

[[pipelines]]
handle = 256
pixel = "ps_main"

[[frames]]
events = [
  { op = "bind_render_targets", targets = ["scene"] },
  { op = "bind_pipeline", pipeline = 256 },
  { op = "draw", count = 3 },
]

[[frames]]
events = [
  { op = "bind_render_targets", targets = ["scene"] },
  { op = "bind_pipeline", pipeline = 256 },
  { op = "draw" },
]
`

func sampleConfig() *config.Config {
	s := group.DefaultSettings("Scene")
	s.Active = true
	s.Hashes[group.StagePixel] = group.NewHashSet(shader.Hash([]byte("ps_main")))
	c := config.Default()
	c.Groups = []group.Settings{s}
	return c
}

func TestReplay(t *testing.T) {
	tr, err := ParseTrace([]byte(trace))
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	st, err := Replay(tr, sampleConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := Stats{Frames: 2, Draws: 4, Rendered: 2, EffectPasses: 2}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func TestReplayUnknownTexture(t *testing.T) {
	tr, err := ParseTrace([]byte(`
[[frames]]
events = [{ op = "bind_render_targets", targets = ["missing"] }]
`))
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	if _, err := Replay(tr, config.Default()); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("Replay err = %v, want unknown texture", err)
	}
}

func TestParseTraceErrors(t *testing.T) {
	if _, err := ParseTrace([]byte(`api = "metal"`)); err == nil {
		t.Error("unknown api accepted")
	}
	if _, err := ParseTrace([]byte(`frames = 3 = 4`)); err == nil {
		t.Error("broken TOML accepted")
	}
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shadertoggler.ini")
	if err := sampleConfig().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out, errOut bytes.Buffer
	if err := run([]string{"validate", path}, &out, &errOut); err != nil {
		t.Fatalf("run: %v\n%s", err, errOut.String())
	}
	if !strings.Contains(out.String(), "1 groups") || !strings.Contains(out.String(), "Scene") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDumpRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shadertoggler.ini")
	if err := sampleConfig().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out bytes.Buffer
	if err := run([]string{"dump", path}, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	c, err := config.Parse(out.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.Groups) != 1 || c.Groups[0].Name != "Scene" {
		t.Errorf("groups = %+v", c.Groups)
	}
}

func TestReplayCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.toml")
	if err := os.WriteFile(path, []byte(trace), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var out bytes.Buffer
	if err := run([]string{"replay", path}, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := fmt.Sprintf("draws:          %d", 4); !strings.Contains(out.String(), want) {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run([]string{"frobnicate"}, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Error("unknown command accepted")
	}
}
