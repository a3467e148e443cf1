package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/shadertoggle"
	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/config"
	"github.com/gogpu/shadertoggle/internal/fakehost"
)

// Trace is a recorded sequence of host events.
type Trace struct {
	API    string `toml:"api"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	Textures   []TraceTexture   `toml:"textures"`
	Techniques []TraceTechnique `toml:"techniques"`
	Pipelines  []TracePipeline  `toml:"pipelines"`
	Frames     []TraceFrame     `toml:"frames"`
}

// TraceTexture is a render target of the game.
type TraceTexture struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

// TraceTechnique is an effect technique loaded by the runtime.
type TraceTechnique struct {
	Name    string `toml:"name"`
	Effect  string `toml:"effect"`
	Enabled bool   `toml:"enabled"`
}

// TracePipeline is a pipeline created by the game. Shader code is given as
// text and hashed like bytecode.
type TracePipeline struct {
	Handle  uint64 `toml:"handle"`
	Pixel   string `toml:"pixel"`
	Vertex  string `toml:"vertex"`
	Compute string `toml:"compute"`
}

// TraceFrame is the events of one frame. Present is implied at its end.
type TraceFrame struct {
	Events     []TraceEvent `toml:"events"`
	Screenshot bool         `toml:"screenshot"`
	Keys       []uint32     `toml:"keys"`
}

// TraceEvent is one command list event.
type TraceEvent struct {
	Op       string   `toml:"op"`
	Targets  []string `toml:"targets"`
	Pipeline uint64   `toml:"pipeline"`
	Count    int      `toml:"count"`
}

// ParseTrace decodes a TOML trace.
func ParseTrace(data []byte) (*Trace, error) {
	t := &Trace{API: "d3d11", Width: 1920, Height: 1080}
	if err := toml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	if _, err := parseAPI(t.API); err != nil {
		return nil, err
	}
	return t, nil
}

func parseAPI(name string) (api.DeviceAPI, error) {
	for _, a := range [...]api.DeviceAPI{api.D3D9, api.D3D10, api.D3D11, api.D3D12, api.OpenGL, api.Vulkan} {
		if strings.EqualFold(a.String(), name) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("trace: unknown api %q", name)
}

// Stats counts what a replay did.
type Stats struct {
	Frames        int
	Draws         int
	Skipped       int
	Rendered      int
	EffectPasses  int
	BindingsBound int
}

// Replay runs t through an addon configured with cfg on a fake host.
func Replay(t *Trace, cfg *config.Config) (Stats, error) {
	kind, err := parseAPI(t.API)
	if err != nil {
		return Stats{}, err
	}
	dev := fakehost.NewDevice(kind)
	cmd := fakehost.NewCommandList(dev)
	rt := fakehost.NewRuntime(dev, t.Width, t.Height)
	rt.Back, _ = dev.AddTexture(t.Width, t.Height, api.FormatR8G8B8A8Unorm)

	rtvs := make(map[string]api.ResourceView, len(t.Textures))
	for _, tex := range t.Textures {
		_, rtvs[tex.Name] = dev.AddTexture(tex.Width, tex.Height, api.FormatR8G8B8A8Unorm)
	}
	for _, tech := range t.Techniques {
		rt.AddTechnique(tech.Name, tech.Effect, tech.Enabled)
	}

	a := shadertoggle.New(cfg)
	a.OnInitDevice(dev)
	a.OnInitEffectRuntime(rt)
	a.OnInitCommandList(cmd)
	for _, p := range t.Pipelines {
		var subs []api.PipelineSubobject
		for _, s := range [...]struct {
			stage api.ShaderStage
			code  string
		}{{api.ShaderStagePixel, p.Pixel}, {api.ShaderStageVertex, p.Vertex}, {api.ShaderStageCompute, p.Compute}} {
			if s.code != "" {
				subs = append(subs, api.PipelineSubobject{Stage: s.stage, Code: []byte(s.code)})
			}
		}
		a.OnInitPipeline(dev, 0, subs, api.Pipeline(p.Handle))
	}

	var st Stats
	for i, f := range t.Frames {
		for _, k := range f.Keys {
			a.HandleKey(k)
		}
		for j, e := range f.Events {
			if err := replayEvent(a, cmd, rtvs, e, &st); err != nil {
				return st, fmt.Errorf("frame %d event %d: %w", i, j, err)
			}
		}
		a.OnPresent(dev, cmd)
		a.OnReshadePresent(rt, cmd, f.Screenshot)
		st.Frames++
	}
	st.Rendered = len(rt.Rendered)
	st.EffectPasses = rt.EffectPasses
	st.BindingsBound = len(rt.Bindings)

	a.OnDestroyEffectRuntime(rt)
	a.OnDestroyCommandList(cmd)
	a.OnDestroyDevice(dev)
	return st, nil
}

func replayEvent(a *shadertoggle.Addon, cmd api.CommandList, rtvs map[string]api.ResourceView, e TraceEvent, st *Stats) error {
	switch e.Op {
	case "bind_render_targets", "begin_render_pass":
		views := make([]api.ResourceView, 0, len(e.Targets))
		for _, name := range e.Targets {
			v, ok := rtvs[name]
			if !ok {
				return fmt.Errorf("unknown texture %q", name)
			}
			views = append(views, v)
		}
		if e.Op == "begin_render_pass" {
			a.OnBeginRenderPass(cmd, views, 0)
		} else {
			a.OnBindRenderTargets(cmd, views, 0)
		}
	case "bind_pipeline":
		a.OnBindPipeline(cmd, api.PipelineStageAll, api.Pipeline(e.Pipeline))
	case "draw", "dispatch":
		for range max(e.Count, 1) {
			var skip bool
			if e.Op == "draw" {
				skip = a.OnDraw(cmd)
			} else {
				skip = a.OnDispatch(cmd)
			}
			st.Draws++
			if skip {
				st.Skipped++
			}
		}
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
	return nil
}

func (s Stats) print(w io.Writer) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "frames:         %d\n", s.Frames)
	p.Fprintf(w, "draws:          %d\n", s.Draws)
	p.Fprintf(w, "skipped draws:  %d\n", s.Skipped)
	p.Fprintf(w, "techniques run: %d\n", s.Rendered)
	p.Fprintf(w, "effect passes:  %d\n", s.EffectPasses)
	p.Fprintf(w, "bindings:       %d\n", s.BindingsBound)
}

func replayCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "configuration file, defaults when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("replay: expected one trace file")
	}

	cfg := config.Default()
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	t, err := ParseTrace(data)
	if err != nil {
		return err
	}
	st, err := Replay(t, cfg)
	if err != nil {
		return err
	}
	st.print(stdout)
	return nil
}
