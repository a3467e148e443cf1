// Package shadertoggle is the core of a shader toggler: it sits between a
// game and its graphics driver, recognizes shaders by the CRC32 of their
// byte code and applies per-group behaviour to the draws that use them.
//
// # Overview
//
// A toggle group lists shader hashes per stage (pixel, vertex, compute).
// While a group is active and one of its shaders is bound, the group can
//
//   - render effect techniques into the render target the draw writes to,
//   - expose that render target, or a shader resource bound to the draw, to
//     effects as a named texture binding,
//   - copy constant buffer values into effect uniforms,
//   - show the render target in a preview while the group is edited.
//
// While a group is edited its shaders can be hunted: the shaders seen in
// recent frames are stepped through one by one and draws using the hunted
// shader are skipped, so the user sees what each shader draws.
//
// # Quick Start
//
//	cfg, err := config.Load("shadertoggler.ini")
//	if err != nil {
//	    cfg = config.Default()
//	}
//	addon := shadertoggle.New(cfg)
//
//	// Forward host events.
//	addon.OnInitDevice(dev)
//	addon.OnInitPipeline(dev, layout, subobjects, pipeline)
//	addon.OnBindPipeline(cmd, api.PipelineStagePixelShader, pipeline)
//	if addon.OnDraw(cmd) {
//	    // skip the draw
//	}
//
// # Architecture
//
// The host contract lives in package api. Addon owns the groups and one
// shader manager per stage; it keeps a Device context per host device and a
// CommandList context per host command list, created on first use.
//
//   - state: shadow of the bindings of a command list
//   - descriptor: shadow of descriptor heaps and pipeline layouts
//   - dispatch: the per-list queue deciding when group actions fire
//   - resolve: finds the resource a group refers to in a state block
//   - view, groupres, preview: resources created for groups and effects
//   - technique, constant: the effect runtime side
//   - config: INI persistence and file watching
//
// # Threading
//
// Handlers run on the caller's thread. Device wide state is locked
// internally; the state of a command list is only touched by the thread
// recording it.
package shadertoggle
