// Package api defines the abstract graphics host that shadertoggle plugs into.
//
// The host is whatever layer intercepts a game's graphics API (D3D9 through
// D3D12, OpenGL, Vulkan) and forwards its events. It hands out opaque 64-bit
// handles for resources, views, pipelines, layouts and descriptor tables, and
// implements the Device, CommandList and Runtime interfaces so the core can
// query descriptor heaps, create views, reissue binds and trigger effects.
//
// Enumerations here use the host's numbering so handles and flags can be
// passed through without translation. Texture sizes are gputypes extents
// and formats convert to gputypes texture formats where a layout matches.
package api
