// Package resolve turns a group's configured indices into the concrete
// resource they name in a command list's current binding state.
//
// Resolution failure is the normal "not bound yet" signal and is reported
// as the zero Target, never as an error. Out-of-range indices are clamped
// to the bound sizes.
package resolve

import (
	"math"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/state"
)

// Kind selects which of a group's targets to resolve.
type Kind uint8

// Resolution kinds.
const (
	// KindEffect resolves the render target effects are rendered into.
	KindEffect Kind = iota
	// KindBinding resolves the texture exposed as a named binding.
	KindBinding
	// KindPreview resolves the render target shown while editing a group.
	KindPreview
)

// Target is a resolved resource and the format of the view it was reached
// through. The zero value means nothing was resolved.
type Target struct {
	Resource api.ResourceHandle
	Format   api.Format
}

// IsZero reports whether nothing was resolved.
func (t Target) IsZero() bool { return t.Resource == 0 }

// Screen is the size render targets are matched against.
type Screen struct {
	Width, Height uint32
}

// Resolve returns the resource g refers to for kind in the state recorded
// by b.
func Resolve(dev api.Device, screen Screen, b *state.Block, g *group.Group, kind Kind) Target {
	switch kind {
	case KindBinding:
		if g.ExtractSRVs {
			return resolveView(dev, b, g)
		}
		return resolveRenderTarget(dev, screen, b, g.BindingRenderTargetIndex, g.BindingMatch, false)
	case KindPreview:
		return resolveRenderTarget(dev, screen, b, g.RenderTargetIndex, g.Match, false)
	}
	return resolveRenderTarget(dev, screen, b, g.RenderTargetIndex, g.Match, true)
}

func resolveRenderTarget(dev api.Device, screen Screen, b *state.Block, index uint32, match group.MatchMode, colorOnly bool) Target {
	rtvs := b.RenderTargets()
	if len(rtvs) == 0 {
		return Target{}
	}
	view := rtvs[min(int(index), len(rtvs)-1)]
	if view == 0 {
		return Target{}
	}
	res := dev.ResourceFromView(view)
	if res == 0 {
		// Render targets may have no backing resource, writes are discarded.
		return Target{}
	}

	desc := dev.ResourceDesc(res)
	if colorOnly && !desc.Format.IsColorBuffer() {
		return Target{}
	}
	if !MatchesScreen(desc.Size.Width, desc.Size.Height, screen, match) {
		return Target{}
	}
	return Target{Resource: res, Format: dev.ResourceViewDesc(view).Format}
}

func resolveView(dev api.Device, b *state.Block, g *group.Group) Target {
	cycle := g.ConsumeCycle(group.CycleShaderResource)
	d, idx, ok := WalkDescriptor(b, g.SRVStage, g.SRVSlot, g.DescriptorIndex(group.CycleShaderResource), cycle, hasView)
	if !ok {
		return Target{}
	}
	if cycle != group.CycleNone {
		g.SetDescriptorIndex(group.CycleShaderResource, idx)
	}
	return Target{
		Resource: dev.ResourceFromView(d.View),
		Format:   dev.ResourceViewDesc(d.View).Format,
	}
}

func hasView(d api.Descriptor) bool { return d.View != 0 }

// HasBuffer reports whether d references a constant buffer.
func HasBuffer(d api.Descriptor) bool { return d.Range.Buffer != 0 }

// ClampSlot limits slot to a root table of size entries. It reports false
// when the table is empty.
func ClampSlot(slot uint32, size int) (uint32, bool) {
	if size <= 0 {
		return 0, false
	}
	return min(slot, uint32(size-1)), true
}

// WalkDescriptor reads the descriptor at (stage, slot, index) of b with
// slot and index clamped to the bound sizes, applying cycle first. The
// returned index is where the descriptor was found; it is meaningful only
// when ok is true. filled decides whether a descriptor counts as bound.
func WalkDescriptor(b *state.Block, stage group.Stage, slot, index uint32, cycle group.Cycle, filled func(api.Descriptor) bool) (api.Descriptor, uint32, bool) {
	st := uint32(stage.Clamp())

	slot, ok := ClampSlot(slot, b.RootTableSize(st))
	if !ok {
		return api.Descriptor{}, 0, false
	}
	size := b.RootTableEntrySize(st, slot)
	if size <= 0 {
		return api.Descriptor{}, 0, false
	}
	last := uint32(size - 1)
	idx := min(index, last)

	at := func(i uint32) (api.Descriptor, bool) {
		d, ok := b.DescriptorAt(st, slot, i)
		return d, ok && filled(d)
	}

	d, found := at(idx)
	switch cycle {
	case group.CycleUp:
		idx = min(idx+1, last)
		d, found = at(idx)
		for !found && idx < last {
			idx++
			d, found = at(idx)
		}
	case group.CycleDown:
		if idx > 0 {
			idx--
		}
		d, found = at(idx)
		for !found && idx > 0 {
			idx--
			d, found = at(idx)
		}
	}
	if !found {
		return api.Descriptor{}, 0, false
	}
	return d, idx, true
}

// MatchesScreen applies match to a texture of the given size. MatchNone
// and every unknown mode above it accept.
func MatchesScreen(width, height uint32, screen Screen, match group.MatchMode) bool {
	switch {
	case match >= group.MatchNone:
		return true
	case match == group.MatchResolution:
		return width == screen.Width && height == screen.Height
	}
	return CheckAspectRatio(float32(width), float32(height), screen.Width, screen.Height, match)
}

// CheckAspectRatio reports whether a texture of texW×texH is close enough
// in shape and size to the screenW×screenH reference. Both ratios must lie
// within [0.5, 1.85] of the reference, or, in extended mode, be within 0.02
// above a whole multiple. Zero dimensions always accept.
func CheckAspectRatio(texW, texH float32, screenW, screenH uint32, match group.MatchMode) bool {
	if texW == 0 || texH == 0 || screenW == 0 || screenH == 0 {
		return true
	}
	w := float32(screenW)
	h := float32(screenH)
	wRatio := w / texW
	hRatio := h / texH
	diff := w/h - texW/texH

	if abs32(diff) > 0.1 {
		return false
	}
	if wRatio >= 0.5 && wRatio <= 1.85 && hRatio >= 0.5 && hRatio <= 1.85 {
		return true
	}
	return match == group.MatchExtendedAspectRatio && frac32(wRatio) <= 0.02 && frac32(hRatio) <= 0.02
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func frac32(v float32) float32 {
	_, f := math.Modf(float64(v))
	return float32(f)
}
