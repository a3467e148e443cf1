// Package preview shows the render target of the group under edit.
//
// While a group is edited the first render target it matches in a frame is
// copied into a pair of textures owned by the Manager. Ping receives the
// raw copy when the alpha channel must be cleared, pong always holds the
// final image the overlay samples. Both are recreated at present when the
// matched target no longer fits them.
package preview

import (
	"image"
	"math"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/resolve"
)

// State is the preview state of the current frame.
type State struct {
	Target        api.ResourceHandle
	Matched       bool
	Width, Height uint32
	Format        api.Format

	// ViewFormat and TargetDesc describe the last target and survive Reset.
	// The textures are recreated from them.
	ViewFormat api.Format
	TargetDesc api.ResourceDesc
	Recreate   bool
}

// Image is one of the preview textures.
type Image struct {
	Res api.ResourceHandle
	SRV api.ResourceView
	RTV api.ResourceView
}

// Renderer renders a single technique into a render target.
type Renderer interface {
	RenderTechnique(t api.Technique, cmd api.CommandList, rtv, rtvSRGB api.ResourceView)
}

// Techniques are the helper techniques applied to the preview copy. Zero
// handles are skipped.
type Techniques struct {
	Flip       api.Technique
	TonemapSDR api.Technique
}

// Manager owns the preview textures of one device.
type Manager struct {
	dev api.Device

	mu         sync.Mutex
	st         State
	ping, pong Image
}

// NewManager creates a manager creating textures on dev.
func NewManager(dev api.Device) *Manager {
	return &Manager{dev: dev}
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// Pending reports whether the preview was not matched this frame.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.st.Matched
}

// Unresolved reports whether no preview target was found this frame.
func (m *Manager) Unresolved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Target == 0
}

// Ping returns the intermediate texture.
func (m *Manager) Ping() Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ping
}

// Pong returns the texture holding the final preview.
func (m *Manager) Pong() Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pong
}

// Reset starts a new frame.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.st = State{ViewFormat: m.st.ViewFormat, TargetDesc: m.st.TargetDesc, Recreate: m.st.Recreate}
	m.mu.Unlock()
}

// SetTarget records t as this frame's preview target.
func (m *Manager) SetTarget(t resolve.Target) {
	if t.IsZero() {
		return
	}
	desc := m.dev.ResourceDesc(t.Resource)
	m.mu.Lock()
	m.st.Target = t.Resource
	m.st.Width = desc.Size.Width
	m.st.Height = desc.Size.Height
	m.st.Format = desc.Format
	m.st.ViewFormat = t.Format
	m.st.TargetDesc = desc
	m.mu.Unlock()
}

// IsCompatible reports whether the preview textures can receive a copy of
// the current target.
func (m *Manager) IsCompatible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isCompatible()
}

func (m *Manager) isCompatible() bool {
	if m.ping.SRV == 0 || m.pong.Res == 0 || m.st.Target == 0 {
		return false
	}
	if m.dev.ResourceViewDesc(m.ping.SRV).Format != m.st.ViewFormat.DefaultTyped(false) {
		return false
	}
	desc := m.dev.ResourceDesc(m.pong.Res)
	return desc.Size.Width == m.st.Width && desc.Size.Height == m.st.Height
}

// Update copies the preview target into the preview textures when site is
// the invocation site of the edited group g. At a draw an unresolved target
// is resolved first. It reports whether the preview was produced.
func (m *Manager) Update(cmd api.CommandList, site, invocation group.CallSite, g *group.Group, res func() resolve.Target, r Renderer, fx Techniques) bool {
	if site == group.CallDraw && m.Unresolved() {
		m.SetTarget(res())
	}

	m.mu.Lock()
	if m.st.Target == 0 || m.st.Matched || site != invocation {
		m.mu.Unlock()
		return false
	}
	m.st.Matched = true
	if !m.isCompatible() {
		m.st.Recreate = true
		m.mu.Unlock()
		return false
	}
	target, ping, pong := m.st.Target, m.ping, m.pong
	w, h := m.st.Width, m.st.Height
	m.mu.Unlock()

	copier, ok := cmd.(api.CopyShaders)
	if ok && g.ClearPreviewAlpha && cmd.Device().API().IsD3D() {
		cmd.CopyResource(target, ping.Res)
		copier.CopyTexture(ping.SRV, pong.RTV, w, h)
	} else {
		cmd.CopyResource(target, pong.Res)
	}

	if pong.RTV != 0 {
		if g.FlipBuffer && fx.Flip != 0 {
			r.RenderTechnique(fx.Flip, cmd, pong.RTV, pong.RTV)
		}
		if g.Tonemap && fx.TonemapSDR != 0 {
			r.RenderTechnique(fx.TonemapSDR, cmd, pong.RTV, pong.RTV)
		}
	}
	return true
}

// ClearUnmatched clears both textures when the preview was not matched this
// frame, so that the overlay shows an empty image.
func (m *Manager) ClearUnmatched(cmd api.CommandList) {
	m.mu.Lock()
	matched, ping, pong := m.st.Matched, m.ping, m.pong
	m.mu.Unlock()
	if matched {
		return
	}
	for _, v := range [...]api.ResourceView{ping.RTV, pong.RTV} {
		if v != 0 {
			cmd.ClearRenderTargetView(v, [4]float32{})
		}
	}
}

// Check recreates the textures when the last Update found them unfit. It
// reports whether they were recreated.
func (m *Manager) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.Recreate {
		return false
	}
	m.st.Recreate = false
	if m.st.TargetDesc.Type != api.ResourceTypeTexture2D {
		return false
	}
	m.dispose()

	desc := m.st.TargetDesc
	format := desc.Format.Typeless()
	rt := api.UsageRenderTarget
	if !format.IsRenderTarget() {
		rt = 0
	}
	m.ping = m.create(desc, format, api.UsageCopyDest|api.UsageCopySource|api.UsageShaderResource|rt)
	m.pong = m.create(desc, format, api.UsageCopyDest|api.UsageShaderResource|rt)
	logx.L().Debug("preview: textures recreated", "width", desc.Size.Width, "height", desc.Size.Height, "format", format)
	return m.ping.Res != 0 && m.pong.Res != 0
}

func (m *Manager) create(target api.ResourceDesc, format api.Format, usage api.ResourceUsage) Image {
	desc := api.TextureDesc(target.Size.Width, target.Size.Height, 1, format, api.HeapGPUOnly, usage)
	res, ok := m.dev.CreateResource(desc, api.UsageCopyDest)
	if !ok {
		logx.L().Warn("preview: create texture failed", "width", desc.Size.Width, "height", desc.Size.Height, "format", format)
		return Image{}
	}
	img := Image{Res: res}
	viewDesc := api.ResourceViewDesc{Format: m.st.ViewFormat.DefaultTyped(false)}
	if v, ok := m.dev.CreateResourceView(res, api.UsageShaderResource, viewDesc); ok {
		img.SRV = v
	}
	if usage.Has(api.UsageRenderTarget) {
		if v, ok := m.dev.CreateResourceView(res, api.UsageRenderTarget, viewDesc); ok {
			img.RTV = v
		}
	}
	return img
}

// Dispose frees the preview textures.
func (m *Manager) Dispose() {
	m.mu.Lock()
	m.dispose()
	m.mu.Unlock()
}

func (m *Manager) dispose() {
	for _, img := range [...]*Image{&m.ping, &m.pong} {
		for _, v := range [...]api.ResourceView{img.SRV, img.RTV} {
			if v != 0 {
				m.dev.DestroyResourceView(v)
			}
		}
		if img.Res != 0 {
			m.dev.DestroyResource(img.Res)
		}
		*img = Image{}
	}
}

// Thumbnail reads the final preview back and scales it to fit maxW by
// maxH. It reports false when the device cannot read textures or there is
// no preview.
func (m *Manager) Thumbnail(maxW, maxH int) (image.Image, bool) {
	reader, ok := m.dev.(api.TextureReader)
	if !ok {
		return nil, false
	}
	res := m.Pong().Res
	if res == 0 {
		return nil, false
	}
	return Thumbnail(reader, res, m.dev.ResourceDesc(res).Format, maxW, maxH)
}

// Thumbnail reads res through r and scales it to fit maxW by maxH. format
// is the texture's format. Pixels come back in memory order, so BGRA
// layouts are swizzled to RGBA first.
func Thumbnail(r api.TextureReader, res api.ResourceHandle, format api.Format, maxW, maxH int) (image.Image, bool) {
	if res == 0 {
		return nil, false
	}
	src, ok := r.ReadTexture(res)
	if !ok {
		return nil, false
	}
	if format.TextureFormat() == gputypes.TextureFormatBGRA8Unorm {
		src = swapRedBlue(src)
	}
	return Scale(src, maxW, maxH), true
}

// swapRedBlue returns a copy of src with the red and blue channels
// exchanged. Images other than *image.RGBA are returned as is.
func swapRedBlue(src image.Image) image.Image {
	rgba, ok := src.(*image.RGBA)
	if !ok {
		return src
	}
	out := &image.RGBA{Pix: slices.Clone(rgba.Pix), Stride: rgba.Stride, Rect: rgba.Rect}
	for i := 0; i+3 < len(out.Pix); i += 4 {
		out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
	}
	return out
}

// Scale returns src scaled down to fit maxW by maxH with its aspect ratio
// kept. Images that already fit are copied unscaled.
func Scale(src image.Image, maxW, maxH int) *image.RGBA {
	b := src.Bounds()
	if b.Empty() || maxW <= 0 || maxH <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	s := min(float64(maxW)/float64(b.Dx()), float64(maxH)/float64(b.Dy()), 1)
	w := max(int(math.Round(float64(b.Dx())*s)), 1)
	h := max(int(math.Round(float64(b.Dy())*s)), 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
