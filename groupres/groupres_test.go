package groupres

import (
	"testing"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/fakehost"
)

func alphaGroup() *group.Group {
	g := group.New("alpha")
	g.PreserveAlpha = true
	return g
}

func TestCheckGroupsRecreatesInvalid(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	m := NewManager(dev)
	g := alphaGroup()
	src, _ := dev.AddTexture(320, 200, api.FormatR8G8B8A8Typeless)

	if m.IsCompatible(g.ID(), KindAlpha, src) {
		t.Fatal("compatible before creation")
	}
	if n := m.CheckGroups([]*group.Group{g}); n != 0 {
		t.Errorf("CheckGroups recreated %d without a target", n)
	}

	m.Invalidate(g.ID(), KindAlpha, dev.ResourceDesc(src), api.FormatR8G8B8A8Typeless)
	if n := m.CheckGroups([]*group.Group{g}); n != 1 {
		t.Fatalf("CheckGroups recreated %d, want 1", n)
	}
	r := m.Get(g.ID(), KindAlpha)
	if r.State != StateRecreated {
		t.Errorf("state = %v, want recreated", r.State)
	}
	if r.Res == 0 || r.RTV == 0 || r.SRV == 0 || r.RTVSRGB == 0 {
		t.Errorf("resource = %+v, want texture and three views", r)
	}
	if got := dev.ResourceViewDesc(r.RTVSRGB).Format; got != api.FormatR8G8B8A8UnormSRGB {
		t.Errorf("srgb view format = %d, want %d", got, api.FormatR8G8B8A8UnormSRGB)
	}
	if !m.IsCompatible(g.ID(), KindAlpha, src) {
		t.Error("recreated resource not compatible with its source")
	}

	other, _ := dev.AddTexture(640, 200, api.FormatR8G8B8A8Typeless)
	if m.IsCompatible(g.ID(), KindAlpha, other) {
		t.Error("different width reported compatible")
	}
}

func TestCheckGroupsDisposesDisabled(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	m := NewManager(dev)
	g := alphaGroup()
	src, _ := dev.AddTexture(64, 64, api.FormatB8G8R8A8Unorm)
	m.Invalidate(g.ID(), KindAlpha, dev.ResourceDesc(src), api.FormatB8G8R8A8Unorm)
	m.CheckGroups([]*group.Group{g})

	g.PreserveAlpha = false
	m.CheckGroups([]*group.Group{g})
	if r := m.Get(g.ID(), KindAlpha); r.Res != 0 {
		t.Errorf("Res = %d after disable, want 0", r.Res)
	}
	if dev.Destroyed != 1 || dev.ViewsDestroyed != 3 {
		t.Errorf("destroyed %d resources and %d views, want 1 and 3", dev.Destroyed, dev.ViewsDestroyed)
	}
}

func TestConstantBuffer(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	m := NewManager(dev)
	g := group.New("cb")
	g.ExtractConstants = true
	cb := dev.AddBuffer(make([]byte, 256), api.HeapCPUToGPU)

	m.Invalidate(g.ID(), KindConstants, dev.ResourceDesc(cb), api.FormatUnknown)
	m.CheckGroups([]*group.Group{g})
	r := m.Get(g.ID(), KindConstants)
	desc := dev.ResourceDesc(r.Res)
	if desc.Type != api.ResourceTypeBuffer || desc.BufferSize != 256 || desc.Heap != api.HeapGPUToCPU {
		t.Errorf("readback desc = %+v, want 256 byte gpu_to_cpu buffer", desc)
	}
	if !m.IsCompatible(g.ID(), KindConstants, cb) {
		t.Error("readback buffer not compatible")
	}
}

func TestNonRenderTargetFormat(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	m := NewManager(dev)
	g := alphaGroup()
	m.Invalidate(g.ID(), KindAlpha, api.TextureDesc(8, 8, 1, api.FormatD24UnormS8Uint, api.HeapGPUOnly, api.UsageDepthStencil), api.FormatD24UnormS8Uint)
	m.CheckGroups([]*group.Group{g})
	r := m.Get(g.ID(), KindAlpha)
	if r.Res == 0 || r.RTV != 0 || r.SRV != 0 {
		t.Errorf("resource = %+v, want texture without rtv and srv", r)
	}
	if dev.ResourceDesc(r.Res).Usage.Has(api.UsageRenderTarget) {
		t.Error("depth copy created with render target usage")
	}
}

func TestBorrowAndOwn(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	m := NewManager(dev)
	g := group.New("binding")
	g.ProvideTextureBinding = true
	g.CopyTextureBinding = true
	src, _ := dev.AddTexture(64, 64, api.FormatB8G8R8A8Unorm)

	m.Borrow(g.ID(), src, dev.ResourceDesc(src), api.FormatB8G8R8A8Unorm)
	r := m.Get(g.ID(), KindBinding)
	if r.Owning || r.Borrowed != src || r.State != StateValid {
		t.Errorf("borrowed = %+v", r)
	}
	if n := m.CheckGroups([]*group.Group{g}); n != 0 {
		t.Errorf("CheckGroups recreated a borrowed binding")
	}

	m.Own(g.ID(), dev.ResourceDesc(src), api.FormatB8G8R8A8Unorm)
	if n := m.CheckGroups([]*group.Group{g}); n != 1 {
		t.Errorf("CheckGroups recreated %d after Own, want 1", n)
	}
	if !m.IsCompatible(g.ID(), KindBinding, src) {
		t.Error("owned copy not compatible")
	}
}

func TestDispose(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	m := NewManager(dev)
	a, b := alphaGroup(), alphaGroup()
	src, _ := dev.AddTexture(64, 64, api.FormatB8G8R8A8Unorm)
	for _, g := range []*group.Group{a, b} {
		m.Invalidate(g.ID(), KindAlpha, dev.ResourceDesc(src), api.FormatB8G8R8A8Unorm)
	}
	m.CheckGroups([]*group.Group{a, b})

	m.Dispose(a.ID())
	if dev.Destroyed != 1 {
		t.Errorf("Destroyed = %d, want 1", dev.Destroyed)
	}
	m.DisposeAll()
	if dev.Destroyed != 2 {
		t.Errorf("Destroyed = %d, want 2", dev.Destroyed)
	}
	if r := m.Get(b.ID(), KindAlpha); r.Res != 0 || r.State != StateInvalid {
		t.Errorf("resource after DisposeAll = %+v, want fresh", r)
	}
}
