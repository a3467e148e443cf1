package constant

import (
	"sync"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/groupres"
)

// Registered copier names.
const (
	CopierNone           = "none"
	CopierGPUReadback    = "gpu_readback"
	CopierMemcpySingular = "memcpy_singular"
	CopierMemcpyNested   = "memcpy_nested"
)

// Copier obtains the CPU-side contents of constant buffers the game wrote.
//
// The resource and mapping events are forwarded from the host. Addresses
// passed to OnMapBufferRegion and OnMemcpy identify mapped memory and are
// only compared, never dereferenced.
type Copier interface {
	// Name returns the registered name of the copier.
	Name() string

	// HostBuffer fills dst with the contents of the constant buffer res.
	HostBuffer(cmd api.CommandList, g *group.Group, dst []byte, res api.ResourceHandle)

	OnInitResource(desc api.ResourceDesc, initial []byte, res api.ResourceHandle)
	OnDestroyResource(desc api.ResourceDesc, res api.ResourceHandle)
	OnMapBufferRegion(desc api.ResourceDesc, res api.ResourceHandle, offset, size uint64, access api.MapAccess, data uintptr)
	OnUnmapBufferRegion(desc api.ResourceDesc, res api.ResourceHandle)
	OnMemcpy(dest uintptr, src []byte)
}

func init() {
	Register(CopierNone, func(Deps) Copier { return &noneCopier{} })
	Register(CopierGPUReadback, func(d Deps) Copier { return &readbackCopier{groups: d.Groups} })
	Register(CopierMemcpySingular, func(Deps) Copier { return &singularCopier{} })
	Register(CopierMemcpyNested, func(Deps) Copier { return &nestedCopier{} })
}

func hostVisible(desc api.ResourceDesc) bool {
	return desc.Heap == api.HeapCPUToGPU && desc.Usage.Has(api.UsageConstantBuffer)
}

// hostBuffers shadows every CPU-writable constant buffer.
type hostBuffers struct {
	mu   sync.RWMutex
	bufs map[api.ResourceHandle][]byte
}

func (h *hostBuffers) OnInitResource(desc api.ResourceDesc, initial []byte, res api.ResourceHandle) {
	if !hostVisible(desc) {
		return
	}
	buf := make([]byte, desc.BufferSize)
	copy(buf, initial)
	h.mu.Lock()
	if h.bufs == nil {
		h.bufs = make(map[api.ResourceHandle][]byte)
	}
	h.bufs[res] = buf
	h.mu.Unlock()
}

func (h *hostBuffers) OnDestroyResource(desc api.ResourceDesc, res api.ResourceHandle) {
	if !hostVisible(desc) {
		return
	}
	h.mu.Lock()
	delete(h.bufs, res)
	h.mu.Unlock()
}

func (h *hostBuffers) HostBuffer(_ api.CommandList, _ *group.Group, dst []byte, res api.ResourceHandle) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if buf, ok := h.bufs[res]; ok {
		copy(dst, buf)
	}
}

func (h *hostBuffers) has(res api.ResourceHandle) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.bufs[res]
	return ok
}

func (h *hostBuffers) write(res api.ResourceHandle, offset uint64, src []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.bufs[res]
	if !ok || offset >= uint64(len(buf)) {
		return
	}
	copy(buf[offset:], src)
}

// noneCopier extracts nothing. Selecting it disables constant extraction.
type noneCopier struct{}

func (*noneCopier) Name() string { return CopierNone }
func (*noneCopier) HostBuffer(api.CommandList, *group.Group, []byte, api.ResourceHandle) {
}
func (*noneCopier) OnInitResource(api.ResourceDesc, []byte, api.ResourceHandle) {}
func (*noneCopier) OnDestroyResource(api.ResourceDesc, api.ResourceHandle)      {}
func (*noneCopier) OnMapBufferRegion(api.ResourceDesc, api.ResourceHandle, uint64, uint64, api.MapAccess, uintptr) {
}
func (*noneCopier) OnUnmapBufferRegion(api.ResourceDesc, api.ResourceHandle) {}
func (*noneCopier) OnMemcpy(uintptr, []byte)                                 {}

// readbackCopier copies the buffer into the group's readback buffer on the
// GPU and maps that.
type readbackCopier struct {
	groups *groupres.Manager
}

func (*readbackCopier) Name() string { return CopierGPUReadback }

func (c *readbackCopier) HostBuffer(cmd api.CommandList, g *group.Group, dst []byte, res api.ResourceHandle) {
	dev := cmd.Device()
	if c.groups == nil || !c.groups.IsCompatible(g.ID(), groupres.KindConstants, res) {
		if c.groups != nil {
			c.groups.Invalidate(g.ID(), groupres.KindConstants, dev.ResourceDesc(res), api.FormatUnknown)
		}
		return
	}
	own := c.groups.Get(g.ID(), groupres.KindConstants).Res
	cmd.CopyResource(res, own)
	data, ok := dev.MapBufferRegion(own, 0, uint64(len(dst)), api.MapReadOnly)
	if !ok {
		return
	}
	copy(dst, data)
	dev.UnmapBufferRegion(own)
}

func (*readbackCopier) OnInitResource(api.ResourceDesc, []byte, api.ResourceHandle) {}
func (*readbackCopier) OnDestroyResource(api.ResourceDesc, api.ResourceHandle)      {}
func (*readbackCopier) OnMapBufferRegion(api.ResourceDesc, api.ResourceHandle, uint64, uint64, api.MapAccess, uintptr) {
}
func (*readbackCopier) OnUnmapBufferRegion(api.ResourceDesc, api.ResourceHandle) {}
func (*readbackCopier) OnMemcpy(uintptr, []byte)                                 {}

// mapping is a constant buffer currently mapped for writing.
type mapping struct {
	res         api.ResourceHandle
	destination uintptr
	offset      uint64
	size        uint64
	bufferSize  uint64
}

// contains reports whether dest falls inside the mapped range.
func (m mapping) contains(dest uintptr) bool {
	if m.res == 0 || dest < m.destination || m.offset > m.bufferSize {
		return false
	}
	return uint64(dest-m.destination) <= m.bufferSize-m.offset
}

// singularCopier follows the single most recent write mapping and captures
// memcpy calls that land inside it.
type singularCopier struct {
	hostBuffers
	mu     sync.Mutex
	active mapping
}

func (*singularCopier) Name() string { return CopierMemcpySingular }

func (c *singularCopier) OnMapBufferRegion(desc api.ResourceDesc, res api.ResourceHandle, offset, size uint64, access api.MapAccess, data uintptr) {
	if !access.Writes() || !c.has(res) {
		return
	}
	c.mu.Lock()
	c.active = mapping{res: res, destination: data, offset: offset, size: size, bufferSize: desc.BufferSize}
	c.mu.Unlock()
}

func (c *singularCopier) OnUnmapBufferRegion(api.ResourceDesc, api.ResourceHandle) {
	c.mu.Lock()
	c.active = mapping{}
	c.mu.Unlock()
}

func (c *singularCopier) OnMemcpy(dest uintptr, src []byte) {
	c.mu.Lock()
	m := c.active
	c.mu.Unlock()
	if m.contains(dest) {
		c.write(m.res, uint64(dest-m.destination), src)
	}
}

// nestedCopier tracks every open write mapping of a constant buffer.
type nestedCopier struct {
	hostBuffers
	mu       sync.RWMutex
	mappings map[api.ResourceHandle]mapping
}

func (*nestedCopier) Name() string { return CopierMemcpyNested }

func (c *nestedCopier) OnMapBufferRegion(desc api.ResourceDesc, res api.ResourceHandle, offset, size uint64, access api.MapAccess, data uintptr) {
	if !access.Writes() || !hostVisible(desc) {
		return
	}
	c.mu.Lock()
	if c.mappings == nil {
		c.mappings = make(map[api.ResourceHandle]mapping)
	}
	c.mappings[res] = mapping{res: res, destination: data, offset: offset, size: size, bufferSize: desc.BufferSize}
	c.mu.Unlock()
}

func (c *nestedCopier) OnUnmapBufferRegion(desc api.ResourceDesc, res api.ResourceHandle) {
	if !hostVisible(desc) {
		return
	}
	c.mu.Lock()
	delete(c.mappings, res)
	c.mu.Unlock()
}

func (c *nestedCopier) OnMemcpy(dest uintptr, src []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.mappings {
		if m.contains(dest) {
			c.write(m.res, uint64(dest-m.destination), src)
			return
		}
	}
}
