package constant

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/groupres"
	"github.com/gogpu/shadertoggle/internal/fakehost"
	"github.com/gogpu/shadertoggle/state"
)

type tracker map[group.ID]bool

func (t tracker) ConstantsUpdated(id group.ID) bool { return t[id] }
func (t tracker) MarkConstantsUpdated(id group.ID)  { t[id] = true }

func le(values ...uint32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		u    api.UniformInfo
		want Type
	}{
		{api.UniformInfo{Base: api.UniformFloat, Rows: 1, Columns: 1}, TypeFloat},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 2, Columns: 1}, TypeFloat2},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 3, Columns: 1}, TypeFloat3},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 4, Columns: 1}, TypeFloat4},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 3, Columns: 3}, TypeFloat3x3},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 3, Columns: 4}, TypeFloat4x3},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 4, Columns: 4}, TypeFloat4x4},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 2, Columns: 2}, TypeUnknown},
		{api.UniformInfo{Base: api.UniformFloat, Rows: 1, Columns: 1, ArrayLength: 4}, TypeUnknown},
		{api.UniformInfo{Base: api.UniformInt, Rows: 1, Columns: 1}, TypeInt},
		{api.UniformInfo{Base: api.UniformInt, Rows: 2, Columns: 1}, TypeUnknown},
		{api.UniformInfo{Base: api.UniformUint, Rows: 1, Columns: 1}, TypeUint},
		{api.UniformInfo{Base: api.UniformBool, Rows: 1, Columns: 1}, TypeUnknown},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.u); got != tt.want {
			t.Errorf("TypeOf(%+v) = %v, want %v", tt.u, got, tt.want)
		}
	}
	if got := TypeFloat4x3.Size(); got != 48 {
		t.Errorf("TypeFloat4x3.Size() = %d, want 48", got)
	}
}

func TestReloadVariables(t *testing.T) {
	h := NewHandler(&noneCopier{})
	h.ReloadVariables([]api.UniformInfo{
		{Handle: 1, Source: "fov", Base: api.UniformFloat, Rows: 1, Columns: 1},
		{Handle: 2, Source: "fov", Base: api.UniformFloat, Rows: 1, Columns: 1},
		{Handle: 3, Source: "fov", Base: api.UniformInt, Rows: 1, Columns: 1},
		{Handle: 4, Name: "plain", Base: api.UniformFloat, Rows: 1, Columns: 1},
		{Handle: 5, Source: "view", Base: api.UniformFloat, Rows: 4, Columns: 4},
	})
	if n := h.Sources(); n != 2 {
		t.Errorf("Sources = %d, want 2", n)
	}
	v, ok := h.Variable("fov")
	if !ok || v.Type != TypeFloat || !slices.Equal(v.Handles, []api.UniformVariable{1, 2}) {
		t.Errorf("Variable(fov) = %+v, %v", v, ok)
	}
	h.ClearVariables()
	if _, ok := h.Variable("view"); ok {
		t.Error("variable survived ClearVariables")
	}
}

func pushSetup(t *testing.T) (*Handler, *state.Block, *fakehost.Runtime, *group.Group) {
	t.Helper()
	dev := fakehost.NewDevice(api.D3D12)
	rt := fakehost.NewRuntime(dev, 1920, 1080)
	h := NewHandler(&noneCopier{})
	h.ReloadVariables([]api.UniformInfo{
		{Handle: 10, Source: "scale", Base: api.UniformFloat, Rows: 1, Columns: 1},
		{Handle: 11, Source: "count", Base: api.UniformInt, Rows: 1, Columns: 1},
	})
	b := state.NewBlock(nil)
	b.OnPushConstants(api.ShaderStagePixel, 1, 1, 0, []uint32{math.Float32bits(1.5), 7})

	g := group.New("push")
	g.ExtractConstants = true
	g.ConstantPushMode = true
	g.ConstantSlot = 1
	g.SetVarMapping("scale", 0, false)
	g.SetVarMapping("count", 4, false)
	return h, b, rt, g
}

func TestPushModeAppliesValues(t *testing.T) {
	h, b, rt, g := pushSetup(t)
	tr := tracker{}
	queue := map[group.ID]*group.Group{g.ID(): g}

	h.UpdateConstants(nil, b, rt, tr, queue)
	if len(queue) != 0 {
		t.Errorf("queue = %v, want empty", queue)
	}
	if !tr[g.ID()] {
		t.Error("group not marked updated")
	}
	if got := rt.Floats[10]; len(got) != 1 || got[0] != 1.5 {
		t.Errorf("scale = %v, want [1.5]", got)
	}
	if got := rt.Ints[11]; len(got) != 1 || got[0] != 7 {
		t.Errorf("count = %v, want [7]", got)
	}
}

func TestPushModeSlotZero(t *testing.T) {
	h, b, rt, g := pushSetup(t)
	g.ConstantSlot = 0
	queue := map[group.ID]*group.Group{g.ID(): g}
	h.UpdateConstants(nil, b, rt, tracker{}, queue)
	if len(queue) != 1 {
		t.Error("slot zero push constants consumed")
	}
}

func TestPushModeClampsSlot(t *testing.T) {
	h, b, rt, g := pushSetup(t)
	g.ConstantSlot = 9999
	queue := map[group.ID]*group.Group{g.ID(): g}
	h.UpdateConstants(nil, b, rt, tracker{}, queue)
	if len(queue) != 0 {
		t.Error("clamped slot not read")
	}
}

func TestUpdateSkipsUpdatedGroups(t *testing.T) {
	h, b, rt, g := pushSetup(t)
	tr := tracker{g.ID(): true}
	queue := map[group.ID]*group.Group{g.ID(): g}
	h.UpdateConstants(nil, b, rt, tr, queue)
	if len(queue) != 1 || len(rt.Floats) != 0 {
		t.Error("already updated group extracted again")
	}
}

func TestApplyValuesBounds(t *testing.T) {
	h, b, rt, g := pushSetup(t)
	g.SetVarMapping("count", 8, false)
	h.UpdateConstants(nil, b, rt, tracker{}, map[group.ID]*group.Group{g.ID(): g})
	if _, ok := rt.Ints[11]; ok {
		t.Error("mapping past the buffer end applied")
	}
	g.SetVarMapping("count", 4, false)
	h.ApplyValues(rt, g)
	if _, ok := rt.Ints[11]; !ok {
		t.Error("mapping ending at the buffer end skipped")
	}
}

func TestPreviousValues(t *testing.T) {
	h, _, rt, g := pushSetup(t)
	g.SetVarMapping("scale", 0, true)
	h.SetConstants(g, []uint32{math.Float32bits(1), 0})
	h.SetConstants(g, []uint32{math.Float32bits(2), 0})
	h.ApplyValues(rt, g)
	if got := rt.Floats[10]; len(got) != 1 || got[0] != 1 {
		t.Errorf("previous scale = %v, want [1]", got)
	}
	if got := h.Buffer(g.ID()); !slices.Equal(got, le(math.Float32bits(2), 0)) {
		t.Errorf("Buffer = %v", got)
	}
	h.RemoveGroup(g.ID())
	if h.Buffer(g.ID()) != nil {
		t.Error("buffer survived RemoveGroup")
	}
}

func descriptorBlock(buffers ...api.ResourceHandle) *state.Block {
	b := state.NewBlock(nil)
	descs := make([]api.Descriptor, len(buffers))
	for i, res := range buffers {
		descs[i] = api.Descriptor{Range: api.BufferRange{Buffer: res}}
	}
	b.OnPushDescriptors(api.ShaderStagePixel, 0, 2, api.TableUpdate{
		Type:        api.DescriptorTypeConstantBuffer,
		Descriptors: descs,
	})
	return b
}

func TestDescriptorModeNestedMemcpy(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	rt := fakehost.NewRuntime(dev, 1920, 1080)
	cmd := fakehost.NewCommandList(dev)
	c, err := NewCopier(CopierMemcpyNested, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(c)
	h.ReloadVariables([]api.UniformInfo{{Handle: 10, Source: "v", Base: api.UniformUint, Rows: 1, Columns: 1}})

	initial := le(1, 2, 3, 4)
	cb := dev.AddBuffer(initial, api.HeapCPUToGPU)
	desc := dev.ResourceDesc(cb)
	c.OnInitResource(desc, initial, cb)
	b := descriptorBlock(cb)

	g := group.New("cb")
	g.ExtractConstants = true
	g.SetVarMapping("v", 8, false)

	tr := tracker{}
	h.UpdateConstants(cmd, b, rt, tr, map[group.ID]*group.Group{g.ID(): g})
	if got := rt.Uints[10]; !slices.Equal(got, []uint32{3}) {
		t.Errorf("v = %v, want [3]", got)
	}

	c.OnMapBufferRegion(desc, cb, 0, 0, api.MapWriteDiscard, 0x1000)
	c.OnMemcpy(0x1008, le(42))
	c.OnUnmapBufferRegion(desc, cb)
	c.OnMemcpy(0x1008, le(99))

	clear(tr)
	h.UpdateConstants(cmd, b, rt, tr, map[group.ID]*group.Group{g.ID(): g})
	if got := rt.Uints[10]; !slices.Equal(got, []uint32{42}) {
		t.Errorf("v after memcpy = %v, want [42]", got)
	}
}

func TestSingularMemcpyOffset(t *testing.T) {
	c := &singularCopier{}
	desc := api.BufferDesc(16, api.HeapCPUToGPU, api.UsageConstantBuffer)
	c.OnInitResource(desc, nil, 7)
	c.OnMapBufferRegion(desc, 7, 0, 16, api.MapReadOnly, 0x2000)
	c.OnMemcpy(0x2000, le(5))

	c.OnMapBufferRegion(desc, 7, 0, 16, api.MapWriteOnly, 0x2000)
	c.OnMemcpy(0x2004, le(5))
	c.OnMemcpy(0x3000, le(6))

	dst := make([]byte, 16)
	c.HostBuffer(nil, nil, dst, 7)
	if !slices.Equal(dst, le(0, 5, 0, 0)) {
		t.Errorf("host buffer = %v, want 5 at offset 4", dst)
	}
}

func TestDescriptorCycle(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	rt := fakehost.NewRuntime(dev, 1920, 1080)
	cmd := fakehost.NewCommandList(dev)
	c := &nestedCopier{}
	h := NewHandler(c)

	first := dev.AddBuffer(le(1), api.HeapCPUToGPU)
	last := dev.AddBuffer(le(3), api.HeapCPUToGPU)
	b := descriptorBlock(first, 0, last)

	g := group.New("cycle")
	g.ExtractConstants = true
	g.RequestCycle(group.CycleConstants, group.CycleUp)
	h.UpdateConstants(cmd, b, rt, tracker{}, map[group.ID]*group.Group{g.ID(): g})
	if got := g.DescriptorIndex(group.CycleConstants); got != 2 {
		t.Errorf("DescriptorIndex = %d, want 2", got)
	}

	g.RequestCycle(group.CycleConstants, group.CycleDown)
	h.UpdateConstants(cmd, b, rt, tracker{}, map[group.ID]*group.Group{g.ID(): g})
	if got := g.DescriptorIndex(group.CycleConstants); got != 0 {
		t.Errorf("DescriptorIndex = %d, want 0", got)
	}
}

func TestDescriptorModeEmpty(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	rt := fakehost.NewRuntime(dev, 1920, 1080)
	h := NewHandler(&nestedCopier{})
	g := group.New("empty")
	g.ExtractConstants = true
	queue := map[group.ID]*group.Group{g.ID(): g}

	h.UpdateConstants(fakehost.NewCommandList(dev), state.NewBlock(nil), rt, tracker{}, queue)
	if len(queue) != 1 {
		t.Error("group removed without a bound buffer")
	}
}

func TestGPUReadback(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D11)
	rt := fakehost.NewRuntime(dev, 1920, 1080)
	cmd := fakehost.NewCommandList(dev)
	groups := groupres.NewManager(dev)
	c, err := NewCopier(CopierGPUReadback, Deps{Groups: groups})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(c)
	h.ReloadVariables([]api.UniformInfo{{Handle: 10, Source: "v", Base: api.UniformUint, Rows: 1, Columns: 1}})

	cb := dev.AddBuffer(le(8, 9), api.HeapCPUToGPU)
	b := descriptorBlock(cb)
	g := group.New("readback")
	g.ExtractConstants = true
	g.SetVarMapping("v", 4, false)

	h.UpdateConstants(cmd, b, rt, tracker{}, map[group.ID]*group.Group{g.ID(): g})
	if got := rt.Uints[10]; !slices.Equal(got, []uint32{0}) {
		t.Errorf("v before readback buffer = %v, want [0]", got)
	}
	if n := groups.CheckGroups([]*group.Group{g}); n != 1 {
		t.Fatalf("CheckGroups recreated %d, want 1", n)
	}

	h.UpdateConstants(cmd, b, rt, tracker{}, map[group.ID]*group.Group{g.ID(): g})
	if got := rt.Uints[10]; !slices.Equal(got, []uint32{9}) {
		t.Errorf("v = %v, want [9]", got)
	}
	if dev.Mapped != 1 || dev.Unmapped != 1 {
		t.Errorf("mapped %d unmapped %d, want 1 and 1", dev.Mapped, dev.Unmapped)
	}
}

func TestCopierRegistry(t *testing.T) {
	want := []string{CopierGPUReadback, CopierMemcpyNested, CopierMemcpySingular, CopierNone}
	if got := Copiers(); !slices.Equal(got, want) {
		t.Errorf("Copiers = %v, want %v", got, want)
	}
	if _, err := NewCopier("bogus", Deps{}); !errors.Is(err, ErrUnknownCopier) {
		t.Errorf("NewCopier(bogus) error = %v, want ErrUnknownCopier", err)
	}
	for _, name := range []string{"ffxiv", "nier_replicant"} {
		c, err := NewCopier(name, Deps{})
		if err != nil || c.Name() != CopierNone {
			t.Errorf("NewCopier(%s) = %v, %v, want none", name, c, err)
		}
	}
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name    string
		factory Factory
	}{
		{"nil factory", nil},
		{CopierNone, func(Deps) Copier { return &noneCopier{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Register did not panic")
				}
			}()
			Register(tt.name, tt.factory)
		})
	}
}

func TestUnregister(t *testing.T) {
	Register("test_copier", func(Deps) Copier { return &noneCopier{} })
	Unregister("test_copier")
	if slices.Contains(Copiers(), "test_copier") {
		t.Error("copier still registered")
	}
}
