package descriptor

import (
	"sync"
	"testing"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/internal/fakehost"
)

func srvUpdate(table api.DescriptorTable, binding uint32, views ...api.ResourceView) api.TableUpdate {
	u := api.TableUpdate{Table: table, Binding: binding, Type: api.DescriptorTypeShaderResourceView}
	for _, v := range views {
		u.Descriptors = append(u.Descriptors, api.Descriptor{View: v})
	}
	return u
}

func TestRegisterLayoutCopiesRanges(t *testing.T) {
	tr := NewTracker(fakehost.NewDevice(api.D3D12))

	ranges := []api.DescriptorRange{{Binding: 0, Count: 4, Type: api.DescriptorTypeShaderResourceView}}
	params := []api.LayoutParam{
		{Type: api.LayoutParamDescriptorTable, Ranges: ranges},
		{Type: api.LayoutParamPushConstants, PushConstants: api.PushConstantRange{Count: 8}},
	}
	tr.RegisterLayout(1, params)

	// Mutating the caller's slices must not leak into the shadow.
	ranges[0].Count = 99
	params[1].PushConstants.Count = 1

	p, ok := tr.LayoutParam(1, 0)
	if !ok {
		t.Fatal("LayoutParam(1, 0) not found")
	}
	if p.Ranges[0].Count != 4 {
		t.Errorf("range count = %d, want 4", p.Ranges[0].Count)
	}
	p, _ = tr.LayoutParam(1, 1)
	if p.PushConstants.Count != 8 {
		t.Errorf("push constant count = %d, want 8", p.PushConstants.Count)
	}
	if n := tr.LayoutParamCount(1); n != 2 {
		t.Errorf("LayoutParamCount = %d, want 2", n)
	}
}

func TestUnregisterLayoutIdempotent(t *testing.T) {
	tr := NewTracker(fakehost.NewDevice(api.D3D12))
	tr.RegisterLayout(1, []api.LayoutParam{{Type: api.LayoutParamDescriptorTable}})
	if params, ok := tr.Layout(1); !ok || len(params) != 1 {
		t.Fatalf("Layout = %v, %v, want one parameter", params, ok)
	}

	tr.UnregisterLayout(1)
	tr.UnregisterLayout(1)
	tr.UnregisterLayout(42)

	if _, ok := tr.LayoutParam(1, 0); ok {
		t.Error("LayoutParam after unregister should report false")
	}
	if _, ok := tr.Layout(1); ok {
		t.Error("Layout after unregister should report false")
	}
	if _, ok := tr.LayoutParam(42, 0); ok {
		t.Error("LayoutParam of unknown layout should report false")
	}
}

func TestHeapGrowthMonotonic(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D12)
	dev.AddTable(10, 1, 0)
	tr := NewTracker(dev)

	tr.ApplyTableUpdate([]api.TableUpdate{srvUpdate(10, 0, 100, 101)})
	if n := tr.HeapLen(1); n != 2 {
		t.Fatalf("HeapLen = %d, want 2", n)
	}

	prev := tr.HeapLen(1)
	for offset := uint32(4); offset < 64; offset += 7 {
		tr.ApplyTableUpdate([]api.TableUpdate{srvUpdate(10, offset, api.ResourceView(200+offset))})
		n := tr.HeapLen(1)
		if n < prev {
			t.Fatalf("heap shrank from %d to %d", prev, n)
		}
		prev = n

		if v := tr.ShaderResourceView(1, 0); v != 100 {
			t.Fatalf("entry 0 = %d after update at %d, want 100", v, offset)
		}
		if v := tr.ShaderResourceView(1, 1); v != 101 {
			t.Fatalf("entry 1 = %d after update at %d, want 101", v, offset)
		}
	}

	// A write to a low offset must not shrink the heap.
	tr.ApplyTableUpdate([]api.TableUpdate{srvUpdate(10, 0, 300)})
	if n := tr.HeapLen(1); n != prev {
		t.Errorf("HeapLen = %d after low write, want %d", n, prev)
	}
}

func TestApplyTableUpdateTypes(t *testing.T) {
	dev := fakehost.NewDevice(api.Vulkan)
	tr := NewTracker(dev)

	tr.ApplyTableUpdate([]api.TableUpdate{
		{Table: 1, Type: api.DescriptorTypeSampler, Descriptors: []api.Descriptor{{Sampler: 5, View: 9}}},
		{Table: 1, Binding: 1, Type: api.DescriptorTypeSamplerWithResourceView, Descriptors: []api.Descriptor{{Sampler: 6, View: 7}}},
		{Table: 1, Binding: 2, Type: api.DescriptorTypeConstantBuffer, Descriptors: []api.Descriptor{{Range: api.BufferRange{Buffer: 3, Size: 64}}}},
		{Table: 1, Binding: 3, Type: api.DescriptorTypeUnorderedAccessView, Descriptors: []api.Descriptor{{View: 8}}},
	})

	d, _ := tr.Descriptor(1, 0)
	if d.Sampler != 5 || d.View != 0 {
		t.Errorf("sampler descriptor = %+v, want sampler only", d)
	}
	if s := tr.Sampler(1, 1); s != 6 {
		t.Errorf("Sampler(1) = %d, want 6", s)
	}
	if v := tr.ShaderResourceView(1, 1); v != 7 {
		t.Errorf("ShaderResourceView(1) = %d, want 7", v)
	}
	if r := tr.BufferRange(1, 2); r.Buffer != 3 || r.Size != 64 {
		t.Errorf("BufferRange(2) = %+v", r)
	}
	if v := tr.ShaderResourceView(1, 3); v != 0 {
		t.Errorf("ShaderResourceView of UAV = %d, want 0", v)
	}
	d, _ = tr.Descriptor(1, 3)
	if d.View != 8 {
		t.Errorf("UAV view = %d, want 8", d.View)
	}
}

func TestApplyTableCopy(t *testing.T) {
	dev := fakehost.NewDevice(api.D3D12)
	dev.AddTable(10, 1, 0)
	dev.AddTable(20, 2, 8)
	tr := NewTracker(dev)

	tr.ApplyTableUpdate([]api.TableUpdate{srvUpdate(10, 0, 100, 101, 102)})
	tr.ApplyTableCopy([]api.TableCopy{{Source: 10, SourceBinding: 1, Dest: 20, Count: 2}})

	if n := tr.HeapLen(2); n != 10 {
		t.Fatalf("HeapLen(dest) = %d, want 10", n)
	}
	if v := tr.ShaderResourceView(2, 8); v != 101 {
		t.Errorf("copied[0] = %d, want 101", v)
	}
	if v := tr.ShaderResourceView(2, 9); v != 102 {
		t.Errorf("copied[1] = %d, want 102", v)
	}
}

func TestApplyTableCopyFromUnknownHeap(t *testing.T) {
	tr := NewTracker(fakehost.NewDevice(api.D3D12))
	tr.ApplyTableCopy([]api.TableCopy{{Source: 77, Dest: 78, Count: 3}})

	if n := tr.HeapLen(78); n != 3 {
		t.Errorf("HeapLen = %d, want 3", n)
	}
	if d, _ := tr.Descriptor(78, 2); !d.IsZero() {
		t.Errorf("descriptor = %+v, want zero", d)
	}
}

func TestCopyRangeClamps(t *testing.T) {
	tr := NewTracker(fakehost.NewDevice(api.D3D12))
	tr.ApplyTableUpdate([]api.TableUpdate{srvUpdate(1, 0, 1, 2, 3)})

	dst := make([]api.Descriptor, 8)
	if n := tr.CopyRange(1, 1, 8, dst); n != 2 {
		t.Errorf("CopyRange = %d, want 2", n)
	}
	if dst[0].View != 2 || dst[1].View != 3 || dst[2].View != 0 {
		t.Errorf("CopyRange dst = %v", dst[:3])
	}
	if n := tr.CopyRange(1, 5, 2, dst); n != 0 {
		t.Errorf("CopyRange past end = %d, want 0", n)
	}
	if n := tr.CopyRange(99, 0, 2, dst); n != 0 {
		t.Errorf("CopyRange unknown heap = %d, want 0", n)
	}
}

func TestUnknownHeapQueries(t *testing.T) {
	tr := NewTracker(fakehost.NewDevice(api.D3D12))
	if _, ok := tr.Descriptor(5, 0); ok {
		t.Error("Descriptor on unknown heap should report false")
	}
	if v := tr.ShaderResourceView(5, 0); v != 0 {
		t.Errorf("ShaderResourceView = %d, want 0", v)
	}
	if n := tr.HeapLen(5); n != 0 {
		t.Errorf("HeapLen = %d, want 0", n)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	tr := NewTracker(fakehost.NewDevice(api.D3D12))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr.ApplyTableUpdate([]api.TableUpdate{srvUpdate(1, uint32(g*100+i), api.ResourceView(i+1))})
				tr.ShaderResourceView(1, uint32(i))
			}
		}(g)
	}
	wg.Wait()

	if n := tr.HeapLen(1); n != 800 {
		t.Errorf("HeapLen = %d, want 800", n)
	}
}
