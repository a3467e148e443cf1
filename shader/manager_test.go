package shader

import (
	"hash/crc32"
	"slices"
	"testing"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
)

func TestHash(t *testing.T) {
	code := []byte("ps_5_0 main")
	if got, want := Hash(code), crc32.ChecksumIEEE(code); got != want {
		t.Errorf("Hash = %#x, want %#x", got, want)
	}
	if got := Hash(nil); got != 0 {
		t.Errorf("Hash(nil) = %#x, want 0", got)
	}
	if Hash([]byte("a")) == Hash([]byte("b")) {
		t.Error("different code hashed equal")
	}
}

func TestAddRemove(t *testing.T) {
	m := NewManager()
	m.Add(0xaa, 1)
	m.Add(0xaa, 2)
	m.Add(0xbb, 3)
	m.Add(0, 4)

	if got := m.HashOf(2); got != 0xaa {
		t.Errorf("HashOf(2) = %#x, want 0xaa", got)
	}
	if m.PipelineCount() != 3 || m.ShaderCount() != 2 {
		t.Errorf("counts = %d pipelines %d shaders, want 3 and 2", m.PipelineCount(), m.ShaderCount())
	}

	m.Remove(1)
	if m.ShaderCount() != 2 {
		t.Errorf("ShaderCount after removing one of two pipelines = %d, want 2", m.ShaderCount())
	}
	m.Remove(2)
	if m.ShaderCount() != 1 || m.IsKnown(2) {
		t.Error("hash survived removal of its last pipeline")
	}
	m.Remove(99)

	m.Add(0xcc, 3)
	if got := m.HashOf(3); got != 0xcc || m.ShaderCount() != 1 {
		t.Errorf("re-added pipeline hash = %#x, shaders %d", got, m.ShaderCount())
	}
}

func huntingManager() *Manager {
	m := NewManager()
	m.Add(0x30, 1)
	m.Add(0x10, 2)
	m.Add(0x20, 3)
	m.StartHunting(group.NewHashSet(0x20))
	for _, p := range []api.Pipeline{1, 2, 3, 2, 42} {
		m.Collect(p)
	}
	return m
}

func TestCollect(t *testing.T) {
	m := huntingManager()
	if got := m.Collected(); !slices.Equal(got, []uint32{0x10, 0x20, 0x30}) {
		t.Errorf("Collected = %#x", got)
	}
	m.StopHunting()
	m.Collect(1)
	if len(m.Collected()) != 0 || m.Hunting() {
		t.Error("collected outside hunting")
	}
}

func TestHuntStepping(t *testing.T) {
	m := huntingManager()

	m.HuntNext(false)
	if got := m.ActiveHash(); got != 0x10 {
		t.Errorf("first HuntNext = %#x, want 0x10", got)
	}
	m.HuntPrevious(false)
	if got := m.ActiveHash(); got != 0x30 {
		t.Errorf("HuntPrevious wraps to %#x, want 0x30", got)
	}
	m.HuntNext(true)
	if got := m.ActiveHash(); got != 0x20 {
		t.Errorf("HuntNext(marked) = %#x, want 0x20", got)
	}
	m.HuntNext(true)
	if got := m.ActiveIndex(); got != 1 {
		t.Errorf("only marked hash stays active, index = %d, want 1", got)
	}

	m.SetActiveIndex(7)
	if m.ActiveHash() != 0 || m.ActiveIndex() != -1 {
		t.Error("out of range index kept a hunted hash")
	}
}

func TestMarkAndBlock(t *testing.T) {
	m := huntingManager()
	m.SetActiveIndex(0)

	if !m.IsBlocked(0x10) {
		t.Error("hunted shader not blocked")
	}
	if m.IsBlocked(0x20) {
		t.Error("marked shader blocked while not hidden")
	}
	if !m.ToggleHideMarked() || !m.IsBlocked(0x20) {
		t.Error("marked shader not blocked while hidden")
	}

	m.ToggleMark()
	if !m.IsMarked(0x10) {
		t.Error("ToggleMark did not mark hunted shader")
	}
	m.ToggleMark()
	if m.IsMarked(0x10) {
		t.Error("second ToggleMark did not unmark")
	}

	marked := m.Marked()
	marked[0x99] = struct{}{}
	if m.IsMarked(0x99) {
		t.Error("Marked returned the internal set")
	}

	m.StopHunting()
	if m.IsBlocked(0x10) {
		t.Error("blocked after hunting stopped")
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	if c.Active() || c.Tick() {
		t.Error("idle collector active")
	}
	c.Start(2)
	if c.Tick() {
		t.Error("phase ended after first frame")
	}
	if !c.Tick() {
		t.Error("phase did not end after second frame")
	}
	if c.Active() || c.Tick() {
		t.Error("collector active after phase end")
	}
}
