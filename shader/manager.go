// Package shader maps pipelines to the hashes of the shaders they were
// created from and drives hunting, the mode in which the user steps
// through the shaders seen in recent frames to pick the ones a group
// should toggle.
//
// A device keeps one Manager per shader stage. Hashes are the CRC32 of the
// shader byte code so they stay stable across runs of the game.
package shader

import (
	"hash/crc32"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
)

// Hash returns the hash identifying code. Empty code hashes to zero, which
// no pipeline is ever registered under.
func Hash(code []byte) uint32 {
	if len(code) == 0 {
		return 0
	}
	return crc32.ChecksumIEEE(code)
}

// Manager tracks the pipelines of one shader stage.
type Manager struct {
	mu       sync.RWMutex
	byHandle map[api.Pipeline]uint32
	hashes   map[uint32]int

	huntMu      sync.RWMutex
	hunting     bool
	collected   []uint32
	marked      group.HashSet
	activeIndex int
	activeHash  uint32
	hideMarked  bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		byHandle:    make(map[api.Pipeline]uint32),
		hashes:      make(map[uint32]int),
		marked:      make(group.HashSet),
		activeIndex: -1,
	}
}

// Add records that pipeline p contains the shader with hash h.
func (m *Manager) Add(h uint32, p api.Pipeline) {
	if h == 0 || p == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byHandle[p]; ok {
		m.release(old)
	}
	m.byHandle[p] = h
	m.hashes[h]++
}

// Remove forgets pipeline p.
func (m *Manager) Remove(p api.Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.byHandle[p]; ok {
		delete(m.byHandle, p)
		m.release(h)
	}
}

func (m *Manager) release(h uint32) {
	if m.hashes[h] <= 1 {
		delete(m.hashes, h)
		return
	}
	m.hashes[h]--
}

// HashOf returns the shader hash of pipeline p, or zero when p is unknown.
func (m *Manager) HashOf(p api.Pipeline) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byHandle[p]
}

// IsKnown reports whether p was registered.
func (m *Manager) IsKnown(p api.Pipeline) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byHandle[p]
	return ok
}

// PipelineCount returns the number of live pipelines.
func (m *Manager) PipelineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHandle)
}

// ShaderCount returns the number of distinct shader hashes of the live
// pipelines.
func (m *Manager) ShaderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hashes)
}

// StartHunting enters hunting mode with marked as the initially marked
// hashes. Collected hashes from a previous hunt are dropped.
func (m *Manager) StartHunting(marked group.HashSet) {
	m.huntMu.Lock()
	defer m.huntMu.Unlock()
	m.hunting = true
	m.collected = m.collected[:0]
	m.marked = make(group.HashSet, len(marked))
	for h := range marked {
		m.marked[h] = struct{}{}
	}
	m.activeIndex = -1
	m.activeHash = 0
}

// StopHunting leaves hunting mode and forgets collected and marked hashes.
func (m *Manager) StopHunting() {
	m.huntMu.Lock()
	defer m.huntMu.Unlock()
	m.hunting = false
	m.collected = m.collected[:0]
	clear(m.marked)
	m.activeIndex = -1
	m.activeHash = 0
}

// Hunting reports whether the manager is in hunting mode.
func (m *Manager) Hunting() bool {
	m.huntMu.RLock()
	defer m.huntMu.RUnlock()
	return m.hunting
}

// Collect adds the shader of pipeline p to the collected hashes. It is
// called on every pipeline bind while the collection phase runs.
func (m *Manager) Collect(p api.Pipeline) {
	h := m.HashOf(p)
	if h == 0 {
		return
	}
	m.huntMu.Lock()
	defer m.huntMu.Unlock()
	if !m.hunting {
		return
	}
	i, found := slices.BinarySearch(m.collected, h)
	if !found {
		m.collected = slices.Insert(m.collected, i, h)
	}
}

// Collected returns the collected hashes in ascending order.
func (m *Manager) Collected() []uint32 {
	m.huntMu.RLock()
	defer m.huntMu.RUnlock()
	return slices.Clone(m.collected)
}

// SetActiveIndex makes the collected hash at index the hunted one. Out of
// range indices clear the hunted hash.
func (m *Manager) SetActiveIndex(index int) {
	m.huntMu.Lock()
	defer m.huntMu.Unlock()
	m.setActive(index)
}

func (m *Manager) setActive(index int) {
	if index < 0 || index >= len(m.collected) {
		m.activeIndex = -1
		m.activeHash = 0
		return
	}
	m.activeIndex = index
	m.activeHash = m.collected[index]
}

// ActiveHash returns the hunted hash, zero when none is selected.
func (m *Manager) ActiveHash() uint32 {
	m.huntMu.RLock()
	defer m.huntMu.RUnlock()
	return m.activeHash
}

// ActiveIndex returns the index of the hunted hash in Collected, or -1.
func (m *Manager) ActiveIndex() int {
	m.huntMu.RLock()
	defer m.huntMu.RUnlock()
	return m.activeIndex
}

// HuntNext moves to the next collected hash, wrapping at the end. With
// markedOnly it moves to the next marked hash instead and stays put when
// there is none.
func (m *Manager) HuntNext(markedOnly bool) {
	m.step(1, markedOnly)
}

// HuntPrevious is HuntNext in the other direction.
func (m *Manager) HuntPrevious(markedOnly bool) {
	m.step(-1, markedOnly)
}

func (m *Manager) step(dir int, markedOnly bool) {
	m.huntMu.Lock()
	defer m.huntMu.Unlock()
	n := len(m.collected)
	if !m.hunting || n == 0 {
		return
	}
	start := m.activeIndex
	if start < 0 && dir < 0 {
		start = 0
	}
	for i := 1; i <= n; i++ {
		idx := ((start+dir*i)%n + n) % n
		if !markedOnly || m.marked.Has(m.collected[idx]) {
			m.setActive(idx)
			return
		}
	}
}

// ToggleMark marks the hunted hash, or unmarks it when already marked.
func (m *Manager) ToggleMark() {
	m.huntMu.Lock()
	defer m.huntMu.Unlock()
	if m.activeHash == 0 {
		return
	}
	if m.marked.Has(m.activeHash) {
		delete(m.marked, m.activeHash)
		return
	}
	m.marked[m.activeHash] = struct{}{}
}

// IsMarked reports whether h is marked.
func (m *Manager) IsMarked(h uint32) bool {
	m.huntMu.RLock()
	defer m.huntMu.RUnlock()
	return m.marked.Has(h)
}

// Marked returns a copy of the marked hashes.
func (m *Manager) Marked() group.HashSet {
	m.huntMu.RLock()
	defer m.huntMu.RUnlock()
	out := make(group.HashSet, len(m.marked))
	for h := range m.marked {
		out[h] = struct{}{}
	}
	return out
}

// ToggleHideMarked switches whether marked shaders are hidden while
// hunting.
func (m *Manager) ToggleHideMarked() bool {
	m.huntMu.Lock()
	defer m.huntMu.Unlock()
	m.hideMarked = !m.hideMarked
	return m.hideMarked
}

// IsBlocked reports whether draws using the shader with hash h are hidden:
// it is the hunted shader, or it is marked and marked shaders are hidden.
func (m *Manager) IsBlocked(h uint32) bool {
	if h == 0 {
		return false
	}
	m.huntMu.RLock()
	defer m.huntMu.RUnlock()
	if !m.hunting {
		return false
	}
	return h == m.activeHash || (m.hideMarked && m.marked.Has(h))
}

// DefaultCollectFrames is the length of the collection phase in frames.
const DefaultCollectFrames = 10

// Collector counts down the frames of the collection phase that starts
// when a group enters hunting.
type Collector struct {
	frames atomic.Int32
}

// Start begins a collection phase of n frames.
func (c *Collector) Start(n int) {
	c.frames.Store(int32(max(n, 0)))
}

// Active reports whether the collection phase runs.
func (c *Collector) Active() bool { return c.frames.Load() > 0 }

// Tick ends one frame. It reports true on the frame the phase ends.
func (c *Collector) Tick() bool {
	for {
		n := c.frames.Load()
		if n <= 0 {
			return false
		}
		if c.frames.CompareAndSwap(n, n-1) {
			return n == 1
		}
	}
}
