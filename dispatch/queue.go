package dispatch

import (
	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/resolve"
)

// RenderData is a queued action. Resource is zero until the action has been
// resolved at a draw.
type RenderData struct {
	Group      *group.Group
	Invocation group.CallSite
	Resource   api.ResourceHandle
	Format     api.Format
}

// Resolved reports whether the action has a resource.
func (d RenderData) Resolved() bool { return d.Resource != 0 }

// Resolver materializes the resource of a queued group.
type Resolver func(g *group.Group) resolve.Target

// StageQueue is the per-stage state of a command list: the active shader,
// the groups it blocks and the actions queued for them.
type StageQueue struct {
	Hash    uint32
	Blocked []*group.Group

	Effects   map[api.Technique]RenderData
	Bindings  map[group.ID]RenderData
	Constants map[group.ID]*group.Group
}

func newStageQueue() StageQueue {
	return StageQueue{
		Effects:   make(map[api.Technique]RenderData),
		Bindings:  make(map[group.ID]RenderData),
		Constants: make(map[group.ID]*group.Group),
	}
}

func (q *StageQueue) reset() {
	q.Hash = 0
	clear(q.Blocked)
	q.Blocked = q.Blocked[:0]
	clear(q.Effects)
	clear(q.Bindings)
	clear(q.Constants)
}

// QueueOrDequeue walks q for call site site. At a draw, unresolved entries
// are resolved through res: a hit stores the resource, a miss keeps the
// entry when its group asked for requeue and drops it otherwise. Keys of
// resolved entries whose invocation is site are appended to dst.
func QueueOrDequeue[K comparable](q map[K]RenderData, site group.CallSite, res Resolver, dst []K) []K {
	for k, d := range q {
		if site == group.CallDraw && !d.Resolved() {
			t := res(d.Group)
			if t.IsZero() {
				if !d.Group.Requeue {
					delete(q, k)
				}
				continue
			}
			d.Resource = t.Resource
			d.Format = t.Format
			q[k] = d
		}
		if d.Resolved() && d.Invocation == site {
			dst = append(dst, k)
		}
	}
	return dst
}
