package constant

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/shadertoggle/groupres"
	"github.com/gogpu/shadertoggle/internal/logx"
)

// ErrUnknownCopier is returned by NewCopier for names that were never
// registered.
var ErrUnknownCopier = errors.New("constant: unknown copier")

// Deps are the device services a copier may use.
type Deps struct {
	Groups *groupres.Manager
}

// Factory creates a copier. Factories are registered via Register and
// called by NewCopier.
type Factory func(Deps) Copier

var (
	registryMu sync.RWMutex
	copiers    = make(map[string]Factory)
)

// hookOnly names strategies that patch game code. They are accepted in
// configuration but have no implementation here.
var hookOnly = map[string]bool{
	"ffxiv":          true,
	"nier_replicant": true,
}

// Register registers a copier factory under name.
//
// Register panics if factory is nil or a copier with the same name is
// already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("constant: Register factory is nil")
	}
	if _, dup := copiers[name]; dup {
		panic("constant: Register called twice for " + name)
	}
	copiers[name] = factory
}

// Unregister removes a copier from the registry. It is a no-op for unknown
// names.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(copiers, name)
}

// NewCopier creates the copier registered under name. The names of game
// specific hooks are accepted and fall back to "none" with a warning.
func NewCopier(name string, deps Deps) (Copier, error) {
	if hookOnly[name] {
		logx.L().Warn("constant: copier needs a game hook, using none", "copier", name)
		name = CopierNone
	}

	registryMu.RLock()
	factory, ok := copiers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCopier, name)
	}
	return factory(deps), nil
}

// Copiers returns the registered copier names in sorted order.
func Copiers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(copiers))
	for name := range copiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
