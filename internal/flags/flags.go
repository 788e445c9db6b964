// Package flags holds the migration flags that decide, per module, whether
// the gateway serves a request itself or hands it to the legacy system.
package flags

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Module names a vertical slice of functionality that can be migrated independently
type Module string

// Known modules. The set is fixed at build time.
const (
	Books    Module = "books"
	Pages    Module = "pages"
	Comments Module = "comments"
)

// Modules lists every known module in a stable order
var Modules = []Module{Books, Pages, Comments}

// IsKnown reports whether name is one of the known modules
func IsKnown(name string) bool {
	for _, m := range Modules {
		if string(m) == name {
			return true
		}
	}
	return false
}

// Flags is an immutable snapshot of every module's migration state
type Flags map[Module]bool

// Enabled reports whether m is served locally in this snapshot
func (f Flags) Enabled(m Module) bool {
	return f[m]
}

// EnabledModules returns the modules switched on, sorted by name
func (f Flags) EnabledModules() []Module {
	var out []Module
	for m, on := range f {
		if on {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f Flags) clone() Flags {
	out := make(Flags, len(Modules))
	for _, m := range Modules {
		out[m] = f[m]
	}
	return out
}

// Store is the process-wide flag state. Readers always get a complete
// snapshot; writers replace the snapshot as a whole.
type Store struct {
	current  atomic.Pointer[Flags]
	onChange func(Flags)
	// hookMu serialises onChange calls so the last one sees the latest snapshot
	hookMu sync.Mutex
}

// NewStore seeds a store from initial. Unknown keys in initial are dropped and
// missing known modules default to false.
func NewStore(initial map[string]bool) *Store {
	seed := make(Flags, len(Modules))
	for _, m := range Modules {
		seed[m] = initial[string(m)]
	}
	s := &Store{}
	s.current.Store(&seed)
	return s
}

// OnChange registers fn to be called after each successful update. fn gets
// the snapshot current at call time, not the one the update produced, so
// observers converge on the latest state even when writers race. It must be
// set before the store is shared.
func (s *Store) OnChange(fn func(Flags)) {
	s.onChange = fn
}

// Snapshot returns the current flags. The returned map must not be modified.
func (s *Store) Snapshot() Flags {
	return *s.current.Load()
}

// Enabled reads a single module's flag from the current snapshot
func (s *Store) Enabled(m Module) bool {
	return s.Snapshot().Enabled(m)
}

// Apply merges a partial update into the store and returns the resulting
// snapshot. Only keys naming a known module with a boolean value are applied;
// everything else is ignored. Concurrent Apply calls never lose each other's
// keys.
func (s *Store) Apply(partial map[string]any) Flags {
	updates := make(map[Module]bool)
	for _, m := range Modules {
		if v, ok := partial[string(m)].(bool); ok {
			updates[m] = v
		}
	}

	for {
		oldPtr := s.current.Load()
		if len(updates) == 0 {
			return *oldPtr
		}

		next := oldPtr.clone()
		for m, v := range updates {
			next[m] = v
		}

		if s.current.CompareAndSwap(oldPtr, &next) {
			s.notify()
			return next
		}
	}
}

func (s *Store) notify() {
	if s.onChange == nil {
		return
	}
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onChange(s.Snapshot())
}

// Set switches a single module
func (s *Store) Set(m Module, enabled bool) Flags {
	return s.Apply(map[string]any{string(m): enabled})
}
