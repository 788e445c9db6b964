package proxy

import (
	"sort"
	"strings"

	"github.com/zeek-r/bookflow-gateway/internal/flags"
)

// Reserved path prefixes are always served locally, whatever the flags say
const (
	PathHealth     = "/health"
	PathAdminFlags = "/admin/flags"
	PathAuth       = "/auth/"
)

// ModuleRoute ties a path prefix to the module that owns it
type ModuleRoute struct {
	Module flags.Module
	Prefix string
}

// RoutingTable maps path prefixes to modules. It is built once and never
// changes afterwards.
type RoutingTable struct {
	routes   []ModuleRoute
	reserved []string
}

// NewRoutingTable builds the table with one "/<module>" prefix per known
// module plus the reserved prefixes. extraReserved adds prefixes such as the
// metrics endpoint.
func NewRoutingTable(extraReserved ...string) *RoutingTable {
	t := &RoutingTable{
		reserved: append([]string{PathHealth, PathAdminFlags, PathAuth}, extraReserved...),
	}
	for _, m := range flags.Modules {
		t.routes = append(t.routes, ModuleRoute{Module: m, Prefix: "/" + string(m)})
	}

	// Longest prefix wins
	sort.SliceStable(t.routes, func(i, j int) bool {
		return len(t.routes[i].Prefix) > len(t.routes[j].Prefix)
	})
	return t
}

// IsReserved reports whether path falls under a reserved prefix
func (t *RoutingTable) IsReserved(path string) bool {
	for _, prefix := range t.reserved {
		if matchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ModuleFor returns the module owning path, if any
func (t *RoutingTable) ModuleFor(path string) (flags.Module, bool) {
	for _, route := range t.routes {
		if matchPrefix(path, route.Prefix) {
			return route.Module, true
		}
	}
	return "", false
}

// Modules returns the modules present in the table
func (t *RoutingTable) Modules() []flags.Module {
	seen := make(map[flags.Module]bool)
	var out []flags.Module
	for _, route := range t.routes {
		if !seen[route.Module] {
			seen[route.Module] = true
			out = append(out, route.Module)
		}
	}
	return out
}

// matchPrefix matches whole path segments: "/books" owns "/books" and
// "/books/1" but not "/booksellers". A prefix ending in "/" owns everything
// below it.
func matchPrefix(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return path == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
