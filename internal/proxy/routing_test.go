package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zeek-r/bookflow-gateway/internal/flags"
)

func TestRoutingTableReserved(t *testing.T) {
	table := NewRoutingTable("/metrics")

	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/", true},
		{"/healthz", false},
		{"/admin/flags", true},
		{"/admin", false},
		{"/auth/login", true},
		{"/auth", true},
		{"/authors", false},
		{"/metrics", true},
		{"/books", false},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			assert.Equal(t, test.want, table.IsReserved(test.path))
		})
	}
}

func TestRoutingTableModuleFor(t *testing.T) {
	table := NewRoutingTable()

	tests := []struct {
		path   string
		module flags.Module
		owned  bool
	}{
		{"/books", flags.Books, true},
		{"/books/12", flags.Books, true},
		{"/books/12/chapters", flags.Books, true},
		{"/booksellers", "", false},
		{"/pages/3", flags.Pages, true},
		{"/comments", flags.Comments, true},
		{"/", "", false},
		{"/shelves", "", false},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			module, owned := table.ModuleFor(test.path)
			assert.Equal(t, test.owned, owned)
			assert.Equal(t, test.module, module)
		})
	}
}

func TestRoutingTableCoversKnownModules(t *testing.T) {
	assert.ElementsMatch(t, flags.Modules, NewRoutingTable().Modules())
}
