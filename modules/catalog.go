// Package modules bundles the feature modules shipped with cogd. Each
// subdirectory holds one module's code next to its manifest, so pointing
// modules.root at this directory discovers them all.
package modules

import (
	"github.com/roach88/cogd/internal/module"
	"github.com/roach88/cogd/modules/ping"
	"github.com/roach88/cogd/modules/usage"
	"github.com/roach88/cogd/modules/wiki"
)

// Catalog returns a catalog with every bundled entry point registered.
func Catalog() *module.Catalog {
	c := module.NewCatalog()
	c.MustRegister(ping.Entry, ping.New)
	c.MustRegister(usage.Entry, usage.New)
	c.MustRegister(wiki.Entry, wiki.New)
	return c
}
