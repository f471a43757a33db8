// Command prodmanager runs the catalog administration server and the
// extension management tools.
package main

import (
	"github.com/goatkit/prodmanager/internal/cli"

	// Extensions compiled into the binary register their factories here.
	_ "github.com/goatkit/prodmanager/internal/plugin/example"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	cli.Main(version, commit, date)
}
