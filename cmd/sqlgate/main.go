// Command sqlgate is a read-only SQL gateway for MySQL, PostgreSQL and
// SQLite.
package main

import (
	"os"

	"github.com/koustreak/sqlgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
