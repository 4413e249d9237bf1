// Command nexus is a thin cobra front end over the Engine façade
// (internal/engine): enough to open a database directory, run Cypher
// statements, and drive the admin/database-management interfaces from a
// shell. It is deliberately not a product surface — no server, no auth,
// no daemon mode — spec.md §1 keeps those out of the core's scope.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// dbDir is set by the root command's --dir persistent flag and read by
// every subcommand's RunE. newRootCmd rebuilds the whole command tree
// (and rebinds this variable) per call so a test driving several
// invocations in one process, each against its own temp directory,
// never reads a stale flag value left over from a prior Execute.
var dbDir string

// newRootCmd builds a fresh nexus command tree. main uses it once;
// script_test.go's in-process "nexus" script command uses it once per
// script step.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nexus",
		Short:         "Nexus embedded graph database command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbDir, "dir", "./nexus-data", "database data directory")
	root.AddCommand(
		newQueryCmd(),
		newCreateNodeCmd(),
		newDatabasesCmd(),
		newCheckpointCmd(),
		newCompactCmd(),
		newStatsCmd(),
		newSchemaCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nexus:", err)
		os.Exit(1)
	}
}
