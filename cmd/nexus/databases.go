package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/nexusdb/nexus/internal/engine"
)

// newDatabasesCmd implements the database-management interface (spec.md
// §6): --dir is the process root a Manager hosts several logically
// isolated databases under, distinct from the single-database --dir the
// other commands open directly.
func newDatabasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "databases",
		Short: "Manage logically-isolated databases under a process root",
	}
	cmd.AddCommand(newDatabasesListCmd(), newDatabasesCreateCmd(), newDatabasesDropCmd())
	return cmd
}

func newDatabasesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every database registered under the process root",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := engine.NewManager(dbDir)
			if err != nil {
				return err
			}
			defer m.Close()
			names := m.ListDatabases()
			sort.Strings(names)
			for _, name := range names {
				cmd.Println(name)
			}
			return nil
		},
	}
}

func newDatabasesCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create (and open) a new database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := engine.NewManager(dbDir)
			if err != nil {
				return err
			}
			defer m.Close()
			return m.CreateDatabase(args[0], engine.DefaultConfig())
		},
	}
}

func newDatabasesDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <name>",
		Short: "Close and permanently delete a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := engine.NewManager(dbDir)
			if err != nil {
				return err
			}
			defer m.Close()
			return m.DropDatabase(args[0])
		},
	}
}
