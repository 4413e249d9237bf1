package main

import (
	"github.com/spf13/cobra"

	"github.com/nexusdb/nexus/internal/engine"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine's on-disk format version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(engine.EngineVersion)
			return nil
		},
	}
}
