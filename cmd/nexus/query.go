package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/nexusdb/nexus/internal/engine"
)

func newQueryCmd() *cobra.Command {
	var params []string
	var readOnly bool
	var timeout time.Duration
	var bypassCache bool

	cmd := &cobra.Command{
		Use:   "query <cypher>",
		Short: "Run one Cypher statement against the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := parseParams(params)
			if err != nil {
				return err
			}

			res, err := e.Execute(args[0], p, engine.Opts{
				ReadOnly:        readOnly,
				Timeout:         timeout,
				PlanCacheBypass: bypassCache,
			})
			if err != nil {
				return err
			}
			printRows(res.Columns, res.Rows)
			if res.Stats.NodesCreated > 0 || res.Stats.RelsCreated > 0 || res.Stats.Deleted > 0 {
				cmd.Printf("nodes created: %d, relationships created: %d, deleted: %d\n",
					res.Stats.NodesCreated, res.Stats.RelsCreated, res.Stats.Deleted)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&readOnly, "readonly", false, "execute as a read-only transaction")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-query timeout (0 = engine default)")
	cmd.Flags().BoolVar(&bypassCache, "no-plan-cache", false, "bypass the plan cache for this query")
	return cmd
}
