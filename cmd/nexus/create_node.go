package main

import (
	"github.com/spf13/cobra"
)

func newCreateNodeCmd() *cobra.Command {
	var labels []string
	var props []string

	cmd := &cobra.Command{
		Use:   "create-node",
		Short: "Create a node via the bulk-load data interface, bypassing parse/plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := parseProps(props)
			if err != nil {
				return err
			}
			id, err := e.Data().CreateNode(labels, p)
			if err != nil {
				return err
			}
			cmd.Printf("created node %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&labels, "label", nil, "node label (repeatable)")
	cmd.Flags().StringArrayVar(&props, "prop", nil, "node property as key=value (repeatable)")
	return cmd
}
