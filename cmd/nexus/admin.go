package main

import (
	"github.com/spf13/cobra"
)

func newCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Flush dirty pages, log a WAL checkpoint, and rotate the WAL segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Checkpoint()
		},
	}
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Sweep reclaimable tombstones and rebuild derived indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			res, err := e.Compact()
			if err != nil {
				return err
			}
			cmd.Printf("tombstoned nodes observed: %d, relationships observed: %d\n",
				res.TombstonedNodesObserved, res.TombstonedRelsObserved)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report page cache, object/index/plan/result cache, and transaction counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			st := e.Stats()
			cmd.Printf("page cache: %d hits, %d misses, hit rate %.2f, %d dirty\n",
				st.PageCache.Hits, st.PageCache.Misses, st.PageCache.HitRate, st.PageCache.Dirty)
			cmd.Printf("object cache: nodes %d/%d, rels %d/%d (hits/misses)\n",
				st.Caches.ObjectNodeHits, st.Caches.ObjectNodeMisses,
				st.Caches.ObjectRelationshipHits, st.Caches.ObjectRelationshipMisses)
			cmd.Printf("plan cache: %d/%d, result cache: %d/%d, index-page cache: %d/%d\n",
				st.Caches.PlanHits, st.Caches.PlanMisses,
				st.Caches.ResultHits, st.Caches.ResultMisses,
				st.Caches.IndexPageHits, st.Caches.IndexPageMisses)
			cmd.Printf("committed epoch: %d, oldest active epoch: %d, mutation counter: %d, schema epoch: %d\n",
				st.CommittedEpoch, st.OldestActiveEpoch, st.MutationCounter, st.SchemaEpoch)
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print schema_info(): labels, relationship types, and their counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			info, err := e.SchemaInfo()
			if err != nil {
				return err
			}
			cmd.Printf("schema epoch: %d\n", info.SchemaEpoch)
			for _, l := range info.Labels {
				cmd.Printf("label %s: %d\n", l.Name, l.Count)
			}
			for _, t := range info.RelationshipTypes {
				cmd.Printf("type %s: %d\n", t.Name, t.Count)
			}
			return nil
		},
	}
}
