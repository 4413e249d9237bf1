package exec

import (
	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/index/vector"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// KNNRow is the fixed row shape produced by `CALL vector.knn(...)` before
// YIELD renames its columns: "node" bound to the result NodeRef, "score"
// to its distance (ascending distance; spec.md §4.7.3 "ascending distance
// (equivalently, descending cosine similarity for the cosine metric)").
type KNNRow struct {
	Node  *NodeRef
	Score float64
}

// RunVectorKNN executes label/key's registered vector sub-index for up to
// k nearest neighbors of query at beam width efSearch (efSearch<=0
// defaults to k), implementing the `CALL vector.knn(label, key,
// queryVector, k [, efSearch]) YIELD node, score` procedure (spec.md
// §4.7.3, §8 scenario 6).
func RunVectorKNN(ctx *Context, labelName, keyName string, query []float64, k, efSearch int) ([]vector.Result, error) {
	labelID, ok := ctx.Catalog.LookupLabel(labelName)
	if !ok {
		return nil, nil
	}
	keyID, ok := ctx.Catalog.LookupPropertyKey(keyName)
	if !ok {
		return nil, nil
	}
	ix, ok := ctx.Index.VectorIndex(labelID, keyID)
	if !ok {
		return nil, nexuserr.New(nexuserr.KindSemantic, "no vector index registered for (%s, %s)", labelName, keyName)
	}
	if efSearch <= 0 {
		efSearch = k
	}
	return ix.KNN(query, k, efSearch)
}

// EnsurePropertyIndex registers (label, key) as a property-B-tree-indexed
// pair, the effect of `CALL db.createPropertyIndex(label, key)` (spec.md
// §4.7.2 "optionally registered as indexed"; no Cypher DDL syntax for this
// is in scope, so it is exposed as a procedure instead, matching how
// spec.md §4.9 already routes non-query operations through CALL).
func EnsurePropertyIndex(ctx *Context, labelName, keyName string) error {
	labelID, err := ctx.Catalog.InternLabel(labelName)
	if err != nil {
		return err
	}
	keyID, err := ctx.Catalog.InternPropertyKey(keyName)
	if err != nil {
		return err
	}
	ctx.Index.BTree.EnsureIndexed(labelID, keyID)
	return ctx.Catalog.RegisterIndex(catalog.IndexDef{
		Kind:  catalog.IndexKindProperty,
		Label: labelName,
		Key:   keyName,
	})
}

// EnsureVectorIndex registers (label, key) as an HNSW-indexed pair with
// cfg, the effect of `CALL db.createVectorIndex(label, key)` (spec.md
// §4.7.3).
func EnsureVectorIndex(ctx *Context, labelName, keyName string, cfg vector.Config) error {
	labelID, err := ctx.Catalog.InternLabel(labelName)
	if err != nil {
		return err
	}
	keyID, err := ctx.Catalog.InternPropertyKey(keyName)
	if err != nil {
		return err
	}
	ctx.Index.EnsureVectorIndex(labelID, keyID, cfg)
	return ctx.Catalog.RegisterIndex(catalog.IndexDef{
		Kind:         catalog.IndexKindVector,
		Label:        labelName,
		Key:          keyName,
		VectorMetric: vectorMetricName(cfg.Metric),
		VectorM:      cfg.M,
		VectorEfCons: cfg.EfConstruction,
	})
}

func vectorMetricName(m vector.Metric) string {
	switch m {
	case vector.Euclidean:
		return "euclidean"
	default:
		return "cosine"
	}
}
