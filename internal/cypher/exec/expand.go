package exec

import (
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/index/relindex"
)

// maxVariableLengthHops bounds the otherwise-unbounded `*` variable-length
// pattern so a single query can't BFS forever against a graph with a
// cycle reachable from the start node; chosen generously above any
// realistic interactive query's useful depth.
const maxVariableLengthHops = 1000

// expandIDs returns every relationship id incident to nodeID matching
// typeID (nil meaning any type) and dir, warming the relationship index
// from the adjacency list on first touch of a cold node (spec.md §4.7.4).
func (c *Context) expandIDs(nodeID uint64, typeID *uint32, dir parser.Direction) ([]uint64, error) {
	if !c.Index.Rel.IsWarm(nodeID) {
		out, in, err := c.buildAdjacencyLists(nodeID)
		if err != nil {
			return nil, err
		}
		c.Index.Rel.Warm(nodeID, out, in)
	}
	var ids []uint64
	if dir == parser.Outgoing || dir == parser.Either {
		got, _ := c.Index.Rel.Expand(nodeID, typeID, relindex.Outgoing)
		ids = append(ids, got...)
	}
	if dir == parser.Incoming || dir == parser.Either {
		got, _ := c.Index.Rel.Expand(nodeID, typeID, relindex.Incoming)
		ids = append(ids, got...)
	}
	return ids, nil
}

// ExpandRelIDs exports expandIDs for the planner, which needs it to probe
// whether a relationship matching a MERGE pattern's type/direction already
// connects two already-bound endpoints.
func (c *Context) ExpandRelIDs(nodeID uint64, typeID *uint32, dir parser.Direction) ([]uint64, error) {
	return c.expandIDs(nodeID, typeID, dir)
}

func (c *Context) buildAdjacencyLists(nodeID uint64) (out, in []uint64, err error) {
	err = c.Store.Adjacency(nodeID, func(relID uint64) error {
		ref, ok, err := c.ReadRelRef(relID)
		if err != nil || !ok {
			return err
		}
		if ref.Start == nodeID {
			out = append(out, relID)
		}
		if ref.End == nodeID {
			in = append(in, relID)
		}
		return nil
	})
	return out, in, err
}

// Expand implements the Expand operator: for each input row, follow every
// relationship matching a type/direction constraint from a bound node,
// binding the relationship and the other endpoint (spec.md §4.11).
type Expand struct {
	ctx       *Context
	src       Operator
	fromAlias string
	relAlias  string
	toAlias   string
	typeID    *uint32
	dir       parser.Direction

	cur    Row
	ids    []uint64
	pos    int
	optional bool
	emittedAny bool
}

// NewExpand creates an Expand operator (optional=false). typeID nil means
// any relationship type.
func NewExpand(ctx *Context, src Operator, fromAlias, relAlias, toAlias string, typeID *uint32, dir parser.Direction) *Expand {
	return &Expand{ctx: ctx, src: src, fromAlias: fromAlias, relAlias: relAlias, toAlias: toAlias, typeID: typeID, dir: dir}
}

// NewOptionalExpand creates the OptionalExpand variant: if a source row
// has no matching relationship, it is emitted once with relAlias/toAlias
// bound to null rather than being dropped (spec.md §4.11 "OptionalExpand").
func NewOptionalExpand(ctx *Context, src Operator, fromAlias, relAlias, toAlias string, typeID *uint32, dir parser.Direction) *Expand {
	return &Expand{ctx: ctx, src: src, fromAlias: fromAlias, relAlias: relAlias, toAlias: toAlias, typeID: typeID, dir: dir, optional: true}
}

func (e *Expand) Next() (Row, bool, error) {
	for {
		if err := e.ctx.checkCancelled(); err != nil {
			return nil, false, err
		}
		for e.pos < len(e.ids) {
			relID := e.ids[e.pos]
			e.pos++
			relRef, ok, err := e.ctx.ReadRelRef(relID)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			otherID := relRef.End
			if relRef.Start != e.cur[e.fromAlias].Node.ID {
				otherID = relRef.Start
			}
			toRef, ok, err := e.ctx.ReadNodeRef(otherID)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			out := e.cur.Clone()
			if e.relAlias != "" {
				out[e.relAlias] = RelVal(relRef)
			}
			if e.toAlias != "" {
				out[e.toAlias] = NodeVal(toRef)
			}
			e.emittedAny = true
			return out, true, nil
		}

		row, ok, err := e.src.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		fromVal, bound := row[e.fromAlias]
		if !bound || fromVal.Kind != VNode {
			continue
		}
		ids, err := e.ctx.expandIDs(fromVal.Node.ID, e.typeID, e.dir)
		if err != nil {
			return nil, false, err
		}
		if e.optional && len(ids) == 0 {
			out := row.Clone()
			if e.relAlias != "" {
				out[e.relAlias] = Null()
			}
			if e.toAlias != "" {
				out[e.toAlias] = Null()
			}
			return out, true, nil
		}
		e.cur = row
		e.ids = ids
		e.pos = 0
	}
}

// VariableLengthPath implements the VariableLengthPath operator: BFS from
// a bound source node out to min..max hops, binding each reachable node
// and (if relAlias is set) the list of relationships forming one path to
// it (spec.md §4.11, §4.10.2 "compiled to breadth-first search").
type VariableLengthPath struct {
	ctx       *Context
	src       Operator
	fromAlias string
	relAlias  string
	toAlias   string
	typeID    *uint32
	dir       parser.Direction
	min, max  int
	shortestOnly bool

	results []Row
	pos     int
}

type pathState struct {
	nodeID uint64
	rels   []Value
}

// NewVariableLengthPath creates the operator. max<0 means unbounded
// (capped at maxVariableLengthHops); shortestOnly restricts each distinct
// destination to its single shortest discovered path, implementing
// shortestPath()'s early-termination semantics (spec.md §4.10.2).
func NewVariableLengthPath(ctx *Context, src Operator, fromAlias, relAlias, toAlias string, typeID *uint32, dir parser.Direction, min, max int, shortestOnly bool) *VariableLengthPath {
	if max < 0 || max > maxVariableLengthHops {
		max = maxVariableLengthHops
	}
	return &VariableLengthPath{ctx: ctx, src: src, fromAlias: fromAlias, relAlias: relAlias, toAlias: toAlias, typeID: typeID, dir: dir, min: min, max: max, shortestOnly: shortestOnly}
}

func (v *VariableLengthPath) Next() (Row, bool, error) {
	for v.pos >= len(v.results) {
		row, ok, err := v.src.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		fromVal, bound := row[v.fromAlias]
		if !bound || fromVal.Kind != VNode {
			continue
		}
		results, err := v.bfs(row, fromVal.Node.ID)
		if err != nil {
			return nil, false, err
		}
		v.results = results
		v.pos = 0
	}
	r := v.results[v.pos]
	v.pos++
	return r, true, nil
}

func (v *VariableLengthPath) bfs(row Row, start uint64) ([]Row, error) {
	visited := map[uint64]bool{start: true}
	frontier := []pathState{{nodeID: start}}
	var out []Row
	for depth := 0; depth < v.max && len(frontier) > 0; depth++ {
		if err := v.ctx.checkCancelled(); err != nil {
			return nil, err
		}
		var next []pathState
		for _, st := range frontier {
			ids, err := v.ctx.expandIDs(st.nodeID, v.typeID, v.dir)
			if err != nil {
				return nil, err
			}
			for _, relID := range ids {
				relRef, ok, err := v.ctx.ReadRelRef(relID)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				otherID := relRef.End
				if relRef.Start != st.nodeID {
					otherID = relRef.Start
				}
				if v.shortestOnly && visited[otherID] {
					continue
				}
				rels := append(append([]Value(nil), st.rels...), RelVal(relRef))
				visited[otherID] = true
				next = append(next, pathState{nodeID: otherID, rels: rels})
				if depth+1 >= v.min {
					toRef, ok, err := v.ctx.ReadNodeRef(otherID)
					if err != nil {
						return nil, err
					}
					if ok {
						r := row.Clone()
						r[v.toAlias] = NodeVal(toRef)
						if v.relAlias != "" {
							r[v.relAlias] = List(rels)
						}
						out = append(out, r)
					}
				}
			}
		}
		frontier = next
	}
	return out, nil
}
