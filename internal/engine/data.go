package engine

import (
	"fmt"
	"time"

	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// noDeadline marks a Data call as running without a query timeout: bulk
// loads are expected to run as long as they need.
var noDeadline time.Time

// Data is the bulk-load interface spec.md §6 describes for programmatic
// population outside Cypher text: each call opens its own writer
// transaction directly against the exec operators the planner would have
// compiled to, skipping parse/plan overhead for high-volume loads.
//
// Every call commits (or aborts, on error) its own transaction; callers
// doing a multi-step bulk load that must be atomic should use BeginWrite/
// Commit/Abort directly alongside the exec package instead.
type Data struct{ e *Engine }

// Data returns the bulk-load interface bound to this Engine.
func (e *Engine) Data() *Data { return &Data{e: e} }

func mapLiteral(ctx *exec.Context, props map[string]any) *parser.MapLiteral {
	if len(props) == 0 {
		return nil
	}
	m := &parser.MapLiteral{}
	i := 0
	for k, v := range props {
		paramName := fmt.Sprintf("__bulk%d", i)
		ctx.Params[paramName] = toExecValue(v)
		m.Keys = append(m.Keys, k)
		m.Values = append(m.Values, &parser.ParameterExpr{Name: paramName})
		i++
	}
	return m
}

// CreateNode allocates a node with the given labels and properties,
// committing immediately. It returns the new node's id.
func (d *Data) CreateNode(labels []string, props map[string]any) (uint64, error) {
	e := d.e
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if !e.enterReader() {
		return 0, nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	defer e.exitReader()

	tx, err := e.txm.BeginWrite()
	if err != nil {
		return 0, err
	}
	ctx := e.newExecContext(tx, nil, noDeadline)
	pattern := &parser.NodePattern{Variable: "n", Labels: labels, Properties: mapLiteral(ctx, props)}
	op := exec.NewCreateNode(ctx, exec.SingleEmptyRow(), pattern)
	row, _, err := op.Next()
	if err != nil {
		_ = e.txm.Abort(tx)
		return 0, err
	}
	id := row["n"].Node.ID
	if err := e.Commit(tx); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateRelationship connects src->dst with relType and the given
// properties, committing immediately. Both endpoints must already exist
// and be visible.
func (d *Data) CreateRelationship(src, dst uint64, relType string, props map[string]any) (uint64, error) {
	e := d.e
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if !e.enterReader() {
		return 0, nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	defer e.exitReader()

	tx, err := e.txm.BeginWrite()
	if err != nil {
		return 0, err
	}
	ctx := e.newExecContext(tx, nil, noDeadline)
	srcRef, ok, err := ctx.ReadNodeRef(src)
	if err != nil {
		_ = e.txm.Abort(tx)
		return 0, err
	}
	if !ok {
		_ = e.txm.Abort(tx)
		return 0, nexuserr.New(nexuserr.KindSemantic, "source node %d does not exist", src)
	}
	dstRef, ok, err := ctx.ReadNodeRef(dst)
	if err != nil {
		_ = e.txm.Abort(tx)
		return 0, err
	}
	if !ok {
		_ = e.txm.Abort(tx)
		return 0, nexuserr.New(nexuserr.KindSemantic, "destination node %d does not exist", dst)
	}

	pattern := &parser.RelPattern{Variable: "r", Types: []string{relType}, Direction: parser.Outgoing, Properties: mapLiteral(ctx, props)}
	src0 := exec.NewSliceSource([]exec.Row{{"a": exec.NodeVal(srcRef), "b": exec.NodeVal(dstRef)}})
	op := exec.NewCreateRel(ctx, src0, "a", "b", pattern)
	row, _, err := op.Next()
	if err != nil {
		_ = e.txm.Abort(tx)
		return 0, err
	}
	id := row["r"].Rel.ID
	if err := e.Commit(tx); err != nil {
		return 0, err
	}
	return id, nil
}

// ReadNode returns a node's labels and properties, or ok=false if it does
// not exist or is not live.
func (d *Data) ReadNode(id uint64) (*exec.NodeRef, bool, error) {
	e := d.e
	if err := e.checkOpen(); err != nil {
		return nil, false, err
	}
	if !e.enterReader() {
		return nil, false, nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	defer e.exitReader()

	tx := e.txm.BeginRead()
	defer e.txm.EndRead(tx)
	ctx := e.newExecContext(tx, nil, noDeadline)
	return ctx.ReadNodeRef(id)
}

// ReadRelationship mirrors ReadNode for relationships.
func (d *Data) ReadRelationship(id uint64) (*exec.RelRef, bool, error) {
	e := d.e
	if err := e.checkOpen(); err != nil {
		return nil, false, err
	}
	if !e.enterReader() {
		return nil, false, nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	defer e.exitReader()

	tx := e.txm.BeginRead()
	defer e.txm.EndRead(tx)
	ctx := e.newExecContext(tx, nil, noDeadline)
	return ctx.ReadRelRef(id)
}

// DeleteNode deletes id, detaching (and deleting) any incident
// relationships first when detach is true; otherwise it fails with
// KindConstraint if the node still has live edges.
func (d *Data) DeleteNode(id uint64, detach bool) error {
	e := d.e
	if err := e.checkOpen(); err != nil {
		return err
	}
	if !e.enterReader() {
		return nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	defer e.exitReader()

	tx, err := e.txm.BeginWrite()
	if err != nil {
		return err
	}
	ctx := e.newExecContext(tx, nil, noDeadline)
	ref, ok, err := ctx.ReadNodeRef(id)
	if err != nil {
		_ = e.txm.Abort(tx)
		return err
	}
	if !ok {
		_ = e.txm.Abort(tx)
		return nexuserr.New(nexuserr.KindSemantic, "node %d does not exist", id)
	}
	src := exec.NewSliceSource([]exec.Row{{"n": exec.NodeVal(ref)}})
	op := exec.NewDelete(ctx, src, []parser.Expr{&parser.VariableExpr{Name: "n"}}, detach)
	if _, _, err := op.Next(); err != nil {
		_ = e.txm.Abort(tx)
		return err
	}
	return e.Commit(tx)
}

// FindNodesByLabel returns up to limit live nodes currently carrying
// label (spec.md §6 "find_nodes_by_label(label, limit)"). limit <= 0
// means unbounded.
func (d *Data) FindNodesByLabel(label string, limit int) ([]*exec.NodeRef, error) {
	e := d.e
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if !e.enterReader() {
		return nil, nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	defer e.exitReader()

	tx := e.txm.BeginRead()
	defer e.txm.EndRead(tx)
	ctx := e.newExecContext(tx, nil, noDeadline)
	labelID, ok := e.cat.LookupLabel(label)
	if !ok {
		return nil, nil
	}
	scan := exec.NewNodeByLabelScan(ctx, "n", labelID)
	var out []*exec.NodeRef
	for {
		if limit > 0 && len(out) >= limit {
			break
		}
		row, ok, err := scan.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, row["n"].Node)
	}
	return out, nil
}
