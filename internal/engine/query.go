package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/cypher/planner"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/txn"
)

// Opts controls one query execution. A zero Opts runs read-write with the
// Config's default timeout.
type Opts struct {
	Timeout         time.Duration
	ReadOnly        bool
	PlanCacheBypass bool
}

// QueryResult is the materialized result of Execute: column names in
// declaration order and every row as plain Go values (spec.md §4.11
// "Result contract").
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
	Stats   Stats
}

// Stats reports what a statement did, the counters spec.md §4.11's write
// summary names.
type Stats struct {
	NodesCreated int
	RelsCreated  int
	Deleted      int // nodes + relationships deleted (spec.md §4.11 "Count policy")
}

func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	return nil
}

// paramShape is a cache key component distinguishing calls to the same
// query text bound to parameters of different shape: same plan cache
// entry is safe to reuse across different values of the same parameter
// names, but not across entirely different parameter sets (spec.md §4.8
// "keyed by (query text, parameter shape)").
func paramShape(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s:%T;", k, params[k])
	}
	return b.String()
}

func toExecValue(v any) exec.Value {
	switch t := v.(type) {
	case nil:
		return exec.Null()
	case bool:
		return exec.Bool(t)
	case int:
		return exec.Int(int64(t))
	case int64:
		return exec.Int(t)
	case float64:
		return exec.Float(t)
	case float32:
		return exec.Float(float64(t))
	case string:
		return exec.Str(t)
	case []float64:
		return exec.Vector(t)
	case []any:
		out := make([]exec.Value, len(t))
		for i, e := range t {
			out[i] = toExecValue(e)
		}
		return exec.List(out)
	case map[string]any:
		out := make(map[string]exec.Value, len(t))
		for k, e := range t {
			out[k] = toExecValue(e)
		}
		return exec.Map(out)
	default:
		return exec.Str(fmt.Sprintf("%v", t))
	}
}

func fromExecValue(v exec.Value) any {
	switch v.Kind {
	case exec.VNull:
		return nil
	case exec.VBool:
		return v.Bool
	case exec.VInt:
		return v.Int
	case exec.VFloat:
		return v.Float
	case exec.VString:
		return v.Str
	case exec.VVector:
		return v.Vector
	case exec.VList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = fromExecValue(e)
		}
		return out
	case exec.VMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = fromExecValue(e)
		}
		return out
	case exec.VNode:
		props := make(map[string]any, len(v.Node.Props))
		for k, pv := range v.Node.Props {
			props[k] = fromExecValue(pv)
		}
		return map[string]any{"id": v.Node.ID, "labels": v.Node.Labels, "props": props}
	case exec.VRel:
		props := make(map[string]any, len(v.Rel.Props))
		for k, pv := range v.Rel.Props {
			props[k] = fromExecValue(pv)
		}
		return map[string]any{"id": v.Rel.ID, "type": v.Rel.Type, "start": v.Rel.Start, "end": v.Rel.End, "props": props}
	default:
		return nil
	}
}

// newExecContext builds an exec.Context scoped to tx, wiring deadline
// cancellation checked at row boundaries (spec.md §5 "Suspension
// points").
func (e *Engine) newExecContext(tx *txn.Tx, params map[string]any, deadline time.Time) *exec.Context {
	execParams := make(map[string]exec.Value, len(params))
	for k, v := range params {
		execParams[k] = toExecValue(v)
	}
	return &exec.Context{
		Catalog: e.cat,
		Store:   e.store,
		Props:   e.props,
		Index:   e.idx,
		Tx:      tx,
		Params:  execParams,
		Cancelled: func() bool {
			return !deadline.IsZero() && time.Now().After(deadline)
		},
	}
}

// compile parses and plans query, reusing a cached AST for identical
// query text across calls (spec.md §4.8: the plan cache holds parsed
// ASTs, not compiled operator trees, since exec.Operator pipelines are
// single-pass and stateful and cannot be shared across executions; only
// the parse -> AST step is pure and reusable).
func (e *Engine) compile(ctx *exec.Context, query string, shape string, bypass bool) (*planner.Plan, error) {
	if bypass {
		ast, err := parser.Parse(query)
		if err != nil {
			return nil, err
		}
		return planner.Compile(ctx, ast)
	}
	cached, err := e.cache.Plans.GetOrCompile(query, shape, func() (any, error) {
		return parser.Parse(query)
	})
	if err != nil {
		return nil, err
	}
	ast := cached.(*parser.Query)
	return planner.Compile(ctx, ast)
}

// Execute parses, plans, and fully drains query against params, returning
// every row materialized into Go-native values (spec.md §6
// "execute(query, params) -> QueryResult").
func (e *Engine) Execute(query string, params map[string]any, opts Opts) (*QueryResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if !e.enterReader() {
		return nil, nexuserr.New(nexuserr.KindIO, "engine is closed")
	}
	defer e.exitReader()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = e.cfg.QueryTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	shape := paramShape(params)
	if opts.ReadOnly {
		return e.executeReadOnly(query, params, shape, deadline, opts.PlanCacheBypass)
	}
	return e.executeWrite(query, params, shape, deadline, opts.PlanCacheBypass)
}

func (e *Engine) executeReadOnly(query string, params map[string]any, shape string, deadline time.Time, bypass bool) (*QueryResult, error) {
	schemaEpoch := e.cat.SchemaEpoch()
	if !bypass {
		if cached, ok := e.cache.Results.Get(query, shape, schemaEpoch, e.cache.MutationCounter()); ok {
			res := cached.(*QueryResult)
			return res, nil
		}
	}

	tx := e.txm.BeginRead()
	defer e.txm.EndRead(tx)

	ctx := e.newExecContext(tx, params, deadline)
	plan, err := e.compile(ctx, query, shape, bypass)
	if err != nil {
		return nil, err
	}
	res, err := drain(plan)
	if err != nil {
		return nil, err
	}
	if !bypass {
		ttl := e.cache.DefaultTTL()
		if e.cfgWatch != nil {
			ttl = e.cfgWatch.TTL()
		}
		e.cache.Results.Put(query, shape, schemaEpoch, e.cache.MutationCounter(), res, ttl)
	}
	return res, nil
}

func (e *Engine) executeWrite(query string, params map[string]any, shape string, deadline time.Time, bypass bool) (*QueryResult, error) {
	tx, err := e.txm.BeginWrite()
	if err != nil {
		return nil, err
	}

	ctx := e.newExecContext(tx, params, deadline)
	schemaEpochBefore := e.cat.SchemaEpoch()
	plan, err := e.compile(ctx, query, shape, bypass)
	if err != nil {
		_ = e.txm.Abort(tx)
		return nil, err
	}
	res, err := drain(plan)
	if err != nil {
		_ = e.txm.Abort(tx)
		return nil, err
	}
	if err := e.txm.Commit(tx); err != nil {
		return nil, err
	}

	_ = e.props.Flush()
	_ = e.store.FlushAll()

	e.cache.OnWriterCommit()
	if e.cat.SchemaEpoch() != schemaEpochBefore {
		e.cache.OnSchemaChange()
	}
	res.Stats = Stats{
		NodesCreated: len(tx.CreatedNodes()),
		RelsCreated:  len(tx.CreatedRelationships()),
		Deleted:      ctx.Mutations,
	}
	return res, nil
}

func drain(plan *planner.Plan) (*QueryResult, error) {
	res := &QueryResult{Columns: plan.Columns}
	for {
		row, ok, err := plan.Root.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out := make(map[string]any, len(plan.Columns))
		for _, col := range plan.Columns {
			out[col] = fromExecValue(row[col])
		}
		res.Rows = append(res.Rows, out)
	}
	return res, nil
}

// RowStream is a cursor over a streaming query's rows (spec.md §6
// "execute_streaming(query, params) -> RowStream"), pulling one row at a
// time from the underlying operator pipeline instead of materializing the
// full result set up front.
type RowStream struct {
	engine  *Engine
	tx      *txn.Tx
	write   bool
	plan    *planner.Plan
	columns []string
	closed  bool
}

// Columns returns the stream's output column names.
func (rs *RowStream) Columns() []string { return rs.columns }

// Next pulls the next row, or ok=false once the stream is exhausted.
func (rs *RowStream) Next() (map[string]any, bool, error) {
	row, ok, err := rs.plan.Root.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	out := make(map[string]any, len(rs.columns))
	for _, col := range rs.columns {
		out[col] = fromExecValue(row[col])
	}
	return out, true, nil
}

// Close ends the transaction backing this stream. Callers MUST call this
// on every exit path, matching the resource-acquisition discipline
// txn.Manager.EndRead/Commit already require (spec.md §5).
func (rs *RowStream) Close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	defer rs.engine.exitReader()
	if rs.write {
		return rs.engine.txm.Commit(rs.tx)
	}
	rs.engine.txm.EndRead(rs.tx)
	return nil
}

// ExecuteStreaming parses and plans query, then returns a RowStream the
// caller pulls at its own pace instead of draining eagerly. Writes are
// committed on Close, so a streaming writer MUST fully drain or
// deliberately abandon (in which case the transaction stays open until
// Close) its stream.
func (e *Engine) ExecuteStreaming(query string, params map[string]any, opts Opts) (*RowStream, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if !e.enterReader() {
		return nil, nexuserr.New(nexuserr.KindIO, "engine is closed")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = e.cfg.QueryTimeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	shape := paramShape(params)

	var tx *txn.Tx
	var err error
	if opts.ReadOnly {
		tx = e.txm.BeginRead()
	} else {
		tx, err = e.txm.BeginWrite()
		if err != nil {
			e.exitReader()
			return nil, err
		}
	}

	ctx := e.newExecContext(tx, params, deadline)
	plan, err := e.compile(ctx, query, shape, opts.PlanCacheBypass)
	if err != nil {
		if opts.ReadOnly {
			e.txm.EndRead(tx)
		} else {
			_ = e.txm.Abort(tx)
		}
		e.exitReader()
		return nil, err
	}

	return &RowStream{engine: e, tx: tx, write: !opts.ReadOnly, plan: plan, columns: plan.Columns}, nil
}

// BeginReadonly starts a read-only transaction for callers that need
// direct access to the underlying record/property stores beyond what
// Execute's row-oriented contract offers (e.g. the Data bulk-load
// interface's read side). Callers MUST call txm.EndRead via EndReadonly.
func (e *Engine) BeginReadonly() *txn.Tx { return e.txm.BeginRead() }

// EndReadonly releases a transaction started by BeginReadonly.
func (e *Engine) EndReadonly(tx *txn.Tx) { e.txm.EndRead(tx) }

// BeginWrite starts a writer transaction for the Data bulk-load interface.
func (e *Engine) BeginWrite() (*txn.Tx, error) { return e.txm.BeginWrite() }

// Commit commits a writer transaction started by BeginWrite, performing
// the same post-commit flush/cache-invalidation sequence Execute's write
// path does.
func (e *Engine) Commit(tx *txn.Tx) error {
	schemaEpochBefore := e.cat.SchemaEpoch()
	if err := e.txm.Commit(tx); err != nil {
		return err
	}
	_ = e.props.Flush()
	_ = e.store.FlushAll()
	e.cache.OnWriterCommit()
	if e.cat.SchemaEpoch() != schemaEpochBefore {
		e.cache.OnSchemaChange()
	}
	return nil
}

// Abort rolls back a writer transaction started by BeginWrite.
func (e *Engine) Abort(tx *txn.Tx) error { return e.txm.Abort(tx) }
