package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

func TestParseMatchReturnBuildsPatternAndProjection(t *testing.T) {
	q, err := Parse(`MATCH (n:Person) WHERE n.age > 30 RETURN n.name AS name`)
	require.NoError(t, err)
	require.Len(t, q.Parts, 1)
	require.Len(t, q.Parts[0].Clauses, 2)

	m, ok := q.Parts[0].Clauses[0].(*MatchClause)
	require.True(t, ok)
	require.False(t, m.Optional)
	require.Len(t, m.Patterns, 1)
	require.Equal(t, []string{"Person"}, m.Patterns[0].Nodes[0].Labels)
	require.NotNil(t, m.Where)

	ret, ok := q.Parts[0].Clauses[1].(*ReturnClause)
	require.True(t, ok)
	require.Len(t, ret.Projection, 1)
	require.Equal(t, "name", ret.Projection[0].Alias)
}

func TestParseMultiLabelNodePattern(t *testing.T) {
	q, err := Parse(`MATCH (n:Person:Employee) RETURN n`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(*MatchClause)
	require.Equal(t, []string{"Person", "Employee"}, m.Patterns[0].Nodes[0].Labels)
}

func TestParseRelationshipPatternDirectionAndType(t *testing.T) {
	q, err := Parse(`MATCH (a)-[r:KNOWS]->(b) RETURN r`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(*MatchClause)
	rel := m.Patterns[0].Rels[0]
	require.Equal(t, Outgoing, rel.Direction)
	require.Equal(t, []string{"KNOWS"}, rel.Types)
	require.Equal(t, "r", rel.Variable)
}

func TestParseVariableLengthPattern(t *testing.T) {
	q, err := Parse(`MATCH (a)-[*1..3]->(b) RETURN b`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(*MatchClause)
	vl := m.Patterns[0].Rels[0].VarLength
	require.NotNil(t, vl)
	require.Equal(t, 1, *vl.Min)
	require.Equal(t, 3, *vl.Max)
}

func TestParseOptionalMatch(t *testing.T) {
	q, err := Parse(`OPTIONAL MATCH (n) RETURN n`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(*MatchClause)
	require.True(t, m.Optional)
}

func TestParseCreateClause(t *testing.T) {
	q, err := Parse(`CREATE (a:Person {name:"Alice",age:30}) CREATE (a)-[:KNOWS {since:2020}]->(b:Person {name:"Bob"})`)
	require.NoError(t, err)
	require.Len(t, q.Parts[0].Clauses, 2)
	c1 := q.Parts[0].Clauses[0].(*CreateClause)
	require.Equal(t, []string{"Person"}, c1.Patterns[0].Nodes[0].Labels)
	require.Equal(t, []string{"name", "age"}, c1.Patterns[0].Nodes[0].Properties.Keys)
}

func TestParseMergeWithOnCreateOnMatch(t *testing.T) {
	q, err := Parse(`MERGE (n:Person {name:"Alice"}) ON CREATE SET n.created = true ON MATCH SET n.seen = true`)
	require.NoError(t, err)
	merge := q.Parts[0].Clauses[0].(*MergeClause)
	require.Len(t, merge.OnCreate, 1)
	require.Len(t, merge.OnMatch, 1)
}

func TestParseSetPropertyLabelAndMergeForms(t *testing.T) {
	q, err := Parse(`MATCH (n) SET n.age = 31, n:Admin, n += {active:true}`)
	require.NoError(t, err)
	set := q.Parts[0].Clauses[1].(*SetClause)
	require.Len(t, set.Items, 3)
	require.Equal(t, "age", set.Items[0].Key)
	require.Equal(t, "Admin", set.Items[1].Label)
	require.True(t, set.Items[2].MergeProp)
}

func TestParseDetachDelete(t *testing.T) {
	q, err := Parse(`MATCH (n) DETACH DELETE n`)
	require.NoError(t, err)
	del := q.Parts[0].Clauses[1].(*DeleteClause)
	require.True(t, del.Detach)
	require.Len(t, del.Variables, 1)
}

func TestParseWithOrderBySkipLimit(t *testing.T) {
	q, err := Parse(`MATCH (n) WITH n.age AS age ORDER BY age DESC SKIP 5 LIMIT 10 RETURN age`)
	require.NoError(t, err)
	with := q.Parts[0].Clauses[1].(*WithClause)
	require.Len(t, with.OrderBy, 1)
	require.True(t, with.OrderBy[0].Descending)
	require.NotNil(t, with.Skip)
	require.NotNil(t, with.Limit)
}

func TestParseUnwind(t *testing.T) {
	q, err := Parse(`UNWIND [1,2,3] AS x RETURN x`)
	require.NoError(t, err)
	un := q.Parts[0].Clauses[0].(*UnwindClause)
	require.Equal(t, "x", un.As)
	list, ok := un.List.(*ListLiteral)
	require.True(t, ok)
	require.Len(t, list.Items, 3)
}

func TestParseForeach(t *testing.T) {
	q, err := Parse(`FOREACH (x IN [1,2] | CREATE (:Tagged {v: x}))`)
	require.NoError(t, err)
	fe := q.Parts[0].Clauses[0].(*ForeachClause)
	require.Equal(t, "x", fe.Variable)
	require.Len(t, fe.Clauses, 1)
}

func TestParseCallYield(t *testing.T) {
	q, err := Parse(`CALL db.labels() YIELD label RETURN label`)
	require.NoError(t, err)
	call := q.Parts[0].Clauses[0].(*CallClause)
	require.Equal(t, "db.labels", call.Procedure)
	require.Equal(t, []string{"label"}, call.Yield)
}

func TestParseUnionAll(t *testing.T) {
	q, err := Parse(`MATCH (n:A) RETURN n.x AS v UNION ALL MATCH (n:B) RETURN n.y AS v`)
	require.NoError(t, err)
	require.Len(t, q.Parts, 2)
	require.Equal(t, []bool{true}, q.UnionAll)
}

func TestParseCaseExpression(t *testing.T) {
	q, err := Parse(`RETURN CASE WHEN 1 > 0 THEN "pos" ELSE "non-pos" END AS sign`)
	require.NoError(t, err)
	ret := q.Parts[0].Clauses[0].(*ReturnClause)
	caseExpr, ok := ret.Projection[0].Expr.(*CaseExpr)
	require.True(t, ok)
	require.Nil(t, caseExpr.Subject)
	require.Len(t, caseExpr.Whens, 1)
	require.NotNil(t, caseExpr.Else)
}

func TestParseIndexAndSliceExpressions(t *testing.T) {
	q, err := Parse(`RETURN [1,2,3][-1], [1,2,3][0..2]`)
	require.NoError(t, err)
	ret := q.Parts[0].Clauses[0].(*ReturnClause)
	_, isIndex := ret.Projection[0].Expr.(*IndexExpr)
	require.True(t, isIndex)
	_, isSlice := ret.Projection[1].Expr.(*SliceExpr)
	require.True(t, isSlice)
}

func TestParseExistsSubquery(t *testing.T) {
	q, err := Parse(`MATCH (n) WHERE EXISTS { (n)-[:KNOWS]->(:Person) } RETURN n`)
	require.NoError(t, err)
	m := q.Parts[0].Clauses[0].(*MatchClause)
	_, ok := m.Where.(*ExistsExpr)
	require.True(t, ok)
}

func TestParseErrorReportsLocation(t *testing.T) {
	_, err := Parse(`MATCH (n RETURN n`)
	require.Error(t, err)
	require.True(t, nexuserr.Is(err, nexuserr.KindParse))
	var ne *nexuserr.Error
	require.ErrorAs(t, err, &ne)
	require.NotNil(t, ne.Location)
}

func TestParseErrorOnTrailingGarbage(t *testing.T) {
	_, err := Parse(`RETURN 1 )`)
	require.Error(t, err)
}
