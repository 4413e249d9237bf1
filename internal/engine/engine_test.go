package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	e, err := Open(t.TempDir(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func TestOpenCreatesMetadata(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer e.Close()

	require.FileExists(t, filepath.Join(dir, metadataFileName))
	require.Equal(t, EngineVersion, e.Metadata().EngineVersion)
}

func TestOpenRejectsConcurrentOpen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer e.Close()

	_, err = Open(dir, DefaultConfig())
	require.Error(t, err)
}

func TestOpenRejectsMismatchedPageSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeMetadata(dir, Metadata{EngineVersion: EngineVersion, PageSize: 1}))

	_, err := Open(dir, DefaultConfig())
	require.Error(t, err)
}

func TestExecuteCreateAndMatchRoundTrip(t *testing.T) {
	e := openTestEngine(t)

	res, err := e.Execute(`CREATE (n:Person {name: "Ada", age: 36}) RETURN n`, nil, Opts{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, 1, res.Stats.NodesCreated)

	res, err = e.Execute(`MATCH (n:Person) WHERE n.name = "Ada" RETURN n.age AS age`, nil, Opts{ReadOnly: true})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.EqualValues(t, 36, res.Rows[0]["age"])
}

func TestExecuteWithParams(t *testing.T) {
	e := openTestEngine(t)

	_, err := e.Execute(`CREATE (n:City {name: $name})`, map[string]any{"name": "Boston"}, Opts{})
	require.NoError(t, err)

	res, err := e.Execute(`MATCH (n:City) RETURN n.name AS name`, nil, Opts{ReadOnly: true})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "Boston", res.Rows[0]["name"])
}

func TestExecuteStreamingPullsRowByRow(t *testing.T) {
	e := openTestEngine(t)

	for i := 0; i < 3; i++ {
		_, err := e.Execute(`CREATE (:Counter)`, nil, Opts{})
		require.NoError(t, err)
	}

	stream, err := e.ExecuteStreaming(`MATCH (n:Counter) RETURN n`, nil, Opts{ReadOnly: true})
	require.NoError(t, err)
	defer stream.Close()

	count := 0
	for {
		_, ok, err := stream.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 3, count)
}

func TestDataCreateNodeAndRelationship(t *testing.T) {
	e := openTestEngine(t)
	d := e.Data()

	a, err := d.CreateNode([]string{"Person"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	b, err := d.CreateNode([]string{"Person"}, map[string]any{"name": "Bob"})
	require.NoError(t, err)

	relID, err := d.CreateRelationship(a, b, "KNOWS", map[string]any{"since": int64(2020)})
	require.NoError(t, err)

	rel, ok, err := d.ReadRelationship(relID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a, rel.Start)
	require.Equal(t, b, rel.End)
}

func TestDataDeleteNodeRequiresDetachWithLiveEdges(t *testing.T) {
	e := openTestEngine(t)
	d := e.Data()

	a, err := d.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	b, err := d.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	_, err = d.CreateRelationship(a, b, "KNOWS", nil)
	require.NoError(t, err)

	require.Error(t, d.DeleteNode(a, false))
	require.NoError(t, d.DeleteNode(a, true))

	_, ok, err := d.ReadNode(a)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFindNodesByLabel(t *testing.T) {
	e := openTestEngine(t)
	d := e.Data()

	_, err := d.CreateNode([]string{"Dog"}, nil)
	require.NoError(t, err)
	_, err = d.CreateNode([]string{"Dog"}, nil)
	require.NoError(t, err)
	_, err = d.CreateNode([]string{"Cat"}, nil)
	require.NoError(t, err)

	dogs, err := d.FindNodesByLabel("Dog", 0)
	require.NoError(t, err)
	require.Len(t, dogs, 2)

	limited, err := d.FindNodesByLabel("Dog", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSchemaInfoAndStats(t *testing.T) {
	e := openTestEngine(t)
	d := e.Data()
	_, err := d.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)

	info, err := e.SchemaInfo()
	require.NoError(t, err)
	require.Len(t, info.Labels, 1)
	require.Equal(t, "Person", info.Labels[0].Name)
	require.EqualValues(t, 1, info.Labels[0].Count)

	st := e.Stats()
	require.Equal(t, e.cat.SchemaEpoch(), st.SchemaEpoch)
}

func TestCheckpointRotatesWAL(t *testing.T) {
	e := openTestEngine(t)
	d := e.Data()
	_, err := d.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)

	segBefore := e.segment
	require.NoError(t, e.Checkpoint())
	require.Greater(t, e.segment, segBefore)
}

func TestCompactReportsTombstones(t *testing.T) {
	e := openTestEngine(t)
	d := e.Data()
	a, err := d.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	require.NoError(t, d.DeleteNode(a, true))

	res, err := e.Compact()
	require.NoError(t, err)
	require.Equal(t, 1, res.TombstonedNodesObserved)
}

func TestRecoverReplaysCommittedData(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, DefaultConfig())
	require.NoError(t, err)

	_, err = e.Data().CreateNode([]string{"Person"}, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e2, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer e2.Close()

	res, err := e2.Execute(`MATCH (n:Person) RETURN n.name AS name`, nil, Opts{ReadOnly: true})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "Ada", res.Rows[0]["name"])
}
