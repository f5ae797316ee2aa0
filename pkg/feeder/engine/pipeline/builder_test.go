package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
	storageConfig "github.com/tigerroll/feeder/pkg/feeder/adapter/storage/config"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage/local"
	"github.com/tigerroll/feeder/pkg/feeder/component/step"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/core/config/jsl"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
	"github.com/tigerroll/feeder/pkg/feeder/engine/pipeline"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	testutil "github.com/tigerroll/feeder/pkg/feeder/test"
)

const summaryDocument = `
tables:
  - name: allele_summary
    columns: ["@unique_key", allele_key, symbol, marker_symbol]
    queries: ["SELECT a.allele_key, a.symbol, a.marker_key FROM all_allele a WHERE {{key}}"]
    key_fields: {allele_key: a.allele_key}
    steps:
      - ref: lookup
        properties: {column: marker_key, into: marker_symbol, table: mrk_marker, search_field: marker_key, return_field: symbol}
      - ref: sort
        properties: {by: [symbol]}
    schema:
      columns:
        - {name: unique_key, type: INTEGER}
        - {name: allele_key, type: INTEGER}
        - {name: symbol, type: VARCHAR(64), nullable: true}
        - {name: marker_symbol, type: VARCHAR(64), nullable: true}
      indexes:
        - {name: idx_allele_summary_allele_key, columns: [allele_key]}
  - name: allele_count
    columns: [marker_key, total]
    queries:
      - >-
        SELECT a.marker_key, COUNT(*) AS total FROM all_allele a
        WHERE {{range}} GROUP BY a.marker_key ORDER BY a.marker_key
    chunk:
      min_query: SELECT MIN(marker_key) FROM all_allele
      max_query: SELECT MAX(marker_key) FROM all_allele
      key_expr: a.marker_key
`

type fixture struct {
	source  *gormadapter.GormDBAdapter
	dest    *gormadapter.GormDBAdapter
	cfg     *config.Config
	builder *pipeline.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	source := testutil.NewSQLiteConnection(t, "source",
		"CREATE TABLE all_allele (allele_key int, symbol varchar(64), marker_key int)",
		"INSERT INTO all_allele VALUES (1, 'Pax6<Sey>', 10), (2, 'Kit<W>', 20), (3, 'Zeb2<tm1>', 30), (4, 'Orphan', NULL)",
		"CREATE TABLE mrk_marker (marker_key int, symbol varchar(64))",
		"INSERT INTO mrk_marker VALUES (10, 'Pax6'), (20, 'Kit'), (30, 'Zeb2')",
	)
	dest := testutil.NewSQLiteConnection(t, "dest")

	cfg := config.NewConfig()
	cfg.Feeder.Artifact.BaseDir = t.TempDir()
	st, err := local.NewLocalAdapter(storageConfig.StorageConfig{
		BaseDir:    cfg.Feeder.Artifact.BaseDir,
		BucketName: cfg.Feeder.Artifact.Bucket,
	}, "artifacts")
	require.NoError(t, err)

	b, err := pipeline.NewBuilder(cfg, step.NewRegistry(), source, dest, st, nil, nil)
	require.NoError(t, err)
	return &fixture{source: source, dest: dest, cfg: cfg, builder: b}
}

func (f *fixture) dump(t *testing.T) []model.Row {
	t.Helper()
	rs, err := f.dest.Query(context.Background(), "SELECT unique_key, allele_key, symbol, marker_symbol FROM allele_summary ORDER BY unique_key")
	require.NoError(t, err)
	return rs.Rows()
}

func TestBuilder_RebuildAndRefresh(t *testing.T) {
	f := newFixture(t)
	doc, err := jsl.LoadDefinitionFromBytes([]byte(summaryDocument))
	require.NoError(t, err)
	pipelines, err := f.builder.BuildAll(doc)
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	p := pipelines[0]
	assert.Equal(t, "allele_summary", p.Table)
	assert.True(t, p.Loader.HasKey("allele_key"))

	ctx := context.Background()
	handle, err := p.Runner.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "allele_summary.rpt", handle.Name)
	n, err := p.Loader.Load(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	assert.Equal(t, []model.Row{
		{int64(1), int64(2), "Kit<W>", "Kit"},
		{int64(2), int64(4), "Orphan", nil},
		{int64(3), int64(1), "Pax6<Sey>", "Pax6"},
		{int64(4), int64(3), "Zeb2<tm1>", "Zeb2"},
	}, f.dump(t))

	ix, err := f.dest.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_allele_summary_allele_key'")
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())

	// A scoped refresh replaces only the rows of one allele.
	_, err = f.source.Exec(ctx, "UPDATE all_allele SET symbol = 'Kit<W-v>' WHERE allele_key = 2")
	require.NoError(t, err)
	handle, err = p.Runner.Run(ctx, &model.KeyContext{Field: "allele_key", Value: int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "allele_summary.allele_key.2.rpt", handle.Name)
	n, err = p.Loader.Load(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, []model.Row{
		{int64(1), int64(2), "Kit<W-v>", "Kit"},
		{int64(2), int64(4), "Orphan", nil},
		{int64(3), int64(1), "Pax6<Sey>", "Pax6"},
		{int64(4), int64(3), "Zeb2<tm1>", "Zeb2"},
	}, f.dump(t))
}

func TestBuilder_ChunkedTable(t *testing.T) {
	f := newFixture(t)
	doc, err := jsl.LoadDefinitionFromBytes([]byte(summaryDocument))
	require.NoError(t, err)
	counts, _ := doc.Table("allele_count")

	p, err := f.builder.Build(counts)
	require.NoError(t, err)
	chunked, ok := p.Runner.(*extract.ChunkedExtractor)
	require.True(t, ok)
	// No size in the document: the configured default applies.
	assert.Equal(t, f.cfg.Feeder.Extract.ChunkSize, chunked.Chunk().Size)

	handle, err := p.Runner.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), handle.Rows)
	assert.False(t, p.Loader.HasKey("marker_key"))
}

func TestBuilder_Errors(t *testing.T) {
	f := newFixture(t)
	base := jsl.Table{Name: "t", Columns: []string{"x"}, Queries: []string{"SELECT 1 AS x"}}

	cases := map[string]func(t *jsl.Table){
		"unknown step":     func(t *jsl.Table) { t.Steps = []jsl.ComponentRef{{Ref: "pivot"}} },
		"unknown collator": func(t *jsl.Table) { t.Collate = &jsl.ComponentRef{Ref: "merge"} },
		"bad step properties": func(t *jsl.Table) {
			t.Steps = []jsl.ComponentRef{{Ref: "sort", Properties: map[string]interface{}{"order": "x"}}}
		},
		"schema of another table": func(t *jsl.Table) {
			t.Schema = map[string]interface{}{"name": "other", "columns": []interface{}{map[string]interface{}{"name": "x", "type": "int"}}}
		},
		"schema without columns": func(t *jsl.Table) { t.Schema = map[string]interface{}{"comment": "empty"} },
		"chunk without range":    func(t *jsl.Table) { t.Chunk = &jsl.Chunk{MinQuery: "SELECT 1", MaxQuery: "SELECT 2", KeyExpr: "x"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			table := base
			mutate(&table)
			_, err := f.builder.Build(table)
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrConfig), err.Error())
		})
	}

	_, err := f.builder.BuildAll(&jsl.Document{Tables: []jsl.Table{base, {Name: "u", Columns: []string{"x"}, Queries: []string{"{{bogus}}"}}}})
	assert.True(t, errors.Is(err, exception.ErrConfig))
}
