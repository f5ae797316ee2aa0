package jsl_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/feeder/pkg/feeder/core/config/jsl"
	"github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

const document = `
tables:
  - name: allele_summary
    columns: ["@unique_key", allele_key, symbol, marker_symbol]
    queries:
      - >-
        SELECT a._Allele_key AS allele_key, a.symbol, a._Marker_key AS marker_key
        FROM all_allele a WHERE {{key}} AND {{range}}
    key_fields:
      allele_key: a._Allele_key
      marker_key: a._Marker_key
    chunk:
      size: 50000
      min_query: SELECT MIN(_Allele_key) FROM all_allele a WHERE {{key}}
      max_query: SELECT MAX(_Allele_key) FROM all_allele a WHERE {{key}}
      key_expr: a._Allele_key
    steps:
      - ref: lookup
        properties:
          column: marker_key
          into: marker_symbol
          table: mrk_marker
          search_field: _Marker_key
          return_field: symbol
      - ref: sort
        properties:
          by: [symbol]
    load:
      keys:
        marker_key:
          statement: DELETE FROM allele_summary WHERE allele_key IN (SELECT allele_key FROM allele_marker WHERE marker_key = ?)
          check_column: ""
    schema:
      columns:
        - {name: unique_key, type: INT, primary_key: true}
        - {name: allele_key, type: INT}
  - name: marker_count
    columns: [marker_key, total]
    queries: ["SELECT _Marker_key AS marker_key, COUNT(*) AS total FROM all_allele GROUP BY _Marker_key"]
    collate: {ref: single}
    trusting: true
`

func TestLoadDefinitionFromBytes(t *testing.T) {
	doc, err := jsl.LoadDefinitionFromBytes([]byte(document))
	require.NoError(t, err)
	assert.Equal(t, []string{"allele_summary", "marker_count"}, doc.TableNames())

	summary, ok := doc.Table("allele_summary")
	require.True(t, ok)
	require.NotNil(t, summary.Chunk)
	assert.Equal(t, int64(50000), summary.Chunk.Size)
	assert.Equal(t, "a._Allele_key", summary.Chunk.KeyExpr)
	require.Len(t, summary.Steps, 2)
	assert.Equal(t, "lookup", summary.Steps[0].Ref)
	assert.Equal(t, "mrk_marker", summary.Steps[0].Properties["table"])
	assert.Equal(t, []interface{}{"symbol"}, summary.Steps[1].Properties["by"])
	assert.NotNil(t, summary.Schema)

	spec, err := summary.JobSpec()
	require.NoError(t, err)
	assert.Equal(t, []string{"unique_key", "allele_key", "symbol", "marker_symbol"}, spec.ColumnNames())
	pos, col, ok := spec.GeneratedColumn()
	require.True(t, ok)
	assert.Equal(t, 0, pos)
	assert.Equal(t, model.GeneratedSequence("unique_key"), col)

	counts, ok := doc.Table("marker_count")
	require.True(t, ok)
	assert.True(t, counts.Trusting)
	assert.Equal(t, "single", counts.Collate.Ref)
	assert.Empty(t, counts.LoadKeys())

	_, ok = doc.Table("missing")
	assert.False(t, ok)
}

func TestTable_LoadKeys(t *testing.T) {
	doc, err := jsl.LoadDefinitionFromBytes([]byte(document))
	require.NoError(t, err)
	summary, _ := doc.Table("allele_summary")

	keys := summary.LoadKeys()
	require.Len(t, keys, 2)
	// Undeclared key procedures default to the column of the same name.
	assert.Equal(t, jsl.KeyRef{Column: "allele_key"}, keys["allele_key"])
	assert.Contains(t, keys["marker_key"].Statement, "allele_marker")
	assert.Empty(t, keys["marker_key"].Column)
}

func TestLoadDefinitionFromBytes_Invalid(t *testing.T) {
	cases := map[string]string{
		"no tables":         "tables: []",
		"malformed yaml":    "tables: [",
		"duplicate table":   "tables:\n  - {name: a, columns: [x], queries: [q]}\n  - {name: a, columns: [x], queries: [q]}",
		"no columns":        "tables:\n  - {name: a, queries: [q]}",
		"no queries":        "tables:\n  - {name: a, columns: [x]}",
		"two generated":     "tables:\n  - {name: a, columns: [\"@x\", \"@y\"], queries: [q]}",
		"step without ref":  "tables:\n  - {name: a, columns: [x], queries: [q], steps: [{properties: {into: y}}]}",
		"incomplete chunk":  "tables:\n  - {name: a, columns: [x], queries: [q], chunk: {size: 10}}",
		"undeclared key":    "tables:\n  - {name: a, columns: [x], queries: [q], load: {keys: {k: {column: k}}}}",
		"ambiguous key ref": "tables:\n  - {name: a, columns: [x], queries: [q], key_fields: {k: t.k}, load: {keys: {k: {column: k, statement: 'DELETE'}}}}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := jsl.LoadDefinitionFromBytes([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrConfig))
		})
	}
}

func TestLoadDefinitionFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o644))

	doc, err := jsl.LoadDefinitionFromFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Tables, 2)

	_, err = jsl.LoadDefinitionFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, exception.ErrConfig))
}
