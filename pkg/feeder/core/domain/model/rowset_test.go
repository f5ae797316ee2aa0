package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

func TestNewRowSet_RejectsDuplicateAndEmptyColumns(t *testing.T) {
	_, err := model.NewRowSet("id", "name", "id")
	assert.Error(t, err)

	_, err = model.NewRowSet("id", "")
	assert.Error(t, err)

	rs, err := model.NewRowSet("id", "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns())
	assert.Equal(t, 0, rs.Len())
}

func TestRowSet_AppendEnforcesWidth(t *testing.T) {
	rs := model.MustRowSet("id", "name")
	assert.NoError(t, rs.Append(model.Row{int64(1), "Bob"}))
	assert.Error(t, rs.Append(model.Row{int64(2)}))
	assert.Error(t, rs.Append(model.Row{int64(2), "Ann", "extra"}))
	assert.Equal(t, 1, rs.Len())
}

func TestRowSet_InsertColumn(t *testing.T) {
	rs := model.MustRowSet("a", "b")
	require.NoError(t, rs.Append(model.Row{"a1", "b1"}))
	require.NoError(t, rs.Append(model.Row{"a2", "b2"}))

	err := rs.InsertColumn(1, "seq", func(i int, _ model.Row) (any, error) { return int64(i + 1), nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "seq", "b"}, rs.Columns())
	assert.Equal(t, model.Row{"a1", int64(1), "b1"}, rs.Row(0))
	assert.Equal(t, model.Row{"a2", int64(2), "b2"}, rs.Row(1))

	v, err := rs.Get(1, "b")
	require.NoError(t, err)
	assert.Equal(t, "b2", v)

	assert.Error(t, rs.InsertColumn(0, "seq", nil), "duplicate column must be rejected")
	assert.Error(t, rs.InsertColumn(9, "c", nil))
}

func TestRowSet_AddColumnNilFillsNull(t *testing.T) {
	rs := model.MustRowSet("a")
	require.NoError(t, rs.Append(model.Row{"x"}))
	require.NoError(t, rs.AddColumn("b", nil))
	assert.Equal(t, model.Row{"x", nil}, rs.Row(0))
}

func TestRowSet_ProjectAndSort(t *testing.T) {
	rs := model.MustRowSet("id", "name")
	require.NoError(t, rs.Append(model.Row{int64(1), "Bob"}))
	require.NoError(t, rs.Append(model.Row{int64(2), "Ann"}))

	p, err := rs.Project("name", "id")
	require.NoError(t, err)
	assert.Equal(t, model.Row{"Bob", int64(1)}, p.Row(0))

	_, err = rs.Project("missing")
	assert.Error(t, err)

	rs.SortStable(func(a, b model.Row) bool { return a[1].(string) < b[1].(string) })
	assert.Equal(t, "Ann", rs.Row(0)[1])
}

func TestRowSet_AppendAllRequiresSameColumns(t *testing.T) {
	a := model.MustRowSet("id")
	b := model.MustRowSet("id")
	require.NoError(t, b.Append(model.Row{int64(7)}))
	require.NoError(t, a.AppendAll(b))
	assert.Equal(t, 1, a.Len())

	assert.Error(t, a.AppendAll(model.MustRowSet("other")))
}
