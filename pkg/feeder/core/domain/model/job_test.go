package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

func TestParseColumnSpec(t *testing.T) {
	assert.Equal(t, model.Column("symbol"), model.ParseColumnSpec("symbol"))
	assert.Equal(t, model.GeneratedSequence("unique_key"), model.ParseColumnSpec("@unique_key"))
	assert.Equal(t, model.ColumnSpec{Name: model.DefaultGeneratedColumnName, Generated: true}, model.ParseColumnSpec("@"))
	assert.Equal(t, "@unique_key", model.GeneratedSequence("unique_key").String())
}

func TestNewJobSpec(t *testing.T) {
	spec, err := model.NewJobSpec("t",
		[]model.ColumnSpec{model.Column("a"), model.GeneratedSequence(""), model.Column("b")},
		[]string{"SELECT a, b FROM t"}, map[string]string{"a": "t.a"})
	require.NoError(t, err)

	pos, col, ok := spec.GeneratedColumn()
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
	assert.Equal(t, model.DefaultGeneratedColumnName, col.Name)
	assert.Equal(t, []string{"a", model.DefaultGeneratedColumnName, "b"}, spec.ColumnNames())

	_, err = model.NewJobSpec("", []model.ColumnSpec{model.Column("a")}, nil, nil)
	assert.Error(t, err)
	_, err = model.NewJobSpec("t", nil, nil, nil)
	assert.Error(t, err)
	_, err = model.NewJobSpec("t", []model.ColumnSpec{model.Column("a"), model.Column("a")}, nil, nil)
	assert.Error(t, err)
	_, err = model.NewJobSpec("t", []model.ColumnSpec{model.GeneratedSequence("x"), model.GeneratedSequence("y")}, nil, nil)
	assert.Error(t, err)
}

func TestKeyContextString(t *testing.T) {
	var k *model.KeyContext
	assert.Equal(t, "<all>", k.String())
	assert.Equal(t, "allele_key=42", (&model.KeyContext{Field: "allele_key", Value: 42}).String())
}
