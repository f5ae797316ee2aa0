package step

import (
	"context"
	"fmt"

	"github.com/tigerroll/feeder/pkg/feeder/component/cache"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
)

// UnionProperties configures a UnionCollator.
type UnionProperties struct {
	// All keeps duplicate rows. By default the union is a set: only the first occurrence of a row is kept.
	All bool `yaml:"all"`
}

// UnionCollator concatenates every query result in query order. Results may list the same
// columns in different orders; they are aligned to the first result's columns.
type UnionCollator struct {
	all bool
}

// NewUnionCollatorBuilder returns the builder registered as "union".
func NewUnionCollatorBuilder() CollatorBuilder {
	return func(properties map[string]interface{}) (extract.Collator, error) {
		var props UnionProperties
		if err := bind(properties, &props); err != nil {
			return nil, err
		}
		return &UnionCollator{all: props.All}, nil
	}
}

// Name implements extract.Collator.
func (c *UnionCollator) Name() string { return "union" }

// Collate implements extract.Collator.
func (c *UnionCollator) Collate(_ context.Context, _ *extract.RunContext, results []*model.RowSet) (*model.RowSet, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("union needs at least one query result")
	}
	columns := results[0].Columns()
	out, err := model.NewRowSet(columns...)
	if err != nil {
		return nil, err
	}
	// Rows already emitted, interned by value.
	seen := cache.NewSurrogateKeyGenerator(1)
	for i, rs := range results {
		if rs.Width() != len(columns) {
			return nil, fmt.Errorf("result %d has columns %v, expected %v", i, rs.Columns(), columns)
		}
		aligned, err := rs.Project(columns...)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		for _, row := range aligned.Rows() {
			if !c.all {
				before := seen.Peek()
				if seen.GetKey(row...) != before {
					continue
				}
			}
			if err := out.Append(row); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// FirstNonEmptyCollator returns the first result with at least one row, or the last result when all are empty.
type FirstNonEmptyCollator struct{}

// NewFirstNonEmptyCollatorBuilder returns the builder registered as "first_non_empty".
func NewFirstNonEmptyCollatorBuilder() CollatorBuilder {
	return func(properties map[string]interface{}) (extract.Collator, error) {
		var none struct{}
		if err := bind(properties, &none); err != nil {
			return nil, err
		}
		return FirstNonEmptyCollator{}, nil
	}
}

// Name implements extract.Collator.
func (FirstNonEmptyCollator) Name() string { return "first_non_empty" }

// Collate implements extract.Collator.
func (FirstNonEmptyCollator) Collate(_ context.Context, _ *extract.RunContext, results []*model.RowSet) (*model.RowSet, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("first_non_empty needs at least one query result")
	}
	for _, rs := range results {
		if rs.Len() > 0 {
			return rs, nil
		}
	}
	return results[len(results)-1], nil
}

// StaticProperties configures a StaticCollator.
type StaticProperties struct {
	Columns []string        `yaml:"columns"`
	Rows    [][]interface{} `yaml:"rows"`
}

// StaticCollator ignores query results and produces rows declared in the job file.
// It serves small bootstrap tables that have no source query.
type StaticCollator struct {
	columns []string
	rows    []model.Row
}

// NewStaticCollator validates the declared rows and creates a StaticCollator.
func NewStaticCollator(props StaticProperties) (*StaticCollator, error) {
	if _, err := model.NewRowSet(props.Columns...); err != nil {
		return nil, err
	}
	rows := make([]model.Row, len(props.Rows))
	for i, r := range props.Rows {
		if len(r) != len(props.Columns) {
			return nil, fmt.Errorf("static row %d has %d fields, expected %d", i, len(r), len(props.Columns))
		}
		row := make(model.Row, len(r))
		for j, v := range r {
			row[j] = normalizeStatic(v)
		}
		rows[i] = row
	}
	return &StaticCollator{columns: append([]string(nil), props.Columns...), rows: rows}, nil
}

// NewStaticCollatorBuilder returns the builder registered as "static".
func NewStaticCollatorBuilder() CollatorBuilder {
	return func(properties map[string]interface{}) (extract.Collator, error) {
		var props StaticProperties
		if err := bind(properties, &props); err != nil {
			return nil, err
		}
		return NewStaticCollator(props)
	}
}

// Name implements extract.Collator.
func (c *StaticCollator) Name() string { return "static" }

// Collate implements extract.Collator. Each call returns a fresh copy of the declared rows.
func (c *StaticCollator) Collate(_ context.Context, _ *extract.RunContext, _ []*model.RowSet) (*model.RowSet, error) {
	out, err := model.NewRowSet(c.columns...)
	if err != nil {
		return nil, err
	}
	for _, r := range c.rows {
		if err := out.Append(append(model.Row(nil), r...)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// normalizeStatic maps YAML scalars onto the value kinds the artifact codec writes.
func normalizeStatic(v interface{}) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

var (
	_ extract.Collator = (*UnionCollator)(nil)
	_ extract.Collator = FirstNonEmptyCollator{}
	_ extract.Collator = (*StaticCollator)(nil)
)
