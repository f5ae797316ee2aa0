package model

import (
	"fmt"
	"strings"
)

// DefaultGeneratedColumnName names a generated sequence column declared without a name.
const DefaultGeneratedColumnName = "auto_key"

// ColumnSpec is one element of a job's output column order: either a named column taken from the
// collated query result, or a generated 1..N sequence column.
type ColumnSpec struct {
	Name      string
	Generated bool
}

// Column declares a named column.
func Column(name string) ColumnSpec { return ColumnSpec{Name: name} }

// GeneratedSequence declares a generated sequence column. An empty name uses DefaultGeneratedColumnName.
func GeneratedSequence(name string) ColumnSpec {
	if name == "" {
		name = DefaultGeneratedColumnName
	}
	return ColumnSpec{Name: name, Generated: true}
}

// String renders generated columns with a leading '@', the notation used in job documents.
func (c ColumnSpec) String() string {
	if c.Generated {
		return "@" + c.Name
	}
	return c.Name
}

// ParseColumnSpec parses the job document notation: "@name" (or "@") is a generated column.
func ParseColumnSpec(s string) ColumnSpec {
	if strings.HasPrefix(s, "@") {
		return GeneratedSequence(strings.TrimPrefix(s, "@"))
	}
	return Column(s)
}

// JobSpec describes one destination table's extraction. It is immutable once constructed.
type JobSpec struct {
	// Name is the destination table name and the artifact name prefix.
	Name string
	// Columns is the output column order.
	Columns []ColumnSpec
	// Queries are source query templates. They may contain the {{key}} and {{range}} placeholders.
	Queries []string
	// KeyFields maps each key field that may scope a run to the source expression it filters on.
	KeyFields map[string]string
}

// NewJobSpec validates and builds a JobSpec.
func NewJobSpec(name string, columns []ColumnSpec, queries []string, keyFields map[string]string) (*JobSpec, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("job name must not be empty")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("job '%s' declares no columns", name)
	}
	seen := make(map[string]struct{}, len(columns))
	generated := 0
	for _, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("job '%s' has a column with an empty name", name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("job '%s' declares column '%s' twice", name, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Generated {
			generated++
		}
	}
	if generated > 1 {
		return nil, fmt.Errorf("job '%s' declares %d generated columns, at most one is allowed", name, generated)
	}

	cols := make([]ColumnSpec, len(columns))
	copy(cols, columns)
	qs := make([]string, len(queries))
	copy(qs, queries)
	kf := make(map[string]string, len(keyFields))
	for k, v := range keyFields {
		kf[k] = v
	}
	return &JobSpec{Name: name, Columns: cols, Queries: qs, KeyFields: kf}, nil
}

// ColumnNames returns the output column names in order, generated ones included.
func (j *JobSpec) ColumnNames() []string {
	names := make([]string, len(j.Columns))
	for i, c := range j.Columns {
		names[i] = c.Name
	}
	return names
}

// GeneratedColumn returns the position and spec of the generated column, if any.
func (j *JobSpec) GeneratedColumn() (int, ColumnSpec, bool) {
	for i, c := range j.Columns {
		if c.Generated {
			return i, c, true
		}
	}
	return -1, ColumnSpec{}, false
}

// KeyContext scopes a run to one entity: rows where Field equals Value.
// A nil *KeyContext means the whole table.
type KeyContext struct {
	Field string
	Value any
}

// String renders the scope for logs and artifact names.
func (k *KeyContext) String() string {
	if k == nil {
		return "<all>"
	}
	return fmt.Sprintf("%s=%v", k.Field, k.Value)
}

// ChunkRange is a half-open key range [Lo, Hi).
type ChunkRange struct {
	Lo int64
	Hi int64
}

// String implements fmt.Stringer.
func (c ChunkRange) String() string {
	return fmt.Sprintf("[%d,%d)", c.Lo, c.Hi)
}

// Contains reports whether k lies in the range.
func (c ChunkRange) Contains(k int64) bool {
	return k >= c.Lo && k < c.Hi
}

// ArtifactHandle identifies a published extraction artifact.
type ArtifactHandle struct {
	// Name is the artifact's object name within the artifact bucket.
	Name string
	// Table is the destination table the artifact belongs to.
	Table string
	// Key is the scope of an incremental artifact, nil for a full one.
	Key *KeyContext
	// Columns are the artifact's column names in order.
	Columns []string
	// Rows is the number of data rows written.
	Rows int64
}
