// Package jsl defines the job document: a YAML list of destination tables, each describing the
// source queries, collation, postprocess steps, chunking and load keys used to (re)build it.
package jsl

// JSLDefinitionBytes holds the content of a job document, typically embedded by main.
type JSLDefinitionBytes []byte

// Document is the top-level structure of a job document.
type Document struct {
	// Tables lists the destination tables in dependency order.
	Tables []Table `yaml:"tables"`
}

// Table describes how one destination table is derived and loaded.
type Table struct {
	// Name is the destination table name and the artifact name prefix.
	Name string `yaml:"name"`
	// Description is an optional description for the table.
	Description string `yaml:"description,omitempty"`
	// Columns is the output column order. "@name" declares a generated sequence column.
	Columns []string `yaml:"columns"`
	// Queries are source query templates, with optional {{key}} and {{range}} placeholders.
	Queries []string `yaml:"queries"`
	// KeyFields maps each key field that may scope a refresh to the source expression it filters on.
	KeyFields map[string]string `yaml:"key_fields,omitempty"`
	// Collate is an optional collator reference. Defaults to "single".
	Collate *ComponentRef `yaml:"collate,omitempty"`
	// Chunk makes the extraction chunked over a numeric key range.
	Chunk *Chunk `yaml:"chunk,omitempty"`
	// Steps are postprocess steps applied in order.
	Steps []ComponentRef `yaml:"steps,omitempty"`
	// Load configures the loader.
	Load Load `yaml:"load,omitempty"`
	// Schema optionally declares the destination table. When present, full rebuilds drop and
	// recreate the table and its indexes.
	Schema map[string]interface{} `yaml:"schema,omitempty"`
	// Trusting skips value escaping for this table's artifacts.
	Trusting bool `yaml:"trusting,omitempty"`
}

// ComponentRef references a registered step or collator.
type ComponentRef struct {
	// Ref is the reference name of the component.
	Ref string `yaml:"ref"`
	// Properties is an optional map of properties decoded by the component builder.
	Properties map[string]interface{} `yaml:"properties,omitempty"`
}

// Chunk defines chunked extraction.
type Chunk struct {
	// Size is the width of each key range. Zero uses feeder.extract.chunk_size.
	Size int64 `yaml:"size,omitempty"`
	// MinQuery and MaxQuery return the bounds of the key domain in a single value.
	MinQuery string `yaml:"min_query"`
	MaxQuery string `yaml:"max_query"`
	// KeyExpr is the source expression {{range}} filters on.
	KeyExpr string `yaml:"key_expr"`
}

// Load configures how artifacts are loaded into the destination table.
type Load struct {
	// Keys maps a key field to the procedure removing its rows. Key fields declared in
	// key_fields but absent here default to a delete on the column of the same name.
	Keys map[string]KeyRef `yaml:"keys,omitempty"`
	// BatchSize overrides feeder.load.batch_size.
	BatchSize int `yaml:"batch_size,omitempty"`
}

// KeyRef is a key deletion procedure. Exactly one of Column and Statement is set.
type KeyRef struct {
	// Column deletes rows whose column equals the key value.
	Column string `yaml:"column,omitempty"`
	// Statement is a DELETE with one or more "?" placeholders, each bound to the key value.
	Statement string `yaml:"statement,omitempty"`
	// CheckColumn is the artifact column a statement key verifies against the key value
	// before loading. Column keys always check Column.
	CheckColumn string `yaml:"check_column,omitempty"`
}
