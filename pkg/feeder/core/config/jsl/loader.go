package jsl

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "jsl_loader"

// LoadDefinitionFromBytes parses and validates a job document.
func LoadDefinitionFromBytes(data []byte) (*Document, error) {
	logger.Infof("Starting job definition loading.")

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to parse job document", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	for _, t := range doc.Tables {
		logger.Debugf("Loaded table job '%s' (%d queries, %d steps).", t.Name, len(t.Queries), len(t.Steps))
	}
	logger.Infof("Job definition loading completed. Number of tables loaded: %d", len(doc.Tables))
	return &doc, nil
}

// LoadDefinitionFromFile reads and parses the job document at path.
func LoadDefinitionFromFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("failed to read job document '%s'", path), err)
	}
	return LoadDefinitionFromBytes(data)
}

// Table returns the table named name.
func (d *Document) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns the table names in document order.
func (d *Document) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// Validate reports every problem in the document at once.
func (d *Document) Validate() error {
	var merr *multierror.Error
	if len(d.Tables) == 0 {
		merr = multierror.Append(merr, fmt.Errorf("job document declares no tables"))
	}
	seen := make(map[string]struct{}, len(d.Tables))
	for i, t := range d.Tables {
		if _, dup := seen[t.Name]; dup && t.Name != "" {
			merr = multierror.Append(merr, fmt.Errorf("table '%s' is declared twice", t.Name))
		}
		seen[t.Name] = struct{}{}
		if err := t.validate(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("tables[%d]: %w", i, err))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return exception.NewConfigError(moduleName, "invalid job document", err)
	}
	return nil
}

func (t Table) validate() error {
	if _, err := t.JobSpec(); err != nil {
		return err
	}
	var merr *multierror.Error
	if len(t.Queries) == 0 {
		merr = multierror.Append(merr, fmt.Errorf("table '%s' declares no queries", t.Name))
	}
	for i, q := range t.Queries {
		if strings.TrimSpace(q) == "" {
			merr = multierror.Append(merr, fmt.Errorf("table '%s' query %d is empty", t.Name, i))
		}
	}
	for _, s := range t.Steps {
		if s.Ref == "" {
			merr = multierror.Append(merr, fmt.Errorf("table '%s' has a step without 'ref'", t.Name))
		}
	}
	if t.Collate != nil && t.Collate.Ref == "" {
		merr = multierror.Append(merr, fmt.Errorf("table '%s' collate has no 'ref'", t.Name))
	}
	if c := t.Chunk; c != nil {
		if c.Size < 0 {
			merr = multierror.Append(merr, fmt.Errorf("table '%s' chunk.size must not be negative", t.Name))
		}
		if c.MinQuery == "" || c.MaxQuery == "" || c.KeyExpr == "" {
			merr = multierror.Append(merr, fmt.Errorf("table '%s' chunk requires min_query, max_query and key_expr", t.Name))
		}
	}
	for field, key := range t.Load.Keys {
		if _, ok := t.KeyFields[field]; !ok {
			merr = multierror.Append(merr, fmt.Errorf("table '%s' load key '%s' is not a declared key field", t.Name, field))
		}
		if (key.Column == "") == (key.Statement == "") {
			merr = multierror.Append(merr, fmt.Errorf("table '%s' load key '%s' needs exactly one of column or statement", t.Name, field))
		}
	}
	if t.Load.BatchSize < 0 {
		merr = multierror.Append(merr, fmt.Errorf("table '%s' load.batch_size must not be negative", t.Name))
	}
	return merr.ErrorOrNil()
}

// JobSpec builds the extraction job of this table.
func (t Table) JobSpec() (*model.JobSpec, error) {
	columns := make([]model.ColumnSpec, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = model.ParseColumnSpec(c)
	}
	return model.NewJobSpec(t.Name, columns, t.Queries, t.KeyFields)
}

// LoadKeys returns the deletion procedure of every key field, filling in the column default.
func (t Table) LoadKeys() map[string]KeyRef {
	keys := make(map[string]KeyRef, len(t.KeyFields))
	for field := range t.KeyFields {
		keys[field] = KeyRef{Column: field}
	}
	for field, key := range t.Load.Keys {
		keys[field] = key
	}
	return keys
}
