// Package schema describes destination tables declaratively and issues their DDL.
// Identifiers are emitted unquoted and must be plain SQL identifiers.
package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "schema"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column is one destination column.
type Column struct {
	Name string `yaml:"name"`
	// Type is emitted verbatim, e.g. "int", "varchar(255)", "text".
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key"`
	Comment    string `yaml:"comment"`
}

// Index is a secondary index created after the table is loaded.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

// Table describes a destination table and the DDL to manage it.
type Table struct {
	Name    string   `yaml:"name"`
	Comment string   `yaml:"comment"`
	Columns []Column `yaml:"columns"`
	Indexes []Index  `yaml:"indexes"`
	// Dialect selects comment syntax: "postgres" and "mysql" support comments, others ignore them.
	Dialect string `yaml:"-"`
}

// Validate checks identifiers and column definitions.
func (t *Table) Validate() error {
	if !identifierPattern.MatchString(t.Name) {
		return fmt.Errorf("invalid table name '%s'", t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table '%s' has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if !identifierPattern.MatchString(c.Name) {
			return fmt.Errorf("table '%s' has invalid column name '%s'", t.Name, c.Name)
		}
		if strings.TrimSpace(c.Type) == "" {
			return fmt.Errorf("table '%s' column '%s' has no type", t.Name, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table '%s' declares column '%s' twice", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for _, ix := range t.Indexes {
		if !identifierPattern.MatchString(ix.Name) {
			return fmt.Errorf("table '%s' has invalid index name '%s'", t.Name, ix.Name)
		}
		if len(ix.Columns) == 0 {
			return fmt.Errorf("index '%s' has no columns", ix.Name)
		}
		for _, c := range ix.Columns {
			if !seen[c] {
				return fmt.Errorf("index '%s' references unknown column '%s'", ix.Name, c)
			}
		}
	}
	return nil
}

// ColumnNames returns the declared column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateTableSQL renders the CREATE TABLE statement.
func (t *Table) CreateTableSQL() (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	defs := make([]string, 0, len(t.Columns)+1)
	var pks []string
	for _, c := range t.Columns {
		var sb strings.Builder
		sb.WriteString(c.Name)
		sb.WriteByte(' ')
		sb.WriteString(strings.TrimSpace(c.Type))
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if t.Dialect == "mysql" && c.Comment != "" {
			sb.WriteString(" COMMENT ")
			sb.WriteString(quote(c.Comment))
		}
		defs = append(defs, sb.String())
		if c.PrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	if len(pks) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", t.Name, strings.Join(defs, ",\n  "))
	if t.Dialect == "mysql" && t.Comment != "" {
		stmt += " COMMENT=" + quote(t.Comment)
	}
	return stmt, nil
}

// CreateTable creates the table and, for postgres, its comments.
func (t *Table) CreateTable(ctx context.Context, exec database.DBExecutor) error {
	stmt, err := t.CreateTableSQL()
	if err != nil {
		return exception.NewConfigError(moduleName, "invalid table definition", err)
	}
	if _, err := exec.Exec(ctx, stmt); err != nil {
		return exception.NewLoadError(moduleName, fmt.Sprintf("failed to create table '%s'", t.Name), err)
	}
	if t.Dialect == "postgres" {
		for _, c := range t.commentStatements() {
			if _, err := exec.Exec(ctx, c); err != nil {
				return exception.NewLoadError(moduleName, fmt.Sprintf("failed to comment table '%s'", t.Name), err)
			}
		}
	}
	logger.Debugf("Created table '%s'.", t.Name)
	return nil
}

// DropTable drops the table if it exists.
func (t *Table) DropTable(ctx context.Context, exec database.DBExecutor) error {
	if !identifierPattern.MatchString(t.Name) {
		return exception.NewConfigError(moduleName, fmt.Sprintf("invalid table name '%s'", t.Name), nil)
	}
	if _, err := exec.Exec(ctx, "DROP TABLE IF EXISTS "+t.Name); err != nil {
		return exception.NewLoadError(moduleName, fmt.Sprintf("failed to drop table '%s'", t.Name), err)
	}
	logger.Debugf("Dropped table '%s'.", t.Name)
	return nil
}

// CreateIndexes creates every declared index.
func (t *Table) CreateIndexes(ctx context.Context, exec database.DBExecutor) error {
	if err := t.Validate(); err != nil {
		return exception.NewConfigError(moduleName, "invalid table definition", err)
	}
	for _, stmt := range t.IndexStatements() {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return exception.NewLoadError(moduleName, fmt.Sprintf("failed to index table '%s'", t.Name), err)
		}
	}
	logger.Debugf("Created %d indexes on '%s'.", len(t.Indexes), t.Name)
	return nil
}

// IndexStatements renders one CREATE INDEX statement per declared index.
func (t *Table) IndexStatements() []string {
	out := make([]string, 0, len(t.Indexes))
	for _, ix := range t.Indexes {
		unique := ""
		if ix.Unique {
			unique = "UNIQUE "
		}
		out = append(out, fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, ix.Name, t.Name, strings.Join(ix.Columns, ", ")))
	}
	return out
}

// Comments returns the descriptive comments keyed by column name; the table comment has key "".
func (t *Table) Comments() map[string]string {
	out := make(map[string]string)
	if t.Comment != "" {
		out[""] = t.Comment
	}
	for _, c := range t.Columns {
		if c.Comment != "" {
			out[c.Name] = c.Comment
		}
	}
	return out
}

func (t *Table) commentStatements() []string {
	var out []string
	if t.Comment != "" {
		out = append(out, fmt.Sprintf("COMMENT ON TABLE %s IS %s", t.Name, quote(t.Comment)))
	}
	for _, c := range t.Columns {
		if c.Comment != "" {
			out = append(out, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", t.Name, c.Name, quote(c.Comment)))
		}
	}
	return out
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
