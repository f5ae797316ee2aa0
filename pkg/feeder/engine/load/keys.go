package load

import (
	"context"
	"fmt"
	"strings"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
)

// KeyProcedure removes the destination rows that belong to one key value before a scoped reload.
// A Loader holds one KeyProcedure per key field it recognizes, so a join table can be
// refreshed by either side's key.
type KeyProcedure interface {
	// Delete removes the rows of table that belong to value and returns how many were removed.
	Delete(ctx context.Context, tx database.DBExecutor, table string, value any) (int64, error)
	// CheckColumn names the artifact column every reloaded row must carry value in.
	// An empty name disables the check.
	CheckColumn() string
}

// ColumnKey deletes rows whose Column equals the key value. It is the default procedure
// for a key field that maps directly onto a destination column.
type ColumnKey struct {
	Column string
}

// Delete implements KeyProcedure.
func (k ColumnKey) Delete(ctx context.Context, tx database.DBExecutor, table string, value any) (int64, error) {
	return tx.DeleteWhere(ctx, table, k.Column, value)
}

// CheckColumn implements KeyProcedure.
func (k ColumnKey) CheckColumn() string { return k.Column }

// StatementKey runs a custom DELETE for keys that do not map onto a single column,
// e.g. "DELETE FROM marker_to_allele WHERE allele_key IN (SELECT ...  WHERE marker_key = ?)".
// Every '?' in Statement is bound to the key value.
type StatementKey struct {
	Statement string
	// Column is checked against the reloaded rows; empty disables the check.
	Column string
}

// Delete implements KeyProcedure.
func (k StatementKey) Delete(ctx context.Context, tx database.DBExecutor, _ string, value any) (int64, error) {
	n := strings.Count(k.Statement, "?")
	if n == 0 {
		return 0, fmt.Errorf("delete statement has no '?' placeholder: %s", k.Statement)
	}
	args := make([]any, n)
	for i := range args {
		args[i] = value
	}
	return tx.Exec(ctx, k.Statement, args...)
}

// CheckColumn implements KeyProcedure.
func (k StatementKey) CheckColumn() string { return k.Column }

var (
	_ KeyProcedure = ColumnKey{}
	_ KeyProcedure = StatementKey{}
)
