package gorm

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

// gormExecutor implements database.DBExecutor over a *gorm.DB, which may be a transaction.
type gormExecutor struct {
	db       *gorm.DB
	name     string
	readOnly bool
}

// Query implements database.DBExecutor.
func (e *gormExecutor) Query(ctx context.Context, query string, args ...any) (*model.RowSet, error) {
	rows, err := e.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs, err := model.NewRowSet(columns...)
	if err != nil {
		return nil, fmt.Errorf("query result on '%s' has unusable columns: %w", e.name, err)
	}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		if err := rs.Append(values); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Exec implements database.DBExecutor.
func (e *gormExecutor) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	if err := e.checkWritable(); err != nil {
		return 0, err
	}
	result := e.db.WithContext(ctx).Exec(statement, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteWhere implements database.DBExecutor.
func (e *gormExecutor) DeleteWhere(ctx context.Context, table, field string, value any) (int64, error) {
	return e.Exec(ctx, "DELETE FROM ? WHERE ? = ?", clause.Table{Name: table}, clause.Column{Name: field}, value)
}

// DeleteAll implements database.DBExecutor.
func (e *gormExecutor) DeleteAll(ctx context.Context, table string) (int64, error) {
	return e.Exec(ctx, "DELETE FROM ?", clause.Table{Name: table})
}

// BulkInsert implements database.DBExecutor.
func (e *gormExecutor) BulkInsert(ctx context.Context, table string, columns []string, rows []model.Row, batchSize int) (int64, error) {
	if err := e.checkWritable(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	records := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d has %d fields, expected %d", i, len(row), len(columns))
		}
		record := make(map[string]interface{}, len(columns))
		for j, c := range columns {
			record[c] = row[j]
		}
		records[i] = record
	}

	// SkipDefaultTransaction keeps batches inside the caller's transaction instead of nesting savepoints.
	db := e.db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true})
	result := db.Table(table).CreateInBatches(records, batchSize)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (e *gormExecutor) checkWritable() error {
	if e.readOnly {
		return fmt.Errorf("connection '%s' is read-only", e.name)
	}
	return nil
}

// normalizeValue maps driver values onto the RowSet value domain.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint32:
		return int64(t)
	case uint16:
		return int64(t)
	case uint8:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// isTableNotExistError covers the table-not-found messages of the supported dialects.
func isTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return (strings.Contains(errMsg, "relation \"") && strings.Contains(errMsg, "\" does not exist")) || // PostgreSQL
		(strings.Contains(errMsg, "Error 1146") && strings.Contains(errMsg, "doesn't exist")) || // MySQL
		strings.Contains(errMsg, "no such table:") // SQLite
}
