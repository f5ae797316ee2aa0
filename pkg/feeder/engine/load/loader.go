// Package load applies extraction artifacts to the destination store, either replacing a whole
// table or reloading the rows of one key.
package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	"github.com/tigerroll/feeder/pkg/feeder/component/artifact"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "load"

// DefaultBatchSize is the number of rows per INSERT statement when none is configured.
const DefaultBatchSize = 1000

// TableMetadata is the table collaborator a full load uses to drop and recreate its table.
type TableMetadata interface {
	CreateTable(ctx context.Context, exec database.DBExecutor) error
	DropTable(ctx context.Context, exec database.DBExecutor) error
	CreateIndexes(ctx context.Context, exec database.DBExecutor) error
}

// Option configures a Loader.
type Option func(*Loader)

// WithKey registers the procedure used to reload rows scoped by field.
func WithKey(field string, proc KeyProcedure) Option {
	return func(l *Loader) { l.keys[field] = proc }
}

// WithMetadata makes full loads drop, recreate and index the table instead of deleting its rows.
func WithMetadata(md TableMetadata) Option {
	return func(l *Loader) { l.metadata = md }
}

// WithBatchSize sets the rows per INSERT statement.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithRemoveArtifact deletes an artifact once it has been loaded successfully.
func WithRemoveArtifact(remove bool) Option {
	return func(l *Loader) { l.removeArtifact = remove }
}

// WithRecorder sets the metric recorder.
func WithRecorder(r metrics.MetricRecorder) Option {
	return func(l *Loader) { l.recorder = metrics.OrNoOp(r) }
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(l *Loader) { l.tracer = metrics.TracerOrNoOp(t) }
}

// Loader applies artifacts to one destination connection.
// It assumes it is the only writer of the tables it loads.
type Loader struct {
	dest           database.DBConnection
	artifacts      *artifact.Store
	keys           map[string]KeyProcedure
	metadata       TableMetadata
	batchSize      int
	removeArtifact bool
	recorder       metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewLoader creates a Loader.
//
// Parameters:
//
//	dest: The destination connection.
//	artifacts: The store artifacts are read from.
//	opts: Key procedures, table metadata, batch size and observability hooks.
//
// Returns:
//
//	A new [Loader], or a ConfigError when a required collaborator is missing.
func NewLoader(dest database.DBConnection, artifacts *artifact.Store, opts ...Option) (*Loader, error) {
	if dest == nil || artifacts == nil {
		return nil, exception.NewConfigError(moduleName, "destination connection and artifact store are required", nil)
	}
	l := &Loader{
		dest:      dest,
		artifacts: artifacts,
		keys:      make(map[string]KeyProcedure),
		batchSize: DefaultBatchSize,
		recorder:  metrics.NewNoOpMetricRecorder(),
		tracer:    metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// HasKey reports whether the loader recognizes field for scoped reloads.
func (l *Loader) HasKey(field string) bool {
	_, ok := l.keys[field]
	return ok
}

// Load applies handle in the mode its scope implies: a full load for an unscoped artifact,
// a scoped reload of handle.Key otherwise.
func (l *Loader) Load(ctx context.Context, handle *model.ArtifactHandle) (int64, error) {
	if handle == nil {
		return 0, exception.NewLoadError(moduleName, "no artifact to load", nil)
	}
	if handle.Key == nil {
		return l.LoadFull(ctx, handle, handle.Table)
	}
	return l.LoadByKey(ctx, handle, handle.Table, handle.Key.Field, handle.Key.Value)
}

// LoadFull replaces every row of table with the rows of the artifact.
// With table metadata the table is dropped, recreated, loaded and then indexed; otherwise
// its rows are deleted and the artifact inserted in one transaction. The artifact header is
// read before the table is touched. On destinations with transactional DDL the drop and
// recreate share the insert's transaction, so a failed load leaves the previous table in place.
//
// Parameters:
//
//	ctx: The context for the operation.
//	handle: The artifact to load.
//	table: The destination table.
//
// Returns:
//
//	The number of rows inserted, or a LoadError.
func (l *Loader) LoadFull(ctx context.Context, handle *model.ArtifactHandle, table string) (rows int64, err error) {
	start := time.Now()
	ctx, end := l.tracer.StartSpan(ctx, "load."+table, map[string]interface{}{
		"table": table, "mode": metrics.LoadModeFull, "artifact": handle.Name,
	})
	defer func() {
		l.recorder.RecordLoad(ctx, table, metrics.LoadModeFull, rows, time.Since(start), err)
		end(err)
	}()
	logger.Infof("Full load of '%s' from '%s' started.", table, handle.Name)

	rd, err := l.artifacts.Open(ctx, handle.Name)
	if err != nil {
		logger.Errorf("Full load of '%s' failed: %v", table, err)
		return 0, asLoadError(fmt.Sprintf("artifact '%s' cannot be read", handle.Name), err)
	}
	defer rd.Close()

	inTx := l.metadata == nil || transactionalDDL(l.dest.Type())
	if !inTx {
		if err := l.recreate(ctx, l.dest, table); err != nil {
			return 0, err
		}
	}
	err = l.dest.Transaction(ctx, func(tx database.DBExecutor) error {
		switch {
		case l.metadata == nil:
			deleted, err := tx.DeleteAll(ctx, table)
			if err != nil {
				return exception.NewLoadError(moduleName, fmt.Sprintf("failed to clear '%s'", table), err)
			}
			logger.Debugf("Cleared %d rows from '%s'.", deleted, table)
		case inTx:
			if err := l.recreate(ctx, tx, table); err != nil {
				return err
			}
		}
		var ierr error
		if rows, ierr = l.insertRows(ctx, tx, rd, handle, table, nil, ""); ierr != nil {
			return ierr
		}
		if l.metadata != nil && inTx {
			if err := l.metadata.CreateIndexes(ctx, tx); err != nil {
				return asLoadError(fmt.Sprintf("failed to index '%s'", table), err)
			}
		}
		return nil
	})
	if err != nil {
		rows = 0
		logger.Errorf("Full load of '%s' failed: %v", table, err)
		return 0, asLoadError(fmt.Sprintf("full load of '%s' failed", table), err)
	}
	if l.metadata != nil && !inTx {
		if err := l.metadata.CreateIndexes(ctx, l.dest); err != nil {
			return rows, asLoadError(fmt.Sprintf("failed to index '%s'", table), err)
		}
	}
	l.cleanup(ctx, handle)
	logger.Infof("Full load of '%s' finished: %d rows in %s.", table, rows, time.Since(start))
	return rows, nil
}

func (l *Loader) recreate(ctx context.Context, exec database.DBExecutor, table string) error {
	if err := l.metadata.DropTable(ctx, exec); err != nil {
		return asLoadError(fmt.Sprintf("failed to drop '%s'", table), err)
	}
	if err := l.metadata.CreateTable(ctx, exec); err != nil {
		return asLoadError(fmt.Sprintf("failed to create '%s'", table), err)
	}
	return nil
}

// transactionalDDL reports whether DROP and CREATE TABLE roll back with the transaction.
func transactionalDDL(dbType string) bool {
	switch dbType {
	case "postgres", "sqlite":
		return true
	}
	return false
}

// LoadByKey replaces the rows of table that belong to keyValue with the rows of the artifact.
// The delete and the insert run in one transaction; rows of other keys are never touched.
// Every artifact row must carry keyValue in the key procedure's check column.
//
// Parameters:
//
//	ctx: The context for the operation.
//	handle: The scoped artifact to load.
//	table: The destination table.
//	keyField: A key field registered with [WithKey].
//	keyValue: The key value being refreshed.
//
// Returns:
//
//	The number of rows inserted, or a LoadError.
func (l *Loader) LoadByKey(ctx context.Context, handle *model.ArtifactHandle, table, keyField string, keyValue any) (rows int64, err error) {
	start := time.Now()
	ctx, end := l.tracer.StartSpan(ctx, "load."+table, map[string]interface{}{
		"table": table, "mode": metrics.LoadModeByKey, "artifact": handle.Name, "key_field": keyField,
	})
	defer func() {
		l.recorder.RecordLoad(ctx, table, metrics.LoadModeByKey, rows, time.Since(start), err)
		end(err)
	}()

	proc, ok := l.keys[keyField]
	if !ok {
		return 0, exception.NewLoadError(moduleName, fmt.Sprintf("table '%s' cannot be reloaded by key field '%s'", table, keyField), nil)
	}
	if keyValue == nil {
		return 0, exception.NewLoadError(moduleName, fmt.Sprintf("table '%s' reload by '%s' has no key value", table, keyField), nil)
	}
	logger.Infof("Reload of '%s' for %s=%v from '%s' started.", table, keyField, keyValue, handle.Name)

	err = l.dest.Transaction(ctx, func(tx database.DBExecutor) error {
		deleted, err := proc.Delete(ctx, tx, table, keyValue)
		if err != nil {
			return exception.NewLoadError(moduleName, fmt.Sprintf("failed to delete '%s' rows for %s=%v", table, keyField, keyValue), err)
		}
		logger.Debugf("Deleted %d rows from '%s' for %s=%v.", deleted, table, keyField, keyValue)
		var ierr error
		rows, ierr = l.insert(ctx, tx, handle, table, keyValue, proc.CheckColumn())
		return ierr
	})
	if err != nil {
		rows = 0
		logger.Errorf("Reload of '%s' for %s=%v failed: %v", table, keyField, keyValue, err)
		return 0, asLoadError(fmt.Sprintf("reload of '%s' for %s=%v failed", table, keyField, keyValue), err)
	}
	l.cleanup(ctx, handle)
	logger.Infof("Reload of '%s' for %s=%v finished: %d rows in %s.", table, keyField, keyValue, rows, time.Since(start))
	return rows, nil
}

// insert streams the artifact into table in batches. When checkColumn is set, every row must
// hold keyValue there; values are compared in their artifact text form.
func (l *Loader) insert(ctx context.Context, tx database.DBExecutor, handle *model.ArtifactHandle, table string, keyValue any, checkColumn string) (int64, error) {
	rd, err := l.artifacts.Open(ctx, handle.Name)
	if err != nil {
		return 0, err
	}
	defer rd.Close()
	return l.insertRows(ctx, tx, rd, handle, table, keyValue, checkColumn)
}

func (l *Loader) insertRows(ctx context.Context, tx database.DBExecutor, rd *artifact.Reader, handle *model.ArtifactHandle, table string, keyValue any, checkColumn string) (int64, error) {
	columns := rd.Columns()
	checkIdx := -1
	want := ""
	if checkColumn != "" {
		for i, c := range columns {
			if c == checkColumn {
				checkIdx = i
			}
		}
		if checkIdx < 0 {
			return 0, exception.NewLoadError(moduleName,
				fmt.Sprintf("artifact '%s' has no key column '%s'", handle.Name, checkColumn), nil)
		}
		want = fmt.Sprint(keyValue)
	}

	var (
		total int64
		line  int64
		batch = make([]model.Row, 0, l.batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := tx.BulkInsert(ctx, table, columns, batch, l.batchSize); err != nil {
			return exception.NewLoadError(moduleName, fmt.Sprintf("failed to insert into '%s'", table), err)
		}
		total += int64(len(batch))
		batch = batch[:0]
		return nil
	}
	for {
		row, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		line++
		if checkIdx >= 0 && (row[checkIdx] == nil || fmt.Sprint(row[checkIdx]) != want) {
			return 0, exception.NewLoadError(moduleName,
				fmt.Sprintf("artifact '%s' row %d has %s=%v, expected %s", handle.Name, line, checkColumn, row[checkIdx], want), nil)
		}
		batch = append(batch, row)
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

func (l *Loader) cleanup(ctx context.Context, handle *model.ArtifactHandle) {
	if !l.removeArtifact {
		return
	}
	if err := l.artifacts.Remove(ctx, handle.Name); err != nil {
		logger.Warnf("Loaded artifact '%s' could not be removed: %v", handle.Name, err)
	}
}

// asLoadError keeps typed errors and wraps the rest as LoadErrors.
func asLoadError(msg string, err error) error {
	if exception.IsFeederError(err) {
		return err
	}
	return exception.NewLoadError(moduleName, msg, err)
}
