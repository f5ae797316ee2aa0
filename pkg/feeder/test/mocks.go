// Package test provides testify mocks and in-memory fakes shared by the feeder's tests.
package test

import (
	"context"
	"database/sql"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	dbconfig "github.com/tigerroll/feeder/pkg/feeder/adapter/database/config"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
)

// MockDBConnection is a mock implementation of database.DBConnection.
// Transaction invokes its callback with the mock itself unless the expectation returns an error first.
type MockDBConnection struct {
	mock.Mock
}

var _ database.DBConnection = (*MockDBConnection)(nil)

func (m *MockDBConnection) Close() error { return m.Called().Error(0) }
func (m *MockDBConnection) Type() string { return m.Called().String(0) }
func (m *MockDBConnection) Name() string { return m.Called().String(0) }

func (m *MockDBConnection) Query(ctx context.Context, query string, args ...any) (*model.RowSet, error) {
	ret := m.Called(ctx, query, args)
	var rs *model.RowSet
	if v := ret.Get(0); v != nil {
		rs = v.(*model.RowSet)
	}
	return rs, ret.Error(1)
}

func (m *MockDBConnection) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	ret := m.Called(ctx, statement, args)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockDBConnection) DeleteWhere(ctx context.Context, table, field string, value any) (int64, error) {
	ret := m.Called(ctx, table, field, value)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockDBConnection) DeleteAll(ctx context.Context, table string) (int64, error) {
	ret := m.Called(ctx, table)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockDBConnection) BulkInsert(ctx context.Context, table string, columns []string, rows []model.Row, batchSize int) (int64, error) {
	ret := m.Called(ctx, table, columns, rows, batchSize)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockDBConnection) Transaction(ctx context.Context, fn database.TxFunc) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return fn(m)
}

func (m *MockDBConnection) IsTableNotExistError(err error) bool {
	return m.Called(err).Bool(0)
}

func (m *MockDBConnection) RefreshConnection(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDBConnection) Config() dbconfig.DatabaseConfig {
	return m.Called().Get(0).(dbconfig.DatabaseConfig)
}

func (m *MockDBConnection) GetSQLDB() (*sql.DB, error) {
	ret := m.Called()
	var db *sql.DB
	if v := ret.Get(0); v != nil {
		db = v.(*sql.DB)
	}
	return db, ret.Error(1)
}

// MockRecorder is a mock implementation of metrics.MetricRecorder.
type MockRecorder struct {
	mock.Mock
}

var _ metrics.MetricRecorder = (*MockRecorder)(nil)

func (m *MockRecorder) RecordQuery(ctx context.Context, table string, duration time.Duration, err error) {
	m.Called(ctx, table, duration, err)
}

func (m *MockRecorder) RecordChunk(ctx context.Context, table string, rows int64, duration time.Duration) {
	m.Called(ctx, table, rows, duration)
}

func (m *MockRecorder) RecordExtract(ctx context.Context, table string, rows int64, duration time.Duration, err error) {
	m.Called(ctx, table, rows, duration, err)
}

func (m *MockRecorder) RecordLookup(ctx context.Context, table, field string, hit bool) {
	m.Called(ctx, table, field, hit)
}

func (m *MockRecorder) RecordLoad(ctx context.Context, table, mode string, rows int64, duration time.Duration, err error) {
	m.Called(ctx, table, mode, rows, duration, err)
}
