package load_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
	storageConfig "github.com/tigerroll/feeder/pkg/feeder/adapter/storage/config"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage/local"
	"github.com/tigerroll/feeder/pkg/feeder/component/artifact"
	"github.com/tigerroll/feeder/pkg/feeder/component/schema"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/engine/load"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	testutil "github.com/tigerroll/feeder/pkg/feeder/test"
)

const createSummary = "CREATE TABLE allele_summary (unique_key int NOT NULL PRIMARY KEY, allele_key int NOT NULL, symbol varchar(64))"

func newStore(t *testing.T) *artifact.Store {
	t.Helper()
	st, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: t.TempDir(), BucketName: "reports"}, "artifacts")
	require.NoError(t, err)
	store, err := artifact.NewStore(st, "", artifact.DefaultFormat())
	require.NoError(t, err)
	return store
}

func publish(t *testing.T, store *artifact.Store, table string, key *model.KeyContext, rows ...model.Row) *model.ArtifactHandle {
	t.Helper()
	rs := testutil.RowSetOf([]string{"unique_key", "allele_key", "symbol"}, rows...)
	name := artifact.Name(table, key)
	n, err := store.Writer().Write(context.Background(), name, rs)
	require.NoError(t, err)
	return &model.ArtifactHandle{Name: name, Table: table, Key: key, Columns: rs.Columns(), Rows: n}
}

func dump(t *testing.T, conn *gormadapter.GormDBAdapter, where string, args ...any) []model.Row {
	t.Helper()
	rs, err := conn.Query(context.Background(), "SELECT unique_key, allele_key, symbol FROM allele_summary WHERE "+where+" ORDER BY unique_key", args...)
	require.NoError(t, err)
	return rs.Rows()
}

func fullyLoaded(t *testing.T) (*gormadapter.GormDBAdapter, *artifact.Store, *load.Loader) {
	t.Helper()
	conn := testutil.NewSQLiteConnection(t, "dest", createSummary,
		"INSERT INTO allele_summary VALUES (99, 9, 'stale')")
	store := newStore(t)
	l, err := load.NewLoader(conn, store, load.WithKey("allele_key", load.ColumnKey{Column: "allele_key"}), load.WithBatchSize(2))
	require.NoError(t, err)

	h := publish(t, store, "allele_summary", nil,
		model.Row{int64(1), int64(1), "Pax6<Sey>"},
		model.Row{int64(2), int64(1), "Pax6<Sey-2>"},
		model.Row{int64(3), int64(2), "Kit<W>"},
		model.Row{int64(4), int64(3), "Kit<Sl>"},
		model.Row{int64(5), int64(3), nil},
	)
	n, err := l.LoadFull(context.Background(), h, "allele_summary")
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	return conn, store, l
}

func TestLoadFull_ReplacesAllRows(t *testing.T) {
	conn, _, _ := fullyLoaded(t)
	got := dump(t, conn, "1=1")
	assert.Equal(t, []model.Row{
		{int64(1), int64(1), "Pax6<Sey>"},
		{int64(2), int64(1), "Pax6<Sey-2>"},
		{int64(3), int64(2), "Kit<W>"},
		{int64(4), int64(3), "Kit<Sl>"},
		{int64(5), int64(3), nil},
	}, got)
}

func TestLoadByKey_ChangesOnlyThatKey(t *testing.T) {
	conn, store, l := fullyLoaded(t)
	before := dump(t, conn, "allele_key <> ?", 1)

	key := &model.KeyContext{Field: "allele_key", Value: int64(1)}
	h := publish(t, store, "allele_summary", key,
		model.Row{int64(10), int64(1), "Pax6<Sey-3>"},
	)
	n, err := l.Load(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, before, dump(t, conn, "allele_key <> ?", 1))
	assert.Equal(t, []model.Row{{int64(10), int64(1), "Pax6<Sey-3>"}}, dump(t, conn, "allele_key = ?", 1))
}

func TestLoadByKey_EmptyArtifactRemovesKey(t *testing.T) {
	conn, store, l := fullyLoaded(t)
	h := publish(t, store, "allele_summary", &model.KeyContext{Field: "allele_key", Value: int64(3)})
	_, err := l.LoadByKey(context.Background(), h, "allele_summary", "allele_key", int64(3))
	require.NoError(t, err)
	assert.Empty(t, dump(t, conn, "allele_key = ?", 3))
	assert.Len(t, dump(t, conn, "1=1"), 3)
}

func TestLoadByKey_ForeignRowRollsBack(t *testing.T) {
	conn, store, l := fullyLoaded(t)
	before := dump(t, conn, "1=1")

	h := publish(t, store, "allele_summary", &model.KeyContext{Field: "allele_key", Value: int64(2)},
		model.Row{int64(11), int64(2), "Kit<W-2>"},
		model.Row{int64(12), int64(3), "wrong key"},
	)
	_, err := l.LoadByKey(context.Background(), h, "allele_summary", "allele_key", int64(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrLoad))
	assert.Equal(t, before, dump(t, conn, "1=1"), "delete of key 2 is rolled back")
}

func TestLoadByKey_InsertFailureRollsBack(t *testing.T) {
	conn, store, l := fullyLoaded(t)
	before := dump(t, conn, "1=1")

	// unique_key 4 already belongs to allele 3.
	h := publish(t, store, "allele_summary", &model.KeyContext{Field: "allele_key", Value: int64(2)},
		model.Row{int64(4), int64(2), "dup"},
	)
	_, err := l.LoadByKey(context.Background(), h, "allele_summary", "allele_key", int64(2))
	assert.True(t, errors.Is(err, exception.ErrLoad))
	assert.Equal(t, before, dump(t, conn, "1=1"))
}

func TestLoadByKey_UnknownKeyField(t *testing.T) {
	_, store, l := fullyLoaded(t)
	h := publish(t, store, "allele_summary", &model.KeyContext{Field: "marker_key", Value: int64(2)})
	_, err := l.LoadByKey(context.Background(), h, "allele_summary", "marker_key", int64(2))
	assert.True(t, errors.Is(err, exception.ErrLoad))
	assert.False(t, l.HasKey("marker_key"))
	assert.True(t, l.HasKey("allele_key"))
}

func TestStatementKey_DeletesThroughJoin(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "dest", createSummary,
		"CREATE TABLE marker_allele (marker_key int, allele_key int)",
		"INSERT INTO marker_allele VALUES (100, 1), (100, 2), (200, 3)",
		"INSERT INTO allele_summary VALUES (1, 1, 'a'), (2, 2, 'b'), (3, 3, 'c')",
	)
	store := newStore(t)
	l, err := load.NewLoader(conn, store, load.WithKey("marker_key", load.StatementKey{
		Statement: "DELETE FROM allele_summary WHERE allele_key IN (SELECT allele_key FROM marker_allele WHERE marker_key = ?)",
	}))
	require.NoError(t, err)

	h := publish(t, store, "allele_summary", &model.KeyContext{Field: "marker_key", Value: int64(100)},
		model.Row{int64(7), int64(1), "a2"},
	)
	_, err = l.LoadByKey(context.Background(), h, "allele_summary", "marker_key", int64(100))
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{int64(3), int64(3), "c"}, {int64(7), int64(1), "a2"}}, dump(t, conn, "1=1"))
}

func TestLoadFull_WithMetadataRecreatesAndIndexes(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "dest", "CREATE TABLE allele_summary (old_column text)")
	store := newStore(t)
	table := &schema.Table{
		Name: "allele_summary",
		Columns: []schema.Column{
			{Name: "unique_key", Type: "int", PrimaryKey: true},
			{Name: "allele_key", Type: "int"},
			{Name: "symbol", Type: "varchar(64)", Nullable: true},
		},
		Indexes: []schema.Index{{Name: "idx_summary_allele", Columns: []string{"allele_key"}}},
	}
	l, err := load.NewLoader(conn, store, load.WithMetadata(table), load.WithRemoveArtifact(true))
	require.NoError(t, err)

	h := publish(t, store, "allele_summary", nil, model.Row{int64(1), int64(1), "x"})
	_, err = l.Load(context.Background(), h)
	require.NoError(t, err)

	assert.Len(t, dump(t, conn, "1=1"), 1)
	rs, err := conn.Query(context.Background(), "SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", "idx_summary_allele")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	ok, err := store.Exists(context.Background(), h.Name)
	require.NoError(t, err)
	assert.False(t, ok, "artifact removed after a successful load")
}

func TestLoad_RecordsMetrics(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "dest", createSummary)
	store := newStore(t)
	rec := new(testutil.MockRecorder)
	rec.On("RecordLoad", mock.Anything, "allele_summary", metrics.LoadModeFull, int64(1), mock.Anything, nil).Once()
	rec.On("RecordLoad", mock.Anything, "allele_summary", metrics.LoadModeByKey, int64(0), mock.Anything, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, exception.ErrLoad)
	})).Once()
	l, err := load.NewLoader(conn, store, load.WithRecorder(rec))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), publish(t, store, "allele_summary", nil, model.Row{int64(1), int64(1), "x"}))
	require.NoError(t, err)
	key := &model.KeyContext{Field: "allele_key", Value: int64(1)}
	_, err = l.Load(context.Background(), publish(t, store, "allele_summary", key))
	require.Error(t, err)
	rec.AssertExpectations(t)
}

func TestLoadFull_ClearErrorIsLoadError(t *testing.T) {
	conn := new(testutil.MockDBConnection)
	conn.On("Transaction", mock.Anything).Return(nil)
	conn.On("DeleteAll", mock.Anything, "allele_summary").Return(int64(0), errors.New("lock wait timeout"))
	store := newStore(t)
	l, err := load.NewLoader(conn, store)
	require.NoError(t, err)

	_, err = l.LoadFull(context.Background(), publish(t, store, "allele_summary", nil), "allele_summary")
	assert.True(t, errors.Is(err, exception.ErrLoad))
	assert.Contains(t, err.Error(), "lock wait timeout")
	conn.AssertExpectations(t)
}

func summaryTable() *schema.Table {
	return &schema.Table{
		Name: "allele_summary",
		Columns: []schema.Column{
			{Name: "unique_key", Type: "int", PrimaryKey: true},
			{Name: "allele_key", Type: "int"},
			{Name: "symbol", Type: "varchar(64)", Nullable: true},
		},
		Indexes: []schema.Index{{Name: "idx_summary_allele", Columns: []string{"allele_key"}}},
	}
}

func TestLoadFull_WithMetadataFailureKeepsTable(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "dest")
	store := newStore(t)
	l, err := load.NewLoader(conn, store, load.WithMetadata(summaryTable()))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), publish(t, store, "allele_summary", nil,
		model.Row{int64(1), int64(1), "Pax6<Sey>"},
		model.Row{int64(2), int64(2), "Kit<W>"},
	))
	require.NoError(t, err)
	before := dump(t, conn, "1=1")
	require.Len(t, before, 2)

	dup := publish(t, store, "allele_summary", nil,
		model.Row{int64(3), int64(3), "a"},
		model.Row{int64(3), int64(4), "b"},
	)
	_, err = l.LoadFull(context.Background(), dup, "allele_summary")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrLoad))
	assert.Equal(t, before, dump(t, conn, "1=1"), "drop and recreate roll back with the insert")

	missing := &model.ArtifactHandle{Name: artifact.Name("allele_summary", nil) + ".gone", Table: "allele_summary"}
	_, err = l.LoadFull(context.Background(), missing, "allele_summary")
	require.Error(t, err)
	assert.Equal(t, before, dump(t, conn, "1=1"), "an unreadable artifact never reaches the table")

	rs, err := conn.Query(context.Background(), "SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", "idx_summary_allele")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

type mockMetadata struct{ mock.Mock }

func (m *mockMetadata) CreateTable(ctx context.Context, exec database.DBExecutor) error {
	return m.Called(exec).Error(0)
}

func (m *mockMetadata) DropTable(ctx context.Context, exec database.DBExecutor) error {
	return m.Called(exec).Error(0)
}

func (m *mockMetadata) CreateIndexes(ctx context.Context, exec database.DBExecutor) error {
	return m.Called(exec).Error(0)
}

func TestLoadFull_MissingArtifactNeverDropsTable(t *testing.T) {
	conn := new(testutil.MockDBConnection)
	conn.On("Type").Return("mysql").Maybe()
	md := new(mockMetadata)
	store := newStore(t)
	l, err := load.NewLoader(conn, store, load.WithMetadata(md))
	require.NoError(t, err)

	_, err = l.LoadFull(context.Background(), &model.ArtifactHandle{Name: "allele_summary.rpt", Table: "allele_summary"}, "allele_summary")
	require.Error(t, err)
	md.AssertNotCalled(t, "DropTable", mock.Anything)
	md.AssertNotCalled(t, "CreateTable", mock.Anything)
	conn.AssertNotCalled(t, "Transaction", mock.Anything)
}

func TestLoadFull_NonTransactionalDDLRunsOutsideTransaction(t *testing.T) {
	conn := new(testutil.MockDBConnection)
	conn.On("Type").Return("mysql")
	conn.On("Transaction", mock.Anything).Return(nil)
	conn.On("BulkInsert", mock.Anything, "allele_summary", []string{"unique_key", "allele_key", "symbol"}, mock.Anything, load.DefaultBatchSize).
		Return(int64(1), nil)
	md := new(mockMetadata)
	md.On("DropTable", conn).Return(nil).Once()
	md.On("CreateTable", conn).Return(nil).Once()
	md.On("CreateIndexes", conn).Return(nil).Once()
	store := newStore(t)
	l, err := load.NewLoader(conn, store, load.WithMetadata(md))
	require.NoError(t, err)

	n, err := l.LoadFull(context.Background(), publish(t, store, "allele_summary", nil, model.Row{int64(1), int64(1), "x"}), "allele_summary")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	md.AssertExpectations(t)
	conn.AssertExpectations(t)
}
