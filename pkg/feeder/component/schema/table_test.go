package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/feeder/pkg/feeder/component/schema"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	testutil "github.com/tigerroll/feeder/pkg/feeder/test"
)

func alleleTable() *schema.Table {
	return &schema.Table{
		Name:    "allele_summary",
		Comment: "one row per allele",
		Columns: []schema.Column{
			{Name: "unique_key", Type: "int", PrimaryKey: true},
			{Name: "allele_key", Type: "int"},
			{Name: "symbol", Type: "varchar(255)", Nullable: true, Comment: "allele symbol"},
		},
		Indexes: []schema.Index{
			{Name: "idx_allele_summary_allele_key", Columns: []string{"allele_key"}},
			{Name: "idx_allele_summary_symbol", Columns: []string{"symbol", "allele_key"}, Unique: true},
		},
	}
}

func TestCreateTableSQL(t *testing.T) {
	stmt, err := alleleTable().CreateTableSQL()
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE allele_summary (\n"+
		"  unique_key int NOT NULL,\n"+
		"  allele_key int NOT NULL,\n"+
		"  symbol varchar(255),\n"+
		"  PRIMARY KEY (unique_key)\n"+
		")", stmt)

	mysql := alleleTable()
	mysql.Dialect = "mysql"
	stmt, err = mysql.CreateTableSQL()
	require.NoError(t, err)
	assert.Contains(t, stmt, "symbol varchar(255) COMMENT 'allele symbol'")
	assert.Contains(t, stmt, ") COMMENT='one row per allele'")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*schema.Table){
		"bad name":        func(tb *schema.Table) { tb.Name = "drop table;" },
		"no columns":      func(tb *schema.Table) { tb.Columns = nil },
		"duplicate":       func(tb *schema.Table) { tb.Columns = append(tb.Columns, tb.Columns[0]) },
		"missing type":    func(tb *schema.Table) { tb.Columns[1].Type = " " },
		"index unknown":   func(tb *schema.Table) { tb.Indexes[0].Columns = []string{"marker_key"} },
		"index no column": func(tb *schema.Table) { tb.Indexes[0].Columns = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tb := alleleTable()
			mutate(tb)
			assert.Error(t, tb.Validate())
		})
	}
	assert.NoError(t, alleleTable().Validate())
}

func TestLifecycle_OnSQLite(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewSQLiteConnection(t, "dest")
	tb := alleleTable()

	require.NoError(t, tb.CreateTable(ctx, conn))
	_, err := conn.BulkInsert(ctx, tb.Name, tb.ColumnNames(), []model.Row{{int64(1), int64(10), "Pax6<Sey>"}}, 100)
	require.NoError(t, err)
	require.NoError(t, tb.CreateIndexes(ctx, conn))

	rs, err := conn.Query(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", tb.Name)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rs.Row(0)[0], int64(2))

	require.NoError(t, tb.DropTable(ctx, conn))
	require.NoError(t, tb.DropTable(ctx, conn), "dropping a missing table is not an error")
	_, err = conn.Query(ctx, "SELECT * FROM allele_summary")
	assert.True(t, conn.IsTableNotExistError(err))
}

func TestCreateTable_PostgresComments(t *testing.T) {
	conn := new(testutil.MockDBConnection)
	conn.On("Exec", mock.Anything, mock.MatchedBy(func(s string) bool { return len(s) > 12 && s[:12] == "CREATE TABLE" }), mock.Anything).Return(int64(0), nil).Once()
	conn.On("Exec", mock.Anything, "COMMENT ON TABLE allele_summary IS 'one row per allele'", mock.Anything).Return(int64(0), nil).Once()
	conn.On("Exec", mock.Anything, "COMMENT ON COLUMN allele_summary.symbol IS 'allele symbol'", mock.Anything).Return(int64(0), nil).Once()

	tb := alleleTable()
	tb.Dialect = "postgres"
	require.NoError(t, tb.CreateTable(context.Background(), conn))
	conn.AssertExpectations(t)
}

func TestCreateTable_ErrorIsLoadError(t *testing.T) {
	conn := new(testutil.MockDBConnection)
	conn.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("permission denied"))
	err := alleleTable().CreateTable(context.Background(), conn)
	assert.True(t, errors.Is(err, exception.ErrLoad))
}

func TestComments(t *testing.T) {
	assert.Equal(t, map[string]string{"": "one row per allele", "symbol": "allele symbol"}, alleleTable().Comments())
}
