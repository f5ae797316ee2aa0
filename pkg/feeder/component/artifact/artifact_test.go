package artifact_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/feeder/pkg/feeder/adapter/storage/config"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage/local"
	"github.com/tigerroll/feeder/pkg/feeder/component/artifact"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	testutil "github.com/tigerroll/feeder/pkg/feeder/test"
)

func newWriter(t *testing.T, format artifact.Format) (*artifact.Writer, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: dir, BucketName: "reports"}, "artifacts")
	require.NoError(t, err)
	w, err := artifact.NewWriter(store, "", format)
	require.NoError(t, err)
	return w, dir
}

func readBack(t *testing.T, w *artifact.Writer, name string) *model.RowSet {
	t.Helper()
	rd, err := artifact.Open(context.Background(), w.Store(), w.Bucket(), name, w.Format())
	require.NoError(t, err)
	defer rd.Close()
	rs, err := rd.ReadAll()
	require.NoError(t, err)
	return rs
}

func TestRoundTrip_NullAndEmptyAreDistinct(t *testing.T) {
	w, _ := newWriter(t, artifact.DefaultFormat())
	rs := testutil.RowSetOf([]string{"id", "note"},
		model.Row{int64(1), ""},
		model.Row{int64(2), nil},
		model.Row{int64(3), `\N`},
		model.Row{int64(4), "tab\there\nnew\\line\rcr"},
	)

	n, err := w.Write(context.Background(), "notes.rpt", rs)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	got := readBack(t, w, "notes.rpt")
	assert.Equal(t, []string{"id", "note"}, got.Columns())
	require.Equal(t, 4, got.Len())
	assert.Equal(t, model.Row{"1", ""}, got.Row(0))
	assert.Equal(t, model.Row{"2", nil}, got.Row(1))
	assert.Equal(t, model.Row{"3", `\N`}, got.Row(2))
	assert.Equal(t, model.Row{"4", "tab\there\nnew\\line\rcr"}, got.Row(3))
}

func TestEncoding_IsLineOriented(t *testing.T) {
	rd, err := artifact.NewReader(strings.NewReader("a|b\nx\\|y|\\N\n"), artifact.Format{Delimiter: '|', NullToken: `\N`})
	require.NoError(t, err)
	row, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, model.Row{"x|y", nil}, row)
	_, err = rd.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestValues_AreFormattedCanonically(t *testing.T) {
	w, _ := newWriter(t, artifact.DefaultFormat())
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	rs := testutil.RowSetOf([]string{"i", "f", "b", "t"}, model.Row{int64(-7), 2.5, true, ts})
	_, err := w.Write(context.Background(), "v.rpt", rs)
	require.NoError(t, err)

	got := readBack(t, w, "v.rpt")
	assert.Equal(t, model.Row{"-7", "2.5", "true", "2024-03-01 12:30:00"}, got.Row(0))
}

func TestEmptyRowSet_WritesHeaderOnly(t *testing.T) {
	w, _ := newWriter(t, artifact.DefaultFormat())
	n, err := w.Write(context.Background(), "empty.rpt", model.MustRowSet("a", "b"))
	require.NoError(t, err)
	assert.Zero(t, n)

	got := readBack(t, w, "empty.rpt")
	assert.Equal(t, []string{"a", "b"}, got.Columns())
	assert.Zero(t, got.Len())
}

func TestSession_AppendsChunksAndHidesUntilCommit(t *testing.T) {
	w, _ := newWriter(t, artifact.DefaultFormat())
	ctx := context.Background()

	s, err := w.Open(ctx, "big.rpt", []string{"k"})
	require.NoError(t, err)
	require.NoError(t, s.Append(testutil.RowSetOf([]string{"k"}, model.Row{int64(1)}, model.Row{int64(2)})))
	require.NoError(t, s.Append(testutil.RowSetOf([]string{"k"}, model.Row{int64(3)})))

	exists, err := w.Store().Exists(ctx, w.Bucket(), "big.rpt")
	require.NoError(t, err)
	assert.False(t, exists)

	err = s.Append(testutil.RowSetOf([]string{"other"}, model.Row{int64(4)}))
	assert.ErrorIs(t, err, exception.ErrArtifact)

	n, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 3, readBack(t, w, "big.rpt").Len())
}

func TestSession_AbortPublishesNothing(t *testing.T) {
	w, _ := newWriter(t, artifact.DefaultFormat())
	ctx := context.Background()
	s, err := w.Open(ctx, "gone.rpt", []string{"k"})
	require.NoError(t, err)
	require.NoError(t, s.Append(testutil.RowSetOf([]string{"k"}, model.Row{int64(1)})))
	require.NoError(t, s.Abort())
	require.NoError(t, s.Abort())

	exists, err := w.Store().Exists(ctx, w.Bucket(), "gone.rpt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWrite_UnsupportedValueAborts(t *testing.T) {
	w, _ := newWriter(t, artifact.DefaultFormat())
	ctx := context.Background()
	rs := testutil.RowSetOf([]string{"k"}, model.Row{struct{}{}})
	_, err := w.Write(ctx, "bad.rpt", rs)
	assert.ErrorIs(t, err, exception.ErrArtifact)

	exists, err := w.Store().Exists(ctx, w.Bucket(), "bad.rpt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTrustingFormat_WritesVerbatim(t *testing.T) {
	w, _ := newWriter(t, artifact.Format{Delimiter: '\t', NullToken: `\N`, Trusting: true})
	rs := testutil.RowSetOf([]string{"k", "v"}, model.Row{int64(1), "plain"}, model.Row{int64(2), nil})
	_, err := w.Write(context.Background(), "fast.rpt", rs)
	require.NoError(t, err)

	got := readBack(t, w, "fast.rpt")
	assert.Equal(t, model.Row{"1", "plain"}, got.Row(0))
	assert.Equal(t, model.Row{"2", nil}, got.Row(1))
}

func TestReader_RejectsTruncatedAndMalformedInput(t *testing.T) {
	_, err := artifact.NewReader(strings.NewReader(""), artifact.DefaultFormat())
	assert.ErrorIs(t, err, exception.ErrArtifact)

	rd, err := artifact.NewReader(strings.NewReader("a\tb\n1\t2\n3"), artifact.DefaultFormat())
	require.NoError(t, err)
	_, err = rd.Next()
	require.NoError(t, err)
	_, err = rd.Next()
	assert.ErrorIs(t, err, exception.ErrArtifact, "unterminated final line means truncated output")

	rd, err = artifact.NewReader(strings.NewReader("a\tb\n1\n"), artifact.DefaultFormat())
	require.NoError(t, err)
	_, err = rd.Next()
	assert.ErrorIs(t, err, exception.ErrArtifact)

	rd, err = artifact.NewReader(strings.NewReader("a\n\\q\n"), artifact.DefaultFormat())
	require.NoError(t, err)
	_, err = rd.Next()
	assert.True(t, errors.Is(err, exception.ErrArtifact))
}

func TestFormatValidation(t *testing.T) {
	_, err := artifact.NewFormat(",", `\N`, false)
	assert.NoError(t, err)
	_, err = artifact.NewFormat("\\", `\N`, false)
	assert.Error(t, err)
	_, err = artifact.NewFormat("\t", "NULL", false)
	assert.Error(t, err)
	_, err = artifact.NewFormat("\t", `\n`, false)
	assert.Error(t, err)
	_, err = artifact.NewFormat("ab", `\N`, false)
	assert.Error(t, err)
	for _, d := range []string{"n", "r", "t", "N"} {
		_, err = artifact.NewFormat(d, `\N`, false)
		assert.Error(t, err, "delimiter %q", d)
	}
	_, err = artifact.NewFormat("|", `\N`, false)
	assert.NoError(t, err)
}

func TestName(t *testing.T) {
	assert.Equal(t, "allele_summary.rpt", artifact.Name("allele_summary", nil))
	assert.Equal(t, "allele_summary.allele_key.42.rpt",
		artifact.Name("allele_summary", &model.KeyContext{Field: "allele_key", Value: int64(42)}))
	assert.Equal(t, "t.k.a_b.rpt", artifact.Name("t", &model.KeyContext{Field: "k", Value: "a/b"}))
	assert.NotContains(t, artifact.Name("t", &model.KeyContext{Field: "k", Value: "../x"}), "..")
}
