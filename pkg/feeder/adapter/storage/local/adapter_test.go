package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/feeder/pkg/feeder/adapter/storage/config"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage/local"
)

func listAll(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			names = append(names, filepath.Base(path))
		}
		return err
	}))
	return names
}

func TestCreate_InvisibleUntilCommit(t *testing.T) {
	dir := t.TempDir()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: dir, BucketName: "reports"}, "artifacts")
	require.NoError(t, err)
	ctx := context.Background()

	w, err := conn.Create(ctx, "", "t.rpt")
	require.NoError(t, err)
	_, err = w.Write([]byte("a\tb\n"))
	require.NoError(t, err)

	exists, err := conn.Exists(ctx, "", "t.rpt")
	require.NoError(t, err)
	assert.False(t, exists, "uncommitted object must not be visible")

	var listed []string
	require.NoError(t, conn.ListObjects(ctx, "", "", func(name string) error {
		listed = append(listed, name)
		return nil
	}))
	assert.Empty(t, listed)

	require.NoError(t, w.Commit())
	require.NoError(t, w.Commit(), "second commit is a no-op")

	rc, err := conn.Download(ctx, "", "t.rpt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n", string(data))
	assert.Equal(t, []string{"t.rpt"}, listAll(t, dir))
}

func TestAbort_RemovesTemporaryFile(t *testing.T) {
	dir := t.TempDir()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: dir}, "artifacts")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "b", "keep.rpt", strings.NewReader("old")))

	w, err := conn.Create(ctx, "b", "keep.rpt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("half"))
	require.NoError(t, w.Abort())
	assert.Error(t, w.Commit())

	rc, err := conn.Download(ctx, "b", "keep.rpt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "old", string(data), "aborted write must not replace the published object")
	assert.Equal(t, []string{"keep.rpt"}, listAll(t, dir))
}

func TestResolvePath_RejectsEscape(t *testing.T) {
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: t.TempDir()}, "artifacts")
	require.NoError(t, err)
	_, err = conn.Create(context.Background(), "", "../../etc/passwd")
	assert.Error(t, err)
}

func TestListObjectsAndDelete(t *testing.T) {
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{BaseDir: t.TempDir(), BucketName: "r"}, "artifacts")
	require.NoError(t, err)
	ctx := context.Background()
	for _, n := range []string{"a.rpt", "a.k.1.rpt", "b.rpt"} {
		require.NoError(t, conn.Upload(ctx, "", n, strings.NewReader(n)))
	}

	var listed []string
	require.NoError(t, conn.ListObjects(ctx, "", "a.", func(name string) error {
		listed = append(listed, name)
		return nil
	}))
	assert.ElementsMatch(t, []string{"a.rpt", "a.k.1.rpt"}, listed)

	require.NoError(t, conn.DeleteObject(ctx, "", "a.rpt"))
	require.NoError(t, conn.DeleteObject(ctx, "", "a.rpt"), "deleting a missing object is not an error")
	ok, err := conn.Exists(ctx, "", "a.rpt")
	require.NoError(t, err)
	assert.False(t, ok)
}
