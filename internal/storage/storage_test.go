package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/report_abc.pdf", ReportKey("abc"))
}

func TestCleanKey(t *testing.T) {
	k, err := cleanKey("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", k)

	_, err = cleanKey("  ")
	assert.Error(t, err)
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := store.Put(ctx, ReportKey("abc"), []byte("%PDF-1.3"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "reports/report_abc.pdf", loc)
	assert.FileExists(t, filepath.Join(dir, "reports", "report_abc.pdf"))

	ok, err := store.Exists(ctx, loc)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Get(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3"), data)

	ok, err = store.Exists(ctx, "reports/missing.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "reports/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	// временные файлы не остаются
	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type fakeObjects struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeObjects) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[key] = data
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjects) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if _, ok := f.objects[key]; !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	return minio.ObjectInfo{Key: key}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, _, key string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return io.NopCloser(errReader{minio.ErrorResponse{Code: "NoSuchKey"}}), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestS3Store(t *testing.T) {
	api := &fakeObjects{objects: map[string][]byte{}}
	store := &S3Store{api: api, bucket: "reports"}
	ctx := context.Background()

	loc, err := store.Put(ctx, "/reports/report_x.pdf", []byte("pdf"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "reports/report_x.pdf", loc)

	ok, err := store.Exists(ctx, loc)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Get(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), data)

	ok, err = store.Exists(ctx, "reports/none.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "reports/none.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	api.putErr = errors.New("denied")
	_, err = store.Put(ctx, "k", []byte("x"), "")
	assert.ErrorContains(t, err, "denied")
}
