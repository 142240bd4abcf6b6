package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lake-wap/internal/domain"
	"lake-wap/internal/testutil"
)

type fixture struct {
	source    *testutil.MockFileSource
	landing   *testutil.MockObjectStore
	bronze    *testutil.MockObjectStore
	converter *testutil.MockConverter
	svc       *Service
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	f := &fixture{
		source: &testutil.MockFileSource{Files: map[string]string{}},
		landing: &testutil.MockObjectStore{
			BucketName: "mvp-landing",
		},
		bronze: &testutil.MockObjectStore{
			BucketName: "mvp-bronze",
		},
		converter: &testutil.MockConverter{
			ConvertFn: func(_ context.Context, src, dst string) error {
				b, err := os.ReadFile(src)
				if err != nil {
					return err
				}
				return os.WriteFile(dst, b, 0o600)
			},
			ValidateFn: func(context.Context, string) (int64, error) { return 2, nil },
		},
	}
	var listed []domain.SourceFile
	for id, body := range files {
		f.source.Files[id] = body
		listed = append(listed, domain.SourceFile{ID: id, Name: id + ".csv"})
	}
	f.source.ListFn = func(_ context.Context, folderID, suffix string) ([]domain.SourceFile, error) {
		assert.Equal(t, "folder-1", folderID)
		assert.Equal(t, ".csv", suffix)
		return listed, nil
	}
	f.svc = NewService(f.source, f.landing, f.bronze, f.converter, t.TempDir(), slog.New(slog.DiscardHandler))
	return f
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "raw/clima/2025-01.csv", LandingKey("clima", "2025-01.csv"))
	assert.Equal(t, "clima/2025-01.parquet", BronzeKey("clima", "2025-01.csv"))
	assert.Equal(t, "clima/noext.parquet", BronzeKey("clima", "noext"))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a.csv", safeName("a.csv"))
	assert.Equal(t, "a.csv", safeName("../../etc/a.csv"))
	assert.Equal(t, "a.csv", safeName(`dir\a.csv`))
	assert.Equal(t, "", safeName(".."))
}

func TestIngest_HappyPath(t *testing.T) {
	f := newFixture(t, map[string]string{"2025-01": "a,b\n1,2\n"})

	staged, err := f.svc.Ingest(context.Background(), "clima", "folder-1")
	require.NoError(t, err)

	assert.Equal(t, "clima", staged.Dataset)
	assert.Equal(t, "mvp-bronze", staged.Bucket)
	assert.Equal(t, "clima", staged.Prefix)
	assert.Equal(t, []string{"clima/2025-01.parquet"}, staged.Files)
	assert.Equal(t, []string{"raw/clima/2025-01.csv"}, f.landing.Uploads)
	assert.Equal(t, []string{"clima/2025-01.parquet"}, f.bronze.Uploads)
	assert.Equal(t, "gs://mvp-bronze/clima", staged.Location("gs"))
}

func TestIngest_PrefixedBronzeStore(t *testing.T) {
	f := newFixture(t, map[string]string{"f1": "a\n1\n"})
	f.bronze.KeyPrefix = "lake"
	f.bronze.SchemeName = "s3"

	staged, err := f.svc.Ingest(context.Background(), "clima", "folder-1")
	require.NoError(t, err)

	// Keys are relative to the store; the store applies its own prefix.
	assert.Equal(t, []string{"clima/f1.parquet"}, f.bronze.Uploads)
	assert.Equal(t, "mvp-bronze", staged.Bucket)
	assert.Equal(t, "lake/clima", staged.Prefix)
	assert.Equal(t, "s3://mvp-bronze/lake/clima", staged.Location(f.bronze.Scheme()))
}

func TestIngest_EmptyFolderPrefixedBronzeStore(t *testing.T) {
	f := newFixture(t, nil)
	f.bronze.KeyPrefix = "lake"

	staged, err := f.svc.Ingest(context.Background(), "clima", "folder-1")
	require.NoError(t, err)
	assert.Equal(t, "lake/clima", staged.Prefix)
}

func TestIngest_LandingObjectExistsSkipsUpload(t *testing.T) {
	f := newFixture(t, map[string]string{"2025-01": "a\n1\n"})
	f.landing.Objects = map[string]string{"raw/clima/2025-01.csv": "earlier"}

	staged, err := f.svc.Ingest(context.Background(), "clima", "folder-1")
	require.NoError(t, err)
	assert.Empty(t, f.landing.Uploads)
	assert.Len(t, staged.Files, 1, "conversion and bronze upload still happen")
}

func TestIngest_EmptyFolder(t *testing.T) {
	f := newFixture(t, nil)

	staged, err := f.svc.Ingest(context.Background(), "clima", "folder-1")
	require.NoError(t, err)
	assert.Empty(t, staged.Files)
	assert.Equal(t, "clima", staged.Prefix)
	assert.Empty(t, f.bronze.Uploads)
}

func TestIngest_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name: "list",
			setup: func(f *fixture) {
				f.source.ListFn = func(context.Context, string, string) ([]domain.SourceFile, error) { return nil, boom }
			},
		},
		{
			name: "fetch",
			setup: func(f *fixture) {
				f.source.FetchFn = func(context.Context, string, io.Writer) error { return boom }
			},
		},
		{
			name: "landing_upload",
			setup: func(f *fixture) {
				f.landing.UploadFn = func(context.Context, string, string) error { return boom }
			},
		},
		{
			name: "convert",
			setup: func(f *fixture) {
				f.converter.ConvertFn = func(context.Context, string, string) error { return boom }
			},
		},
		{
			name: "validate",
			setup: func(f *fixture) {
				f.converter.ValidateFn = func(context.Context, string) (int64, error) { return 0, boom }
			},
		},
		{
			name: "bronze_upload",
			setup: func(f *fixture) {
				f.bronze.UploadFn = func(context.Context, string, string) error { return boom }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{"2025-01": "a\n1\n"})
			tt.setup(f)

			staged, err := f.svc.Ingest(context.Background(), "clima", "folder-1")
			require.Error(t, err)
			assert.Nil(t, staged)
			assert.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), "ingest clima")
		})
	}
}

func TestIngest_CleansTempDir(t *testing.T) {
	f := newFixture(t, map[string]string{"2025-01": "a\n1\n", "2025-02": "a\n2\n"})
	_, err := f.svc.Ingest(context.Background(), "clima", "folder-1")
	require.NoError(t, err)

	entries, err := os.ReadDir(f.svc.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	matches, _ := filepath.Glob(filepath.Join(f.svc.tempDir, "wap-clima-*"))
	assert.Empty(t, matches)
}
