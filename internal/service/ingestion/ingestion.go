// Package ingestion stages source files as Parquet in the bronze bucket.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"lake-wap/internal/domain"
)

var _ domain.DatasetIngester = (*Service)(nil)

// SourceSuffix selects the files picked up from a dataset folder.
const SourceSuffix = ".csv"

// Service runs the per-dataset ingestion flow: list the dataset folder, fetch
// each file, keep the raw copy in the landing bucket, convert it to Parquet and
// upload the result to the bronze bucket.
type Service struct {
	source    domain.FileSource
	landing   domain.ObjectStore
	bronze    domain.ObjectStore
	converter domain.Converter
	tempDir   string
	logger    *slog.Logger
}

// NewService creates an ingestion Service. tempDir may be empty to use the OS default.
func NewService(
	source domain.FileSource,
	landing domain.ObjectStore,
	bronze domain.ObjectStore,
	converter domain.Converter,
	tempDir string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:    source,
		landing:   landing,
		bronze:    bronze,
		converter: converter,
		tempDir:   tempDir,
		logger:    logger,
	}
}

// LandingKey is the landing object key of a raw source file.
func LandingKey(dataset, fileName string) string {
	return path.Join("raw", dataset, fileName)
}

// BronzeKey is the bronze object key of the Parquet file converted from fileName.
func BronzeKey(dataset, fileName string) string {
	return path.Join(dataset, parquetName(fileName))
}

// Ingest stages every source file of dataset. Any file failure fails the dataset.
// An empty folder is not an error: the returned StagedDataset has no files and
// registration runs against whatever is already staged.
func (s *Service) Ingest(ctx context.Context, dataset, folderID string) (*domain.StagedDataset, error) {
	log := s.logger.With("dataset", dataset)
	staged := &domain.StagedDataset{
		Dataset: dataset,
		Bucket:  s.bronze.Bucket(),
		Prefix:  path.Join(s.bronze.Prefix(), dataset),
	}

	files, err := s.source.List(ctx, folderID, SourceSuffix)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", dataset, err)
	}
	if len(files) == 0 {
		log.Warn("no source files found", "folder_id", folderID)
		return staged, nil
	}

	dir, err := os.MkdirTemp(s.tempDir, "wap-"+dataset+"-")
	if err != nil {
		return nil, fmt.Errorf("ingest %s: create temp dir: %w", dataset, err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	for _, f := range files {
		key, err := s.ingestFile(ctx, log, dataset, dir, f)
		if err != nil {
			return nil, fmt.Errorf("ingest %s: file %s: %w", dataset, f.Name, err)
		}
		staged.Files = append(staged.Files, key)
	}

	log.Info("dataset staged", "files", len(staged.Files), "location", staged.Location(s.bronze.Scheme()))
	return staged, nil
}

func (s *Service) ingestFile(ctx context.Context, log *slog.Logger, dataset, dir string, f domain.SourceFile) (string, error) {
	name := safeName(f.Name)
	if name == "" {
		return "", domain.ErrValidation("source file %s has no usable name", f.ID)
	}

	csvPath := filepath.Join(dir, name)
	if err := s.fetch(ctx, f.ID, csvPath); err != nil {
		return "", err
	}

	landingKey := LandingKey(dataset, name)
	exists, err := s.landing.Exists(ctx, landingKey)
	if err != nil {
		return "", err
	}
	if exists {
		log.Debug("landing object exists, skipping upload", "key", landingKey)
	} else if err := s.landing.Upload(ctx, landingKey, csvPath); err != nil {
		return "", err
	}

	parquetPath := filepath.Join(dir, parquetName(name))
	if err := s.converter.Convert(ctx, csvPath, parquetPath); err != nil {
		return "", err
	}
	rows, err := s.converter.Validate(ctx, parquetPath)
	if err != nil {
		return "", err
	}

	bronzeKey := BronzeKey(dataset, name)
	if err := s.bronze.Upload(ctx, bronzeKey, parquetPath); err != nil {
		return "", err
	}
	log.Info("file staged", "file", name, "rows", rows, "key", bronzeKey)
	return bronzeKey, nil
}

func (s *Service) fetch(ctx context.Context, fileID, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if err := s.source.Fetch(ctx, fileID, out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

// safeName strips any directory part of a source file name.
func safeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func parquetName(fileName string) string {
	return strings.TrimSuffix(fileName, path.Ext(fileName)) + ".parquet"
}
