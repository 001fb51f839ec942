// Package storage persists the daily datasets as Parquet files.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/models"
	"github.com/parquet-go/parquet-go"
)

// Dataset names, also the file name prefixes.
const (
	DatasetMessages    = "yesterday_all_topics"
	DatasetMemberCount = "yesterday_member_count"
	DatasetReport      = "yesterday_report"
)

// ErrDatasetMissing is returned when the file of a dataset does not exist.
var ErrDatasetMissing = errors.New("parquet not found")

// ParquetStore reads and writes dataset files under one directory.
type ParquetStore struct {
	dir string
	log *logger.Logger
}

// NewParquetStore creates a store rooted at dir.
func NewParquetStore(dir string, log *logger.Logger) *ParquetStore {
	if log == nil {
		log = logger.Get()
	}
	return &ParquetStore{dir: dir, log: log}
}

// Dir returns the store directory.
func (s *ParquetStore) Dir() string {
	return s.dir
}

// Path returns the file of dataset for fileLabel (YYYYMMDD).
func (s *ParquetStore) Path(dataset, fileLabel string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.parquet", dataset, fileLabel))
}

// WriteMessages saves the extract rows.
func (s *ParquetStore) WriteMessages(fileLabel string, rows []models.ExtractRow) (string, error) {
	return write(s, DatasetMessages, fileLabel, rows)
}

// WriteMemberCount saves the member count snapshot.
func (s *ParquetStore) WriteMemberCount(fileLabel string, snap models.MemberCountSnapshot) (string, error) {
	return write(s, DatasetMemberCount, fileLabel, []models.MemberCountSnapshot{snap})
}

// WriteReport saves the report rows.
func (s *ParquetStore) WriteReport(fileLabel string, rows []models.ReportRow) (string, error) {
	return write(s, DatasetReport, fileLabel, rows)
}

// ReadMessages loads the extract rows of fileLabel.
func (s *ParquetStore) ReadMessages(fileLabel string) ([]models.ExtractRow, error) {
	return read[models.ExtractRow](s, DatasetMessages, fileLabel)
}

// ReadMemberCount loads the member count snapshots of fileLabel.
func (s *ParquetStore) ReadMemberCount(fileLabel string) ([]models.MemberCountSnapshot, error) {
	return read[models.MemberCountSnapshot](s, DatasetMemberCount, fileLabel)
}

// ReadReport loads the report rows of fileLabel.
func (s *ParquetStore) ReadReport(fileLabel string) ([]models.ReportRow, error) {
	return read[models.ReportRow](s, DatasetReport, fileLabel)
}

// Remove deletes the dataset file of fileLabel. A missing file is not an error.
func (s *ParquetStore) Remove(dataset, fileLabel string) error {
	path := s.Path(dataset, fileLabel)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", dataset, err)
	}
	s.log.Debug().Str("dataset", dataset).Str("path", path).Msg("dataset removed")
	return nil
}

// write replaces the dataset file atomically: rows go to a temp file in the
// same directory which is renamed over the target once complete.
func write[T any](s *ParquetStore, dataset, fileLabel string, rows []T) (string, error) {
	path := s.Path(dataset, fileLabel)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp_"+dataset+"_*.parquet")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := parquet.Write(tmp, rows); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", dataset, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("publish %s: %w", dataset, err)
	}

	s.log.Info().
		Str("dataset", dataset).
		Str("path", path).
		Int("rows", len(rows)).
		Msg("dataset saved")
	return path, nil
}

func read[T any](s *ParquetStore, dataset, fileLabel string) ([]T, error) {
	path := s.Path(dataset, fileLabel)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, path)
		}
		return nil, err
	}

	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
