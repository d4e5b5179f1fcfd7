package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// Service stores uploaded slide blobs on disk and their metadata in a
// BadgerDB index. Blobs live at uploads/<file_id><ext>; job outputs go under
// uploads/results/<job_id>/.
type Service struct {
	db         *badgerhold.Store
	uploadsDir string
	log        arbor.ILogger
}

// NewService opens the metadata index and prepares the uploads directory.
func NewService(cfg common.StorageConfig) (*Service, error) {
	log := common.GetLogger()

	if cfg.Badger.ResetOnStartup {
		if err := os.RemoveAll(cfg.Badger.Path); err != nil {
			return nil, fmt.Errorf("failed to reset database directory: %w", err)
		}
		log.Debug().Str("path", cfg.Badger.Path).Msg("Database directory reset")
	}
	if err := os.MkdirAll(cfg.Badger.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = cfg.Badger.Path
	options.ValueDir = cfg.Badger.Path
	options.Logger = nil // arbor handles logging

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	log.Debug().Str("path", cfg.Badger.Path).Msg("File index initialized")

	return &Service{
		db:         db,
		uploadsDir: cfg.UploadsDir,
		log:        log,
	}, nil
}

// SaveUpload streams an uploaded blob to disk and indexes its metadata.
func (s *Service) SaveUpload(tenantID, filename, contentType string, r io.Reader) (models.FileRecord, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	id := common.NewFileID()
	path := filepath.Join(s.uploadsDir, id+ext)

	f, err := os.Create(path)
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(path)
		return models.FileRecord{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return models.FileRecord{}, fmt.Errorf("failed to sync upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return models.FileRecord{}, fmt.Errorf("failed to close upload: %w", err)
	}

	record := models.FileRecord{
		ID:          id,
		TenantID:    tenantID,
		Filename:    filename,
		Ext:         ext,
		Path:        path,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.Insert(record.ID, record); err != nil {
		os.Remove(path)
		return models.FileRecord{}, fmt.Errorf("failed to index upload: %w", err)
	}

	s.log.Info().
		Str("file_id", record.ID).
		Str("tenant_id", tenantID).
		Str("filename", filename).
		Int64("size", size).
		Msg("File uploaded")
	return record, nil
}

// Get returns the tenant's file metadata.
func (s *Service) Get(tenantID, fileID string) (models.FileRecord, error) {
	var record models.FileRecord
	if err := s.db.Get(fileID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.FileRecord{}, models.NewError(models.KindNotFound, "file %s not found", fileID)
		}
		return models.FileRecord{}, fmt.Errorf("failed to read file index: %w", err)
	}
	if record.TenantID != tenantID {
		return models.FileRecord{}, models.NewError(models.KindForbidden, "file %s belongs to another tenant", fileID)
	}
	return record, nil
}

// Path returns the blob path of the tenant's file.
func (s *Service) Path(tenantID, fileID string) (string, error) {
	record, err := s.Get(tenantID, fileID)
	if err != nil {
		return "", err
	}
	return record.Path, nil
}

// InputPath resolves a blob path without a tenant check. The executor uses
// it after admission, when ownership was already verified at job creation.
func (s *Service) InputPath(fileID string) (string, error) {
	var record models.FileRecord
	if err := s.db.Get(fileID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return "", models.NewError(models.KindNotFound, "file %s not found", fileID)
		}
		return "", fmt.Errorf("failed to read file index: %w", err)
	}
	return record.Path, nil
}

// ResultsDir returns the job's output directory, creating it if needed.
func (s *Service) ResultsDir(jobID string) (string, error) {
	dir := filepath.Join(s.uploadsDir, "results", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	return dir, nil
}

// RunGC runs one Badger value-log garbage collection cycle. Called from the
// maintenance cron; ErrNoRewrite just means there was nothing to reclaim.
func (s *Service) RunGC() {
	badgerDB := s.db.Badger()
	if err := badgerDB.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		s.log.Warn().Err(err).Msg("Value log GC failed")
	}
}

// Close closes the metadata index.
func (s *Service) Close() error {
	return s.db.Close()
}
