package history

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/drive"
	"github.com/JakeFAU/follower-snapshot/internal/retry"
)

// FileStore is the slice of the cloud store the history store depends on.
type FileStore interface {
	MimeType(ctx context.Context, fileID string) (string, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
	Export(ctx context.Context, fileID, mimeType string) ([]byte, error)
	Update(ctx context.Context, fileID, mimeType string, data []byte) error
	Create(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

// BlobStore receives a copy of every published workbook.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Config controls the optional archive mirror.
type Config struct {
	MirrorPrefix string
}

// PublishResult describes a completed upload.
type PublishResult struct {
	FileID    string
	Created   bool
	Bytes     int
	MirrorURI string
}

// Store loads and publishes the historical table.
type Store struct {
	files  FileStore
	retry  *retry.Caller
	mirror BlobStore
	cfg    Config
	logger *zap.Logger
}

// NewStore constructs a Store. mirror may be nil.
func NewStore(files FileStore, caller *retry.Caller, mirror BlobStore, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{files: files, retry: caller, mirror: mirror, cfg: cfg, logger: logger}
}

// Load returns the table stored in fileID, or an empty table when fileID is empty.
// Native Google Sheets are exported to xlsx first.
func (s *Store) Load(ctx context.Context, fileID string) (Table, error) {
	if fileID == "" {
		s.logger.Info("no history file yet; starting an empty table")
		return Table{}, nil
	}

	mimeType, err := retry.Do(ctx, s.retry, "get history metadata", func(ctx context.Context) (string, error) {
		return s.files.MimeType(ctx, fileID)
	})
	if err != nil {
		return Table{}, err
	}

	var data []byte
	if mimeType == drive.MimeTypeGoogleSheet {
		data, err = retry.Do(ctx, s.retry, "export history", func(ctx context.Context) ([]byte, error) {
			return s.files.Export(ctx, fileID, drive.MimeTypeXLSX)
		})
	} else {
		data, err = retry.Do(ctx, s.retry, "download history", func(ctx context.Context) ([]byte, error) {
			return s.files.Download(ctx, fileID)
		})
	}
	if err != nil {
		return Table{}, err
	}

	tbl, err := DecodeXLSX(data)
	if err != nil {
		return Table{}, fmt.Errorf("decode history %s: %w", fileID, err)
	}
	s.logger.Info("history loaded",
		zap.String("file_id", fileID),
		zap.String("mime_type", mimeType),
		zap.Int("rows", tbl.Len()),
		zap.Int("columns", len(tbl.columns)),
	)
	return tbl, nil
}

// Publish serializes t in memory and uploads it with a single call: an in-place update
// when fileID is set, otherwise a create named name. runDate names the archive folder.
func (s *Store) Publish(ctx context.Context, t Table, fileID, name string, runDate time.Time) (PublishResult, error) {
	data, err := EncodeXLSX(t)
	if err != nil {
		return PublishResult{}, fmt.Errorf("encode history: %w", err)
	}

	result := PublishResult{FileID: fileID, Bytes: len(data)}
	if fileID != "" {
		if err := s.files.Update(ctx, fileID, drive.MimeTypeXLSX, data); err != nil {
			return PublishResult{}, fmt.Errorf("publish history: %w", err)
		}
	} else {
		id, err := s.files.Create(ctx, name, drive.MimeTypeXLSX, data)
		if err != nil {
			return PublishResult{}, fmt.Errorf("publish history: %w", err)
		}
		result.FileID = id
		result.Created = true
	}
	s.logger.Info("history published",
		zap.String("file_id", result.FileID),
		zap.Bool("created", result.Created),
		zap.Int("rows", t.Len()),
		zap.Int("bytes", result.Bytes),
	)

	result.MirrorURI = s.mirrorCopy(ctx, name, runDate, data)
	return result, nil
}

func (s *Store) mirrorCopy(ctx context.Context, name string, runDate time.Time, data []byte) string {
	if s.mirror == nil {
		return ""
	}
	objectPath := s.mirrorPath(name, runDate)
	uri, err := s.mirror.PutObject(ctx, objectPath, drive.MimeTypeXLSX, bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("archive copy failed", zap.String("path", objectPath), zap.Error(err))
		return ""
	}
	s.logger.Info("archive copy stored", zap.String("uri", uri))
	return uri
}

func (s *Store) mirrorPath(name string, runDate time.Time) string {
	day := runDate.Format("2006-01-02")
	prefix := strings.Trim(s.cfg.MirrorPrefix, "/")
	if prefix == "" {
		return path.Join(day, name)
	}
	return path.Join(prefix, day, name)
}
