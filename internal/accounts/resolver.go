// Package accounts locates and loads the list of tracked account identifiers.
package accounts

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/drive"
	"github.com/JakeFAU/follower-snapshot/internal/history"
	"github.com/JakeFAU/follower-snapshot/internal/retry"
)

// UsernameColumn is the header of the column holding account identifiers.
const UsernameColumn = "username"

// ErrMissingColumn is returned when the account list has no username column.
var ErrMissingColumn = errors.New("account list has no username column")

// FileStore is the slice of the cloud store the resolver depends on.
type FileStore interface {
	ListByName(ctx context.Context, name string) ([]drive.File, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Resolver finds files by name and reads the account list.
type Resolver struct {
	store  FileStore
	retry  *retry.Caller
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(store FileStore, caller *retry.Caller, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, retry: caller, logger: logger}
}

// FindFileID returns the ID of the first non-trashed file named name, as ordered by the
// provider. found is false when nothing matches.
func (r *Resolver) FindFileID(ctx context.Context, name string) (string, bool, error) {
	files, err := retry.Do(ctx, r.retry, "find file", func(ctx context.Context) ([]drive.File, error) {
		return r.store.ListByName(ctx, name)
	})
	if err != nil {
		return "", false, err
	}
	if len(files) == 0 {
		r.logger.Info("file not found", zap.String("name", name))
		return "", false, nil
	}
	if len(files) > 1 {
		r.logger.Warn("multiple files share a name; using the first",
			zap.String("name", name),
			zap.Int("matches", len(files)),
			zap.String("file_id", files[0].ID),
		)
	}
	return files[0].ID, true, nil
}

// LoadAccountList downloads the CSV addressed by fileID and returns its username column.
func (r *Resolver) LoadAccountList(ctx context.Context, fileID string) ([]string, error) {
	data, err := retry.Do(ctx, r.retry, "download account list", func(ctx context.Context) ([]byte, error) {
		return r.store.Download(ctx, fileID)
	})
	if err != nil {
		return nil, err
	}
	usernames, err := ParseAccountList(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse account list %s: %w", fileID, err)
	}
	r.logger.Info("account list loaded", zap.String("file_id", fileID), zap.Int("accounts", len(usernames)))
	return usernames, nil
}

// ParseAccountList reads CSV records and returns the username column in order of
// appearance. Blank cells are skipped, duplicates keep their first position and the
// reserved history.DateColumn name is dropped.
func ParseAccountList(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := -1
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if strings.TrimSpace(name) == UsernameColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrMissingColumn
	}

	seen := make(map[string]struct{})
	var usernames []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if col >= len(record) {
			continue
		}
		name := strings.TrimSpace(record[col])
		if name == "" || name == history.DateColumn {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		usernames = append(usernames, name)
	}
	return usernames, nil
}
