// Package drive adapts the Google Drive v3 API to the small file surface the pipeline needs.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// MIME types understood by the store.
const (
	MimeTypeGoogleSheet = "application/vnd.google-apps.spreadsheet"
	MimeTypeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeTypeCSV         = "text/csv"
)

// Config captures the parameters required to connect to Drive.
type Config struct {
	// CredentialsJSON is a service account key. Takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
	// Endpoint overrides the API base path (tests, proxies).
	Endpoint string
}

// File is the subset of Drive file metadata the pipeline consumes.
type File struct {
	ID       string
	Name     string
	MimeType string
}

// Store performs file operations against one Drive account.
type Store struct {
	files *drivev3.FilesService
}

// New builds a Store authenticated with the configured service account.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, fmt.Errorf("drive credentials are required")
	}
	opts = append(opts, option.WithScopes(drivev3.DriveScope))
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return NewWithOptions(ctx, opts...)
}

// NewWithOptions builds a Store from raw client options.
func NewWithOptions(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Store{files: svc.Files}, nil
}

// ListByName returns non-trashed files whose name equals name, in provider order.
func (s *Store) ListByName(ctx context.Context, name string) ([]File, error) {
	query := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	list, err := s.files.List().
		Q(query).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list files named %q: %w", name, err)
	}
	files := make([]File, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, File{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
	}
	return files, nil
}

// MimeType returns the MIME type of the file addressed by fileID.
func (s *Store) MimeType(ctx context.Context, fileID string) (string, error) {
	f, err := s.files.Get(fileID).Fields("id, mimeType").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get file %s: %w", fileID, err)
	}
	return f.MimeType, nil
}

// Download returns the raw content of a binary file.
func (s *Store) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := s.files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return readBody(resp.Body)
}

// Export converts a native Google document to mimeType and returns the bytes.
func (s *Store) Export(ctx context.Context, fileID, mimeType string) ([]byte, error) {
	resp, err := s.files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("export file %s as %s: %w", fileID, mimeType, err)
	}
	return readBody(resp.Body)
}

// Update replaces the content of fileID with data in a single upload.
func (s *Store) Update(ctx context.Context, fileID, mimeType string, data []byte) error {
	_, err := s.files.Update(fileID, &drivev3.File{}).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update file %s: %w", fileID, err)
	}
	return nil
}

// Create uploads data as a new file called name and returns its ID.
func (s *Store) Create(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	f, err := s.files.Create(&drivev3.File{Name: name, MimeType: mimeType}).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create file %q: %w", name, err)
	}
	return f.Id, nil
}

func readBody(body io.ReadCloser) ([]byte, error) {
	defer body.Close() //nolint:errcheck // read-only body
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read file content: %w", err)
	}
	return data, nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
