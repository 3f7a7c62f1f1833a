package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/follower-snapshot/internal/storage/gcs"
)

const bucket = "archive-bucket"

func openTestStore(t *testing.T, handler http.Handler) *gcs.BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := gcs.Open(context.Background(),
		gcs.Config{Bucket: bucket, Metadata: map[string]string{"source": "follower-snapshot"}},
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	var gotName, gotBody string
	store := openTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", bucket))
		gotName = r.URL.Query().Get("name")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody = string(body)
		fmt.Fprintf(w, `{"name": %q, "bucket": %q}`, gotName, bucket)
	}))

	uri, err := store.PutObject(context.Background(), "/snapshots/2026-10-14/h.xlsx", "application/octet-stream", strings.NewReader("workbook-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "gs://archive-bucket/snapshots/2026-10-14/h.xlsx", uri)
	assert.Equal(t, "snapshots/2026-10-14/h.xlsx", gotName)
	assert.Contains(t, gotBody, "workbook-bytes")
	assert.Contains(t, gotBody, "follower-snapshot")
}

func TestPutObjectError(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := store.PutObject(context.Background(), "a.xlsx", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " / ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: bucket})
	require.Error(t, err)
}
