package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/config"
	"github.com/JakeFAU/follower-snapshot/internal/history"
	"github.com/JakeFAU/follower-snapshot/internal/pipeline"
)

type stubApp struct {
	p      *pipeline.Pipeline
	closed bool
}

func (s *stubApp) Close() { s.closed = true }
func (s *stubApp) Logger() *zap.Logger { return zap.NewNop() }
func (s *stubApp) Config() config.Config { return config.Config{} }
func (s *stubApp) Pipeline() *pipeline.Pipeline { return s.p }

type stubDeps struct {
	published history.Table
}

func (d *stubDeps) FindFileID(_ context.Context, name string) (string, bool, error) {
	if name == "accounts.csv" {
		return "acc", true, nil
	}
	return "", false, nil
}

func (d *stubDeps) LoadAccountList(context.Context, string) ([]string, error) {
	return []string{"alice"}, nil
}

func (d *stubDeps) FetchFollowerCount(context.Context, string) (int64, bool) { return 42, true }

func (d *stubDeps) Load(context.Context, string) (history.Table, error) { return history.Table{}, nil }

func (d *stubDeps) Publish(_ context.Context, t history.Table, _, _ string, _ time.Time) (history.PublishResult, error) {
	d.published = t
	return history.PublishResult{FileID: "hist", Created: true}, nil
}

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC) }

func withApp(t *testing.T, factory func(context.Context, string) (App, error)) {
	t.Helper()
	prev := newApp
	newApp = factory
	t.Cleanup(func() { newApp = prev })
}

func TestRunCommandPublishes(t *testing.T) {
	deps := &stubDeps{}
	p, err := pipeline.New(
		pipeline.Config{AccountsFile: "accounts.csv", HistoryFile: "history.xlsx"},
		pipeline.Deps{Finder: deps, Accounts: deps, Fetcher: deps, History: deps, Clock: stubClock{}},
	)
	require.NoError(t, err)
	a := &stubApp{p: p}

	var gotConfig string
	withApp(t, func(_ context.Context, cfgFile string) (App, error) {
		gotConfig = cfgFile
		return a, nil
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", "--config", "custom.yaml"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Equal(t, "custom.yaml", gotConfig)
	assert.Contains(t, out.String(), "published hist: 1 rows, 1/1 accounts fetched")
	assert.True(t, a.closed)
	assert.Equal(t, 1, deps.published.Len())
}

func TestRunCommandSurfacesInitErrors(t *testing.T) {
	withApp(t, func(context.Context, string) (App, error) {
		return nil, errors.New("drive credentials are required")
	})

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive credentials are required")
}

func TestResolveAppWithoutInit(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOLLOWERS_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FOLLOWERS_DOTENV_PROBE") })
	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("FOLLOWERS_DOTENV_PROBE"))
}
