// Package pipeline runs one follower snapshot: resolve accounts, fetch counts, load the
// history table, append today's row and publish the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/history"
	"github.com/JakeFAU/follower-snapshot/internal/metrics"
)

// Stage names a point in the run's state machine.
type Stage string

// Stages in the order a run passes through them.
const (
	StageStart            Stage = "START"
	StageAccountsResolved Stage = "ACCOUNTS_RESOLVED"
	StageCountsFetched    Stage = "COUNTS_FETCHED"
	StageHistoryLoaded    Stage = "HISTORY_LOADED"
	StageRowAppended      Stage = "ROW_APPENDED"
	StagePublished        Stage = "PUBLISHED"
)

// ErrAccountListNotFound means the configured account list does not exist in the file store.
var ErrAccountListNotFound = errors.New("account list file not found")

// StageError records the last stage a failed run reached.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run halted at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FileFinder looks up a file ID by exact name.
type FileFinder interface {
	FindFileID(ctx context.Context, name string) (string, bool, error)
}

// AccountLoader returns the ordered account identifiers stored in a file.
type AccountLoader interface {
	LoadAccountList(ctx context.Context, fileID string) ([]string, error)
}

// FollowerFetcher returns a follower count, or false when it could not be obtained.
type FollowerFetcher interface {
	FetchFollowerCount(ctx context.Context, accountID string) (int64, bool)
}

// HistoryStore loads and publishes the historical table.
type HistoryStore interface {
	Load(ctx context.Context, fileID string) (history.Table, error)
	Publish(ctx context.Context, t history.Table, fileID, name string, runDate time.Time) (history.PublishResult, error)
}

// Clock supplies the run date.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config names the two files a run works with.
type Config struct {
	AccountsFile string
	HistoryFile  string
}

// Deps are the collaborators of a Pipeline. Logger and IDs may be nil.
type Deps struct {
	Finder   FileFinder
	Accounts AccountLoader
	Fetcher  FollowerFetcher
	History  HistoryStore
	Clock    Clock
	IDs      IDGenerator
	Logger   *zap.Logger
}

// Report summarizes a completed or halted run.
type Report struct {
	RunID     string   `json:"run_id"`
	Date      string   `json:"date"`
	Stage     Stage    `json:"stage"`
	Accounts  []string `json:"accounts"`
	Fetched   int      `json:"fetched"`
	Missing   []string `json:"missing,omitempty"`
	Rows      int      `json:"rows"`
	FileID    string   `json:"file_id,omitempty"`
	Created   bool     `json:"created"`
	MirrorURI string   `json:"mirror_uri,omitempty"`
}

// Pipeline executes snapshot runs.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case cfg.AccountsFile == "":
		return nil, errors.New("accounts file name is required")
	case cfg.HistoryFile == "":
		return nil, errors.New("history file name is required")
	case deps.Finder == nil, deps.Accounts == nil:
		return nil, errors.New("account source is required")
	case deps.Fetcher == nil:
		return nil, errors.New("follower fetcher is required")
	case deps.History == nil:
		return nil, errors.New("history store is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: log}, nil
}

// Run performs one snapshot. On failure the returned Report holds what was gathered
// before the halt and the error is a *StageError.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	now := p.deps.Clock.Now()
	report := Report{
		RunID: p.newRunID(),
		Date:  now.Format(history.DateLayout),
		Stage: StageStart,
	}
	log := p.log.With(zap.String("run_id", report.RunID), zap.String("date", report.Date))
	log.Info("run started")

	err := p.run(ctx, log, now, &report)
	status := metrics.RunStatusSucceeded
	if err != nil {
		status = metrics.RunStatusFailed
		err = &StageError{Stage: report.Stage, Err: err}
		log.Error("run failed", zap.String("stage", string(report.Stage)), zap.Error(err))
	} else {
		log.Info("run finished",
			zap.String("file_id", report.FileID),
			zap.Bool("created", report.Created),
			zap.Int("rows", report.Rows),
			zap.Int("fetched", report.Fetched),
			zap.Strings("missing", report.Missing),
		)
	}
	metrics.ObserveRun(status, time.Since(started), time.Now())
	return report, err
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, now time.Time, report *Report) error {
	accountsID, found, err := p.deps.Finder.FindFileID(ctx, p.cfg.AccountsFile)
	if err != nil {
		return fmt.Errorf("find %s: %w", p.cfg.AccountsFile, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountListNotFound, p.cfg.AccountsFile)
	}
	accounts, err := p.deps.Accounts.LoadAccountList(ctx, accountsID)
	if err != nil {
		return err
	}
	report.Accounts = accounts
	report.Stage = StageAccountsResolved
	log.Info("accounts resolved", zap.Int("accounts", len(accounts)))

	counts := make(map[string]int64, len(accounts))
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok := p.deps.Fetcher.FetchFollowerCount(ctx, account)
		if !ok {
			report.Missing = append(report.Missing, account)
			continue
		}
		counts[account] = n
	}
	report.Fetched = len(counts)
	report.Stage = StageCountsFetched

	historyID, found, err := p.deps.Finder.FindFileID(ctx, p.cfg.HistoryFile)
	if err != nil {
		return fmt.Errorf("find %s: %w", p.cfg.HistoryFile, err)
	}
	if !found {
		historyID = ""
	}
	table, err := p.deps.History.Load(ctx, historyID)
	if err != nil {
		return err
	}
	report.Stage = StageHistoryLoaded

	table = table.AppendRow(history.NewSnapshotRow(now, accounts, counts))
	report.Rows = table.Len()
	report.Stage = StageRowAppended

	result, err := p.deps.History.Publish(ctx, table, historyID, p.cfg.HistoryFile, now)
	if err != nil {
		return err
	}
	report.FileID = result.FileID
	report.Created = result.Created
	report.MirrorURI = result.MirrorURI
	report.Stage = StagePublished
	return nil
}

func (p *Pipeline) newRunID() string {
	if p.deps.IDs == nil {
		return ""
	}
	id, err := p.deps.IDs.NewID()
	if err != nil {
		p.log.Warn("run id unavailable", zap.Error(err))
		return ""
	}
	return id
}
