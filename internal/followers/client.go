// Package followers queries the metrics API for per-account follower counts.
package followers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/metrics"
	"github.com/JakeFAU/follower-snapshot/internal/retry"
)

// DefaultBaseURL is the Twitter/X v2 API root.
const DefaultBaseURL = "https://api.twitter.com/2"

const userPath = "/users/by/username/{username}"

// Config controls the metrics API client.
type Config struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	UserAgent   string
}

// Client fetches follower counts one account at a time.
type Client struct {
	http   *resty.Client
	retry  *retry.Caller
	logger *zap.Logger
}

type userResponse struct {
	Data *struct {
		PublicMetrics *struct {
			FollowersCount *int64 `json:"followers_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// New builds a Client. A nil caller disables retries on transport errors.
func New(cfg Config, caller *retry.Caller, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if caller == nil {
		caller = retry.New(1, 0, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetAuthToken(cfg.BearerToken)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{http: client, retry: caller, logger: logger}
}

// FetchFollowerCount returns the follower count for accountID. ok is false when the
// count could not be obtained; the failure is logged and never returned.
func (c *Client) FetchFollowerCount(ctx context.Context, accountID string) (int64, bool) {
	count, ok := c.fetch(ctx, accountID)
	metrics.ObserveFetch(accountID, count, ok)
	return count, ok
}

func (c *Client) fetch(ctx context.Context, accountID string) (int64, bool) {
	logger := c.logger.With(zap.String("username", accountID))

	// Only transport failures are retried. A non-200 answer is final for this run.
	resp, err := retry.Do(ctx, c.retry, "fetch followers", func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetPathParam("username", accountID).
			SetQueryParam("user.fields", "public_metrics").
			Get(userPath)
	})
	if err != nil {
		logger.Error("follower lookup failed", zap.Error(err))
		return 0, false
	}

	logger = logger.With(zap.Int("status", resp.StatusCode()))
	if resp.StatusCode() != http.StatusOK {
		logger.Warn("follower lookup rejected", zap.String("body", resp.String()))
		return 0, false
	}

	count, err := parseFollowersCount(resp.Body())
	if err != nil {
		logger.Error("follower lookup returned an unexpected body", zap.Error(err), zap.String("body", resp.String()))
		return 0, false
	}
	logger.Info("follower count fetched", zap.Int64("followers", count))
	return count, true
}

func parseFollowersCount(body []byte) (int64, error) {
	var payload userResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode user response: %w", err)
	}
	if payload.Data == nil || payload.Data.PublicMetrics == nil || payload.Data.PublicMetrics.FollowersCount == nil {
		return 0, fmt.Errorf("user response has no data.public_metrics.followers_count")
	}
	return *payload.Data.PublicMetrics.FollowersCount, nil
}
