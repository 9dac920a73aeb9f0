package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/util"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

const providerName = "apify"

type ApifyConfig struct {
	Token   string
	BaseURL string
	ActorID string
}

// ApifyClient drives the TikTok scraper actor through the Apify REST API.
type ApifyClient struct {
	httpClient *http.Client
	cfg        ApifyConfig
	breaker    *util.CircuitBreaker
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewApifyClient(httpClient *http.Client, cfg ApifyConfig, logger *zap.Logger) *ApifyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.ScrapeConfig.RequestTimeout}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.ApifyConfig.BaseURL
	}
	if cfg.ActorID == "" {
		cfg.ActorID = constants.ApifyConfig.ActorID
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &ApifyClient{
		httpClient: httpClient,
		cfg:        cfg,
		breaker: util.NewCircuitBreaker(
			providerName,
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			constants.CircuitBreakerConfig.HealthCheckInterval,
			nil,
			logger,
		),
		logger: logger,
		sleep:  sleepContext,
	}
}

type runEnvelope struct {
	Data struct {
		ID     string    `json:"id"`
		Status JobStatus `json:"status"`
	} `json:"data"`
}

type submitInput struct {
	MaxItems       int      `json:"maxItems"`
	Usernames      []string `json:"usernames"`
	ResultsPerPage int      `json:"resultsPerPage"`
}

// Submit starts one actor run for the batch and returns its run id.
func (c *ApifyClient) Submit(ctx context.Context, usernames []string, resultsPerUser int) (string, error) {
	if c.cfg.Token == "" {
		return "", errors.NewConfigError("APIFY_TOKEN is missing", "APIFY_TOKEN")
	}

	body, err := json.Marshal(submitInput{
		MaxItems:       len(usernames)*resultsPerUser + constants.ScrapeConfig.MaxItemsPadding,
		Usernames:      usernames,
		ResultsPerPage: resultsPerUser,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode actor input: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/acts/%s/runs", c.cfg.ActorID), body)
	if err != nil {
		return "", err
	}

	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Data.ID == "" {
		return "", errors.NewProviderError("Apify start returned no run id", providerName, "", "", err)
	}

	c.logger.Info("Apify run started",
		zap.String("run_id", env.Data.ID),
		zap.Int("usernames", len(usernames)),
		zap.Int("results_per_user", resultsPerUser),
	)
	return env.Data.ID, nil
}

func (c *ApifyClient) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	raw, err := c.do(ctx, http.MethodGet, "/actor-runs/"+jobID, nil)
	if err != nil {
		return "", err
	}

	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", errors.NewProviderError("Apify status response is malformed", providerName, jobID, "", err)
	}
	return env.Data.Status, nil
}

func (c *ApifyClient) Fetch(ctx context.Context, jobID string) ([]RawItem, error) {
	raw, err := c.do(ctx, http.MethodGet, "/actor-runs/"+jobID+"/dataset/items?format=json", nil)
	if err != nil {
		return nil, err
	}

	var items []RawItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.NewProviderError("Apify dataset is malformed", providerName, jobID, "", err)
	}
	return items, nil
}

// do performs one API call with retries on transport errors, 429 and 5xx.
func (c *ApifyClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if !c.breaker.CanExecute() {
		return nil, errors.NewProviderError("Apify circuit breaker open", providerName, "", "", nil)
	}

	reqURL := c.cfg.BaseURL + path
	var lastErr error

	for attempt := 0; attempt < constants.RetryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, computeDelay(attempt-1)); err != nil {
				return nil, errors.NewProviderError("Apify request cancelled", providerName, "", "", err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build apify request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.breaker.RecordFailure(0)
			c.logger.Warn("Apify request failed, retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited: %s", resp.Status)
			c.breaker.RecordFailure(constants.CircuitBreakerConfig.RateLimitTimeout)
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			c.breaker.RecordFailure(0)
			continue
		case resp.StatusCode >= 400:
			return nil, errors.NewProviderError(
				fmt.Sprintf("Apify request failed: %s", resp.Status),
				providerName, "", "", fmt.Errorf("%s", util.TruncateString(string(data), 300)),
			)
		}

		c.breaker.RecordSuccess()
		return data, nil
	}

	return nil, errors.NewProviderError("Apify request failed", providerName, "", "", lastErr)
}

func computeDelay(attempt int) time.Duration {
	base := constants.RetryConfig.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	jitter := time.Duration(rand.Float64() * float64(constants.RetryConfig.Jitter))
	return base + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
