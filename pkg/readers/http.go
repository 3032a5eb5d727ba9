package readers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
)

// HTTPFetcher downloads documents with retries and a request rate limit
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	config  config.FetchConfig
	logger  interfaces.Logger
}

// NewHTTPFetcher creates a fetcher from the fetch configuration
func NewHTTPFetcher(cfg config.FetchConfig, log interfaces.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.NewNopLogger()
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &HTTPFetcher{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		config:  cfg,
		logger:  log,
	}
}

// Fetch downloads source. Client errors other than 429 are not retried.
func (hf *HTTPFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	var body []byte

	attempts := hf.config.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			data, err := hf.get(ctx, source)
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(hf.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			hf.logger.Warn("retrying fetch", map[string]interface{}{
				"source":  source,
				"attempt": n + 1,
				"error":   err.Error(),
			})
		}),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, errors.NewFetchError(source, err)
	}
	return body, nil
}

func (hf *HTTPFetcher) get(ctx context.Context, source string) ([]byte, error) {
	if err := hf.limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	resp, err := hf.client.R().
		SetContext(ctx).
		Get(source)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		err := fmt.Errorf("request failed with status %d", status)
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}
	return resp.Body(), nil
}

var _ interfaces.Fetcher = (*HTTPFetcher)(nil)
