package readers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
)

// OCRResponse is the body returned by the OCR service
type OCRResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// HTTPOCREngine sends PDF pages to an OCR service. The service receives the
// document as a multipart upload together with the page to render.
type HTTPOCREngine struct {
	client *resty.Client
	config config.OCRConfig
	logger interfaces.Logger
}

// NewHTTPOCREngine creates an OCR client for cfg.Endpoint
func NewHTTPOCREngine(cfg config.OCRConfig, log interfaces.Logger) *HTTPOCREngine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	client := resty.New()
	client.SetTimeout(60 * time.Second)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPOCREngine{client: client, config: cfg, logger: log}
}

// RecognizePage returns the recognized text of one page
func (oe *HTTPOCREngine) RecognizePage(ctx context.Context, document []byte, page int) (string, error) {
	var text string

	operation := func() error {
		result, err := oe.recognize(ctx, document, page)
		if err != nil {
			return err
		}
		text = result
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	if oe.config.MaxElapsed > 0 {
		policy.MaxElapsedTime = oe.config.MaxElapsed
	}

	notify := func(err error, wait time.Duration) {
		oe.logger.Debug("retrying OCR request", map[string]interface{}{
			"page":  page,
			"wait":  wait.String(),
			"error": err.Error(),
		})
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return "", errors.NewOCRError(page, err)
	}
	return text, nil
}

func (oe *HTTPOCREngine) recognize(ctx context.Context, document []byte, page int) (string, error) {
	resp, err := oe.client.R().
		SetContext(ctx).
		SetFileReader("file", "document.pdf", bytes.NewReader(document)).
		SetFormData(map[string]string{
			"page":     strconv.Itoa(page),
			"language": oe.config.Language,
			"dpi":      strconv.Itoa(oe.config.DPI),
		}).
		SetResult(&OCRResponse{}).
		Post(oe.config.Endpoint)
	if err != nil {
		return "", fmt.Errorf("OCR request failed: %w", err)
	}

	status := resp.StatusCode()
	if status != http.StatusOK {
		err := fmt.Errorf("OCR service returned status %d: %s", status, resp.String())
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	result, ok := resp.Result().(*OCRResponse)
	if !ok || result == nil {
		return "", backoff.Permanent(fmt.Errorf("invalid OCR response format"))
	}
	return result.Text, nil
}

var _ interfaces.OCREngine = (*HTTPOCREngine)(nil)
