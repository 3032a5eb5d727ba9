package readers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
)

func TestHTTPOCREngine(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		if file, _, err := r.FormFile("file"); assert.NoError(t, err) {
			body, _ := io.ReadAll(file)
			assert.Equal(t, "%PDF-1.4", string(body))
		}

		switch r.FormValue("page") {
		case "1":
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(OCRResponse{Text: "#1\n1 | Ann Lee 1500 1510"})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	cfg := config.NewConfig().OCR
	cfg.Enabled = true
	cfg.Endpoint = server.URL
	cfg.APIKey = "secret"
	cfg.MaxElapsed = 5 * time.Second

	engine := NewHTTPOCREngine(cfg, nil)

	text, err := engine.RecognizePage(context.Background(), []byte("%PDF-1.4"), 1)
	require.NoError(t, err)
	assert.Equal(t, "#1\n1 | Ann Lee 1500 1510", text)
	assert.Equal(t, int32(2), calls.Load(), "unavailable service is retried")

	calls.Store(0)
	_, err = engine.RecognizePage(context.Background(), []byte("%PDF-1.4"), 2)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOCRFailed))
	assert.Equal(t, int32(1), calls.Load(), "client errors are permanent")
}
