package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/bardlex/kristforge/pkg/circuit"
	"github.com/bardlex/kristforge/pkg/errors"
	"github.com/bardlex/kristforge/pkg/retry"
)

// bootstrapTimeout bounds a single bootstrap HTTP request
const bootstrapTimeout = 10 * time.Second

// requestWebsocketURL performs the bootstrap POST against the node and
// returns the websocket endpoint it hands out
func requestWebsocketURL(ctx context.Context, bootstrapURL, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bootstrapURL, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeBootstrap, "bootstrap",
			"failed to build bootstrap request")
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	client := &http.Client{Timeout: bootstrapTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeBootstrap, "bootstrap",
			"bootstrap request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeBootstrap, "bootstrap",
			"failed to read bootstrap response")
	}

	var parsed bootstrapResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeBootstrap, "bootstrap",
			"invalid bootstrap response body")
	}

	if !parsed.OK {
		reason := parsed.Error
		if reason == "" {
			reason = "unknown error"
		}
		// The node answered and said no; retrying will not change its mind
		rejected := errors.New(errors.ErrorTypeBootstrap, "bootstrap",
			fmt.Sprintf("node rejected bootstrap: %s", reason))
		rejected.Retryable = false
		return "", rejected
	}

	return parsed.URL, nil
}

// bootstrap wraps the websocket URL request with retry and the reconnect
// circuit breaker
func bootstrap(ctx context.Context, breaker *circuit.Breaker, bootstrapURL, userAgent string) (string, error) {
	return circuit.ExecuteWithResult(ctx, breaker, func() (string, error) {
		return retry.DoWithResult(ctx, retry.BootstrapConfig(), func() (string, error) {
			return requestWebsocketURL(ctx, bootstrapURL, userAgent)
		})
	})
}
