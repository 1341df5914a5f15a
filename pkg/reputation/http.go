// Package reputation talks to the third-party services that score a new
// token: verified source code, holder distribution and an LLM code review.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
)

const maxErrorBody = 512

// doJSON executes req, checks for 200 and decodes the body into out.
func doJSON(client *http.Client, req *http.Request, service string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		metrics.ExternalCalls.WithLabelValues(service, "transport_error").Inc()
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ExternalCalls.WithLabelValues(service, strconv.Itoa(resp.StatusCode)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.ExternalCalls.WithLabelValues(service, "decode_error").Inc()
		return fmt.Errorf("failed to decode %s response: %w", service, err)
	}
	metrics.ExternalCalls.WithLabelValues(service, "ok").Inc()
	return nil
}

func newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
