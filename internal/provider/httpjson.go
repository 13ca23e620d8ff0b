package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const userAgent = "propline/1.0"

// getJSON performs a GET against a provider endpoint and decodes the JSON
// body into target. Failures map onto the provider error taxonomy: network
// errors and 5xx are temporary UPSTREAM_UNAVAILABLE, 429 is RATE_LIMITED
// with Retry-After honored, other 4xx are permanent.
func getJSON(ctx context.Context, client *http.Client, providerName, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{
			Provider: providerName,
			Code:     ErrCodeInvalidResponse,
			Message:  fmt.Sprintf("failed to build request: %v", err),
			Cause:    err,
		}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &Error{
			Provider:  providerName,
			Code:      ErrCodeUpstreamUnavailable,
			Message:   fmt.Sprintf("request failed: %v", err),
			Temporary: true,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{
			Provider:    providerName,
			Code:        ErrCodeRateLimited,
			Message:     "rate limited by upstream",
			HTTPStatus:  resp.StatusCode,
			RateLimited: true,
			Temporary:   true,
			RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return &Error{
			Provider:   providerName,
			Code:       ErrCodeUpstreamUnavailable,
			Message:    fmt.Sprintf("upstream returned %d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Temporary:  true,
		}
	case resp.StatusCode != http.StatusOK:
		return &Error{
			Provider:   providerName,
			Code:       ErrCodeUpstreamUnavailable,
			Message:    fmt.Sprintf("upstream returned %d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{
			Provider:  providerName,
			Code:      ErrCodeUpstreamUnavailable,
			Message:   fmt.Sprintf("failed to read response: %v", err),
			Temporary: true,
			Cause:     err,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &Error{
			Provider: providerName,
			Code:     ErrCodeInvalidResponse,
			Message:  fmt.Sprintf("failed to decode response: %v", err),
			Cause:    err,
		}
	}

	return nil
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
