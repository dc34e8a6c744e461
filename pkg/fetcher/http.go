package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// maxBodyBytes bounds how much of a response body fetchers will read.
const maxBodyBytes = 4 << 20

// GetJSON issues a GET request and returns the body of a 2xx response.
// Non-2xx responses are classified with ClassifyStatus.
func GetJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &PermanentError{Reason: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tracks/1 (https://github.com/papercomputeco/tracks)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if err := ClassifyStatus(resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

// ClassifyStatus maps an HTTP status to nil, *TemporaryError or
// *PermanentError. Rate limiting and server errors are temporary and honour
// a Retry-After header given in seconds.
func ClassifyStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TemporaryError{
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Reason:     statusReason(resp, body),
		}
	default:
		return &PermanentError{Reason: statusReason(resp, body)}
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return DefaultRetryAfter
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return DefaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func statusReason(resp *http.Response, body []byte) string {
	const maxSnippet = 200
	snippet := string(body)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, snippet)
}
