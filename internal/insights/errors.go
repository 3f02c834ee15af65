package insights

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration is returned when the analysis API credential is
	// missing. It is never retried.
	ErrConfiguration = errors.New("analysis API key not configured")

	// ErrNoData is returned for an empty telemetry batch.
	ErrNoData = errors.New("no vehicle data available for analysis")

	// ErrRateLimitExceeded is returned once every attempt was answered
	// with 429.
	ErrRateLimitExceeded = errors.New("rate limit exceeded after retries")

	// ErrRequestFailed wraps the last transport or non-2xx error once
	// attempts are exhausted.
	ErrRequestFailed = errors.New("analysis request failed")

	// ErrNoAnalysisResult is returned when the API answered without the
	// structured tool call.
	ErrNoAnalysisResult = errors.New("no analysis results received")
)

// APIError is a non-2xx answer from the analysis API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed (%d): %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err carries a 429 from the API.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
