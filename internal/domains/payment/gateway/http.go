package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider returned HTTP %d", e.StatusCode)
}

// ErrorParser extracts a provider error code and message from a failed
// response body.
type ErrorParser func(body []byte) (code, message string)

// Do sends req, reads the response and decodes a 2xx JSON body into out.
// Non-2xx responses become *APIError, parsed with parse when given.
func Do(client *http.Client, req *http.Request, out interface{}, parse ErrorParser) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: body}
		if parse != nil {
			apiErr.Code, apiErr.Message = parse(body)
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
