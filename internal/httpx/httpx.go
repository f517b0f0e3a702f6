// Package httpx holds the JSON-over-HTTP plumbing shared by the adapters that
// talk to vendor REST APIs directly.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	llmprovider "github.com/haowjy/meridian-relay"
)

// maxResponseBodySize caps buffered response reads (10 MB).
const maxResponseBodySize int64 = 10 * 1024 * 1024

// maxErrorMessage caps raw error bodies echoed into error messages.
const maxErrorMessage = 512

// errorMessagePaths are where vendors put the human-readable error text.
var errorMessagePaths = []string{
	"error.message",
	"0.error.message", // Gemini sometimes wraps errors in an array
	"message",
	"error",
}

// PostJSON sends body to url. Transport failures and non-2xx statuses come
// back as classified llmprovider errors; on success the caller owns the open
// response body.
func PostJSON(ctx context.Context, client *http.Client, provider llmprovider.ProviderID, url string, body []byte, header http.Header) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, llmprovider.WrapTransportError(provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		return nil, llmprovider.NewStatusError(provider, resp.StatusCode, ErrorMessage(errorBody), resp.Header)
	}

	return resp, nil
}

// ReadBody reads and closes a response body, capped at 10 MB.
func ReadBody(provider llmprovider.ProviderID, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, llmprovider.WrapTransportError(provider, fmt.Errorf("failed to read response body: %w", err))
	}
	return body, nil
}

// ErrorMessage extracts the vendor's error text from a JSON error body, or
// returns the (truncated) raw body.
func ErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range errorMessagePaths {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}
	return msg
}

// MergeOptions writes extra fields into a JSON body. Keys are sjson paths
// ("temperature", "generationConfig.topK") applied in sorted order.
func MergeOptions(body []byte, extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return body, nil
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var err error
	for _, key := range keys {
		body, err = sjson.SetBytes(body, key, extra[key])
		if err != nil {
			return nil, &llmprovider.ValidationError{
				Field:  "provider_options." + key,
				Value:  extra[key],
				Reason: err.Error(),
				Err:    llmprovider.ErrInvalidRequest,
			}
		}
	}
	return body, nil
}
