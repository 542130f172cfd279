package shelfsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// doRequest sends body as JSON. A non-empty token adds a bearer header.
func (c *Client) doRequest(
	ctx context.Context,
	method, path, token string,
	body any,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// call performs a request and decodes the envelope's data into T.
func call[T any](
	ctx context.Context,
	c *Client,
	op operation,
	method, path, token string,
	body any,
) (T, error) {
	var zero T

	resp, err := c.doRequest(ctx, method, path, token, body)
	if err != nil {
		return zero, op.fail(0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, op.fail(resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err))
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, parseErrorResponse(op, resp, raw)
	}
	if decodeErr != nil {
		return zero, op.fail(resp.StatusCode, "", fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if env.Success != nil && !*env.Success {
		return zero, op.fail(resp.StatusCode, env.Message, errMalformedResponse)
	}
	return env.Data, nil
}

// parseErrorResponse reads `{success:false, message}` from a non-2xx body,
// falling back to the status text when the body is not JSON.
func parseErrorResponse(op operation, resp *http.Response, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		if msg != "" {
			return op.fail(resp.StatusCode, msg, fmt.Errorf("HTTP %d", resp.StatusCode))
		}
	}

	return op.fail(resp.StatusCode, "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}
