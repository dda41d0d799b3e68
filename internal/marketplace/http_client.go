package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient talks to the platform's listing API over HTTPS. It implements
// both Client and Taxonomy.
type HTTPClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewHTTPClient constructs a client for the given API base URL and bearer
// token. timeout bounds each request on top of whatever deadline the caller
// puts on ctx; zero means rely on ctx alone.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// errorBody is the platform's error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit posts the listing payload. Network failures map to CodeNetwork and
// 5xx responses to CodeServerError, both retryable; 4xx responses carry the
// platform's own code through unchanged.
func (c *HTTPClient) Submit(ctx context.Context, sub Submission) (*Result, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/listings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Idempotency-Key", sub.SKU)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &APIError{Code: CodeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &APIError{Code: CodeNetwork, Message: err.Error()}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out Result
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		return &out, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{Code: CodeRateLimited, Message: string(raw)}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &APIError{Code: CodeAuthExpired, Message: string(raw)}
	case resp.StatusCode >= 500:
		return nil, &APIError{Code: CodeServerError, Message: "status " + strconv.Itoa(resp.StatusCode)}
	default:
		var eb errorBody
		if err := json.Unmarshal(raw, &eb); err != nil || eb.Code == "" {
			return nil, &APIError{Code: CodeValidationRejected, Message: string(raw)}
		}
		return nil, &APIError{Code: eb.Code, Message: eb.Message}
	}
}

// categoryBody is the platform's category lookup response.
type categoryBody struct {
	ID   int  `json:"id"`
	Leaf bool `json:"leaf"`
}

// IsLeaf asks the platform whether a category accepts listings directly.
func (c *HTTPClient) IsLeaf(ctx context.Context, categoryID int) (bool, error) {
	url := fmt.Sprintf("%s/categories/%d", c.baseURL, categoryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, &APIError{Code: CodeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &APIError{Code: CodeServerError, Message: "status " + strconv.Itoa(resp.StatusCode)}
	}
	var cb categoryBody
	if err := json.NewDecoder(resp.Body).Decode(&cb); err != nil {
		return false, fmt.Errorf("decode category: %w", err)
	}
	return cb.Leaf, nil
}
