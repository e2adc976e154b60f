// Package remote is the HTTP client for the hosted catalogue backend.
//
// The client deliberately performs no retry or backoff of its own: a failed
// call surfaces immediately and the mutation queue's attempt accounting
// decides whether the operation runs again on a later drain.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stockpile-dev/stockpile/internal/model"
)

// Client talks to the remote catalogue service.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// serverError mirrors the backend's error envelope.
type serverError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Insert creates a product remotely and returns the canonical server
// record, including the server-assigned id. The idempotency key lets the
// server deduplicate a create that was already applied before a crash.
func (c *Client) Insert(ctx context.Context, p *model.Product, idempotencyKey string) (*model.Product, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var out model.Product
	if err := c.do(ctx, http.MethodPost, "/api/products", headers, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update overwrites the remote record with the given id and returns the
// canonical server record.
func (c *Client) Update(ctx context.Context, id string, p *model.Product) (*model.Product, error) {
	var out model.Product
	path := "/api/products/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, path, nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the remote record with the given id. A 404 is treated as
// success: the record is gone either way.
func (c *Client) Delete(ctx context.Context, id string) error {
	path := "/api/products/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		var re *RejectionError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}
	return nil
}

// ListByCategory fetches the canonical server records for a category. Used
// to overwrite local optimistic state on refresh.
func (c *Client) ListByCategory(ctx context.Context, category string) ([]*model.Product, error) {
	path := "/api/products"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var out []*model.Product
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping probes the service's health endpoint. Used by the connectivity
// monitor to detect reachability transitions.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// do executes one request. Transport failures come back as *NetworkError,
// non-2xx responses as *RejectionError.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &NetworkError{Op: fmt.Sprintf("%s %s", method, path), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rej := &RejectionError{StatusCode: resp.StatusCode, Message: resp.Status}
		var se serverError
		if err := json.NewDecoder(resp.Body).Decode(&se); err == nil && se.Error.Message != "" {
			rej.Code = se.Error.Code
			rej.Message = se.Error.Message
		}
		return rej
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Op: fmt.Sprintf("%s %s", method, path), Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}

	return nil
}
