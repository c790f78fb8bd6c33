// Package remote keeps the local store eventually consistent with an opaque
// remote document store. Local state is the source of truth; everything here
// is best-effort and retried from a durable outbox.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the remote document store: upsert/delete of JSON documents
// keyed by collection and an opaque string id.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// ClientConfig carries the document-store connection settings.
type ClientConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateDocument stores a new document and returns the id the store
// assigned to it.
func (c *Client) CreateDocument(ctx context.Context, collection string, doc map[string]any) (string, error) {
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/collections/%s/documents", collection), doc)
	if err != nil {
		return "", err
	}
	var out createResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create response missing id")
	}
	return out.ID, nil
}

// PutDocument upserts the document under a known id.
func (c *Client) PutDocument(ctx context.Context, collection, id string, doc map[string]any) error {
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/v1/collections/%s/documents/%s", collection, id), doc)
	return err
}

// DeleteDocument removes the document. Deleting an unknown id is not an
// error; the store answers 404 and the mirror is already in the desired
// state.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/collections/%s/documents/%s", collection, id), nil)
	var status *StatusError
	if errors.As(err, &status) && status.Code == http.StatusNotFound {
		return nil
	}
	return err
}

// StatusError reports a non-2xx answer from the document store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store returned %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, doc map[string]any) ([]byte, error) {
	var reqBody io.Reader
	if doc != nil {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call remote store: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
