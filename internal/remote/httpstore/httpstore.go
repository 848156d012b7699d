// Package httpstore implements remote.Store against the tutorsync server's
// HTTP API.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devsusana/tutorsync/internal/remote"
)

// Client talks to one tutorsync server. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a Client for the server at baseURL, authenticating with the
// bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadRequest struct {
	DocID            string         `json:"doc_id,omitempty"`
	Data             map[string]any `json:"data"`
	IdempotencyKey   string         `json:"idempotency_key,omitempty"`
	IdempotencyField string         `json:"idempotency_field,omitempty"`
}

type uploadResponse struct {
	ID             string `json:"id"`
	ServerModified int64  `json:"server_modified"`
}

// Upload implements remote.Store.
func (c *Client) Upload(ctx context.Context, collection, docID string, data map[string]any, idempotencyKey, idempotencyField string) (string, error) {
	body := uploadRequest{
		DocID:            docID,
		Data:             data,
		IdempotencyKey:   idempotencyKey,
		IdempotencyField: idempotencyField,
	}
	var resp uploadResponse
	if err := c.do(ctx, http.MethodPost, "/v1/docs/"+collection, nil, body, &resp); err != nil {
		return "", fmt.Errorf("upload to %s: %w", collection, err)
	}
	return resp.ID, nil
}

// Delete implements remote.Store.
func (c *Client) Delete(ctx context.Context, docPath string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/docs/"+docPath, nil, nil, nil); err != nil {
		return fmt.Errorf("delete %s: %w", docPath, err)
	}
	return nil
}

type listResponse struct {
	Documents []remote.Document `json:"documents"`
}

// DownloadCollection implements remote.Store.
func (c *Client) DownloadCollection(ctx context.Context, collection string, sinceTS int64) ([]remote.Document, error) {
	query := url.Values{}
	if sinceTS > 0 {
		query.Set("since", strconv.FormatInt(sinceTS, 10))
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/v1/docs/"+collection, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("download %s: %w", collection, err)
	}
	return resp.Documents, nil
}

type purgeRequest struct {
	RootCollection string `json:"root_collection"`
	RootID         string `json:"root_id"`
}

// DeleteSubtree implements remote.Store.
func (c *Client) DeleteSubtree(ctx context.Context, rootCollection, rootID string) error {
	body := purgeRequest{RootCollection: rootCollection, RootID: rootID}
	if err := c.do(ctx, http.MethodPost, "/v1/purge", nil, body, nil); err != nil {
		return fmt.Errorf("purge %s/%s: %w", rootCollection, rootID, err)
	}
	return nil
}

// do runs one request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return remote.ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("server returned %s: %s", resp.Status, readError(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// readError pulls the error field out of a JSON error body, falling back
// to the raw body.
func readError(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable error body"
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
