// Package shopify is a thin authenticated REST/GraphQL adapter for the
// Shopify Admin API. It holds no state beyond credentials.
package shopify

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

	"github.com/xelth-com/salonsync/internal/config"
)

// ErrUnexpectedStatus is returned by GraphQL calls answered with non-2xx
var ErrUnexpectedStatus = errors.New("shopify: unexpected status")

// Client issues Admin API calls for one shop
type Client struct {
	BaseURL    string
	Token      string
	HttpClient *http.Client
}

// NewClient creates a client from config. BaseURL overrides the derived
// https://{shop}/admin/api/{version} endpoint.
func NewClient(cfg config.ShopifyConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s/admin/api/%s", cfg.ShopDomain, cfg.APIVersion)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    base,
		Token:      cfg.AccessToken,
		HttpClient: &http.Client{Timeout: timeout},
	}
}

// Response is a REST result. Non-2xx answers are not errors: callers
// inspect OK and Status. Header is passed through untouched.
type Response struct {
	OK     bool
	Status int
	Header http.Header
	Body   json.RawMessage
}

// Decode unmarshals the body into out
func (r *Response) Decode(out interface{}) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("shopify: empty body (status %d)", r.Status)
	}
	return json.Unmarshal(r.Body, out)
}

// REST performs one call against path (e.g. "customers.json"). Only
// transport and encoding failures return an error.
func (c *Client) REST(ctx context.Context, method, path string, query url.Values, body interface{}) (*Response, error) {
	endpoint := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &Response{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Header: resp.Header,
	}
	if len(raw) > 0 && json.Valid(raw) {
		out.Body = raw
	}
	return out, nil
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQL runs query and decodes its data member into out
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	resp, err := c.REST(ctx, http.MethodPost, "graphql.json", nil, graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%w: graphql returned %d", ErrUnexpectedStatus, resp.Status)
	}

	var gr graphqlResponse
	if err := resp.Decode(&gr); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}
	if out == nil || len(gr.Data) == 0 {
		return nil
	}
	return json.Unmarshal(gr.Data, out)
}
