package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 60 * time.Second
	basePath       = "/api/v1/knowledge"
)

// Option configures the Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *Client) { c.apiKey = key })
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) { c.httpClient = hc })
}

// Client is the corpora SDK entry point.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// Upload ingests one document with optional custom metadata fields.
func (c *Client) Upload(
	ctx context.Context, filename string, content []byte, custom map[string]string,
) (Document, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Document{}, fmt.Errorf("sdk: build form: %w", err)
	}
	if _, err = fw.Write(content); err != nil {
		return Document{}, fmt.Errorf("sdk: build form: %w", err)
	}
	for k, v := range custom {
		if err = mw.WriteField(k, v); err != nil {
			return Document{}, fmt.Errorf("sdk: build form: %w", err)
		}
	}
	if err = mw.Close(); err != nil {
		return Document{}, fmt.Errorf("sdk: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+basePath+"/upload", &buf)
	if err != nil {
		return Document{}, fmt.Errorf("sdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var doc Document
	if err = c.do(req, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Search runs a similarity search over the caller's documents.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	var resp searchResponse
	if err := c.postJSON(ctx, basePath+"/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GenerationContext assembles a citation-annotated context block.
func (c *Client) GenerationContext(ctx context.Context, req ContextRequest) (KnowledgeContext, error) {
	var kc KnowledgeContext
	if err := c.postJSON(ctx, basePath+"/context", req, &kc); err != nil {
		return KnowledgeContext{}, err
	}
	return kc, nil
}

// Documents lists the caller's documents, newest first.
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	var resp documentListResponse
	if err := c.getJSON(ctx, basePath+"/documents", &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// Document fetches one document's metadata.
func (c *Client) Document(ctx context.Context, id string) (Document, error) {
	var doc Document
	if err := c.getJSON(ctx, basePath+"/documents/"+url.PathEscape(id), &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// DeleteDocument removes a document and its vectors.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+basePath+"/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("sdk: build request: %w", err)
	}
	return c.do(req, nil)
}

// Stats reports document counts and vector store totals.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.getJSON(ctx, basePath+"/stats", &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Usage reports token consumption for "day" or "month".
func (c *Client) Usage(ctx context.Context, period string) (UsageReport, error) {
	path := basePath + "/usage"
	if period != "" {
		path += "?period=" + url.QueryEscape(period)
	}
	var report UsageReport
	if err := c.getJSON(ctx, path, &report); err != nil {
		return UsageReport{}, err
	}
	return report, nil
}

// Health checks server and dependency availability. A degraded report is
// returned without error; transport failures are.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthReport{}, fmt.Errorf("sdk: build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthReport{}, fmt.Errorf("sdk: health: %w", err)
	}
	defer resp.Body.Close()

	var report HealthReport
	if err = json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return HealthReport{}, fmt.Errorf("sdk: decode health response: %w", err)
	}
	return report, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sdk: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("sdk: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sdk: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sdk: decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Code = "unknown"
		apiErr.Message = resp.Status
	}
	return apiErr
}
