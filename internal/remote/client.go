// Package remote talks to the knowledge-capture HTTP API.
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

	"github.com/rcliao/polymath/internal/model"
)

// DefaultTimeout bounds every request so a hung call cannot stall a sub-sync.
const DefaultTimeout = 30 * time.Second

// maxMediaBytes caps a single media download.
const maxMediaBytes = 25 << 20

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("remote resource not found")

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Body)
}

// ArticleDetail is the full article body plus highlight annotations.
type ArticleDetail struct {
	Article    json.RawMessage   `json:"article"`
	Highlights []json.RawMessage `json:"highlights"`
}

// Capture is a user capture submitted to the API.
type Capture struct {
	Kind string `json:"kind"`
	Body string `json:"body"`
}

// API is the subset of the remote service the cache engine depends on.
type API interface {
	// List returns every item of a collection.
	List(ctx context.Context, kind model.Kind) ([]json.RawMessage, error)

	// Get returns one resource payload.
	Get(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error)

	// Article returns the full article body and highlights.
	Article(ctx context.Context, id string) (*ArticleDetail, error)

	// Dashboard returns a named auxiliary snapshot.
	Dashboard(ctx context.Context, name string) (json.RawMessage, error)

	// SubmitCapture posts a queued capture.
	SubmitCapture(ctx context.Context, c Capture) error

	// FetchMedia downloads a media asset by absolute URL.
	FetchMedia(ctx context.Context, rawURL string) ([]byte, string, error)
}

var collectionPaths = map[model.Kind]string{
	model.KindArticle:    "reading",
	model.KindProject:    "projects",
	model.KindMemory:     "memories",
	model.KindList:       "lists",
	model.KindConnection: "connections",
}

// Client implements API over HTTP.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	client    *http.Client
}

var _ API = (*Client)(nil)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
	// HTTPClient overrides the default client; its Timeout is left untouched.
	HTTPClient *http.Client
}

// NewClient creates an API client. A zero Timeout uses DefaultTimeout.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "polymath/1.0"
	}
	return &Client{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		token:     opts.Token,
		userAgent: ua,
		client:    hc,
	}
}

type itemsEnvelope struct {
	Items []json.RawMessage `json:"items"`
}

func (c *Client) List(ctx context.Context, kind model.Kind) ([]json.RawMessage, error) {
	path, ok := collectionPaths[kind]
	if !ok {
		return nil, fmt.Errorf("no collection for kind %q", kind)
	}
	var env itemsEnvelope
	if err := c.getJSON(ctx, "/api/"+path, &env); err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return env.Items, nil
}

func (c *Client) Get(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error) {
	if kind == model.KindArticle {
		detail, err := c.Article(ctx, id)
		if err != nil {
			return nil, err
		}
		return detail.Article, nil
	}
	path, ok := collectionPaths[kind]
	if !ok {
		return nil, fmt.Errorf("no collection for kind %q", kind)
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/"+path+"/"+url.PathEscape(id), &raw); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", path, id, err)
	}
	return raw, nil
}

func (c *Client) Article(ctx context.Context, id string) (*ArticleDetail, error) {
	var detail ArticleDetail
	if err := c.getJSON(ctx, "/api/reading/"+url.PathEscape(id), &detail); err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	if len(detail.Article) == 0 {
		return nil, fmt.Errorf("get article %s: empty article body", id)
	}
	return &detail, nil
}

func (c *Client) Dashboard(ctx context.Context, name string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/dashboard/"+url.PathEscape(name), &raw); err != nil {
		return nil, fmt.Errorf("get dashboard %s: %w", name, err)
	}
	return raw, nil
}

func (c *Client) SubmitCapture(ctx context.Context, capture Capture) error {
	body, err := json.Marshal(capture)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/api/captures", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit capture: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("submit capture: %w", err)
	}
	return nil
}

func (c *Client) FetchMedia(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	// Media hosts never receive the API token.
	req.Header.Del("Authorization")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media %s exceeds %d bytes", rawURL, maxMediaBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// ItemID extracts the "id" field of an item, accepting string or numeric ids.
func ItemID(item json.RawMessage) (string, error) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(item, &probe); err != nil {
		return "", fmt.Errorf("decode item: %w", err)
	}
	if len(probe.ID) == 0 || string(probe.ID) == "null" {
		return "", errors.New("item has no id")
	}
	var s string
	if err := json.Unmarshal(probe.ID, &s); err == nil {
		if s == "" {
			return "", errors.New("item has empty id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(probe.ID, &n); err != nil {
		return "", fmt.Errorf("unsupported id %s", probe.ID)
	}
	return n.String(), nil
}
