package submission

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

	"github.com/p-n-ai/pai-lesson/internal/lesson/answers"
	"github.com/p-n-ai/pai-lesson/internal/lesson/schema"
)

// ErrNotFound is returned when the remote store has no record.
var ErrNotFound = errors.New("not found")

// Client talks to the remote submission store over HTTP.
type Client struct {
	baseURL string
	userID  string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithUserID sets the learner the client acts for.
func WithUserID(userID string) ClientOption {
	return func(c *Client) {
		c.userID = userID
	}
}

// NewClient creates a client for the store at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitRequest struct {
	Answers answers.Values `json:"answers"`
}

// Submit posts answers for a module.
func (c *Client) Submit(ctx context.Context, moduleID string, values answers.Values) (Result, error) {
	body, err := json.Marshal(submitRequest{Answers: values})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	respBody, status, err := c.do(ctx, http.MethodPost, c.modulePath(moduleID, "assignment-submission"), body)
	if err != nil {
		return Result{}, err
	}

	if status != http.StatusOK {
		var rejected MissingFieldsError
		if json.Unmarshal(respBody, &rejected) == nil && len(rejected.Missing) > 0 {
			return Result{}, &rejected
		}
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, strings.TrimSpace(string(respBody)))
	}

	var res Result
	if err := json.Unmarshal(respBody, &res); err != nil {
		return Result{}, fmt.Errorf("%w: unmarshal response: %v", ErrUnavailable, err)
	}
	return res, nil
}

// MarkModuleComplete records module completion. Repeated calls are harmless.
func (c *Client) MarkModuleComplete(ctx context.Context, moduleID string) error {
	respBody, status, err := c.do(ctx, http.MethodPost, c.modulePath(moduleID, "complete"), nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// FetchRecord returns the learner's prior submission, or ErrNotFound.
func (c *Client) FetchRecord(ctx context.Context, moduleID string) (*Record, error) {
	respBody, status, err := c.do(ctx, http.MethodGet, c.modulePath(moduleID, "assignment-submission"), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}

	var rec Record
	if err := json.Unmarshal(respBody, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// FetchModule returns the module document with its field definitions.
func (c *Client) FetchModule(ctx context.Context, moduleID string) (schema.Document, error) {
	respBody, status, err := c.do(ctx, http.MethodGet, c.modulePath(moduleID, "fields"), nil)
	if err != nil {
		return schema.Document{}, err
	}
	if status == http.StatusNotFound {
		return schema.Document{}, ErrNotFound
	}
	if status != http.StatusOK {
		return schema.Document{}, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}

	var doc schema.Document
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return schema.Document{}, fmt.Errorf("unmarshal module: %w", err)
	}
	return doc, nil
}

func (c *Client) modulePath(moduleID, suffix string) string {
	return c.baseURL + "/modules/" + url.PathEscape(moduleID) + "/" + suffix
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: send request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	return respBody, resp.StatusCode, nil
}
