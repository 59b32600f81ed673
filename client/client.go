package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/inkwell/models"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "INKWELL_HTTP_TIMEOUT"

	// DefaultBaseURL is used when no server address is configured.
	DefaultBaseURL = "http://localhost:4000"
	// BaseURLEnvKey names the environment variable holding the server address.
	BaseURLEnvKey = "INKWELL_API_URL"

	attachmentField = "attachments"
)

// Fallback messages used when the server gives no explanation.
const (
	MsgLoadFailed   = "Failed to load posts."
	MsgSaveFailed   = "Failed to save post."
	MsgDeleteFailed = "Failed to delete post."
	msgRequest      = "Request failed."
)

// File is an attachment to upload with a new post.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// NewPost is the payload of CreatePost.
type NewPost struct {
	Title   string
	Author  string
	Content string
	Files   []File
}

// Limits mirrors GET /api/config.
type Limits struct {
	MaxAttachments int   `json:"maxAttachments"`
	MaxUploadBytes int64 `json:"maxUploadBytes"`
}

// Client is a simple HTTP client for the blog API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client. An empty baseURL falls back to
// INKWELL_API_URL and then DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = strings.TrimSpace(os.Getenv(BaseURLEnvKey))
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// BaseURL returns the server address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks whether the API server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, "", nil, msgRequest)
}

func (c *Client) Limits(ctx context.Context) (Limits, error) {
	var resp Limits
	err := c.do(ctx, http.MethodGet, "/api/config", nil, "", &resp, msgRequest)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (models.PostStats, error) {
	var resp models.PostStats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, "", &resp, msgRequest)
	return resp, err
}

func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	var resp []models.Post
	err := c.do(ctx, http.MethodGet, "/api/posts", nil, "", &resp, MsgLoadFailed)
	return resp, err
}

func (c *Client) GetPost(ctx context.Context, id string) (models.Post, error) {
	var resp models.Post
	err := c.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(id), nil, "", &resp, MsgLoadFailed)
	return resp, err
}

// CreatePost submits a multipart form with the files under "attachments".
func (c *Client) CreatePost(ctx context.Context, p NewPost) (models.Post, error) {
	var resp models.Post
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, kv := range [][2]string{{"title", p.Title}, {"author", p.Author}, {"content", p.Content}} {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return resp, err
		}
	}
	for _, f := range p.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+attachmentField+`"; filename="`+escapeQuotes(f.Name)+`"`)
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return resp, err
		}
		if _, err := io.Copy(part, f.Body); err != nil {
			return resp, err
		}
	}
	if err := mw.Close(); err != nil {
		return resp, err
	}
	err := c.do(ctx, http.MethodPost, "/api/posts", &buf, mw.FormDataContentType(), &resp, MsgSaveFailed)
	return resp, err
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(id), nil, "", nil, MsgDeleteFailed)
}

// Download streams the bytes behind an attachment url into w.
func (c *Client) Download(ctx context.Context, attachmentURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+attachmentURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, decodeError(resp, msgRequest)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any, fallback string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp, fallback)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response, fallback string) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: fallback}
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		if strings.TrimSpace(body.Message) != "" {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
