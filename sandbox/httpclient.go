package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/drydocklabs/drydock/errors"
	"github.com/drydocklabs/drydock/internal/httpclient"
)

// Provider APIs meter aggressively; the client self-limits so a burst of
// session launches or a tight status poll never trips provider throttling.
const (
	requestsPerSecond = 20
	requestBurst      = 40
)

// HTTPClient speaks the provider's REST API: JSON request/response bodies,
// NDJSON for log streaming. Providers commonly run on a private network, so
// the underlying client is created with private-IP blocking disabled.
type HTTPClient struct {
	baseURL string
	token   string
	http    *httpclient.SaferClient
	limiter *rate.Limiter
}

// NewHTTPClient creates a provisioning client against the given base URL.
// Token may be empty for unauthenticated providers (local development).
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	allowPrivate := false
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http: httpclient.NewSaferClientWithOptions(timeout, httpclient.SaferClientOptions{
			BlockPrivateIP: &allowPrivate,
		}),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}

// Create provisions a new environment.
func (c *HTTPClient) Create(ctx context.Context, opts CreateOptions) (Environment, error) {
	var info Info
	if err := c.do(ctx, http.MethodPost, "/v1/sandboxes", opts, &info); err != nil {
		return nil, errors.Wrap(err, "create sandbox")
	}
	return &httpEnvironment{client: c, id: info.ID}, nil
}

// Get returns a handle to an existing environment.
func (c *HTTPClient) Get(ctx context.Context, id string) (Environment, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/v1/sandboxes/"+url.PathEscape(id), nil, &info); err != nil {
		return nil, errors.Wrapf(err, "get sandbox %s", id)
	}
	return &httpEnvironment{client: c, id: info.ID}, nil
}

// List enumerates environments.
func (c *HTTPClient) List(ctx context.Context, filter ListFilter) ([]Info, error) {
	path := "/v1/sandboxes"
	if filter.Status != "" {
		path += "?status=" + url.QueryEscape(string(filter.Status))
	}
	var out struct {
		Sandboxes []Info `json:"sandboxes"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, errors.Wrap(err, "list sandboxes")
	}
	return out.Sandboxes, nil
}

// do issues one JSON round-trip against the provider API.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
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

	if resp.StatusCode == http.StatusNotFound {
		return errors.NewNotFoundError("%s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response body")
		}
	}
	return nil
}

// stream issues a GET whose response body is handed to the caller unclosed.
func (c *HTTPClient) stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp.Body, nil
}

// httpEnvironment is the Environment handle backed by the REST API.
type httpEnvironment struct {
	client *HTTPClient
	id     string
}

func (e *httpEnvironment) ID() string { return e.id }

func (e *httpEnvironment) path(suffix string) string {
	return "/v1/sandboxes/" + url.PathEscape(e.id) + suffix
}

func (e *httpEnvironment) Status(ctx context.Context) (Status, error) {
	var info Info
	if err := e.client.do(ctx, http.MethodGet, e.path(""), nil, &info); err != nil {
		return "", errors.Wrapf(err, "status of sandbox %s", e.id)
	}
	return info.Status, nil
}

func (e *httpEnvironment) RunCommand(ctx context.Context, opts RunOptions) (Command, error) {
	var out struct {
		CommandID string `json:"command_id"`
	}
	if err := e.client.do(ctx, http.MethodPost, e.path("/exec"), opts, &out); err != nil {
		return nil, errors.Wrapf(err, "exec in sandbox %s", e.id)
	}
	return &httpCommand{env: e, id: out.CommandID}, nil
}

func (e *httpEnvironment) Stop(ctx context.Context) error {
	if err := e.client.do(ctx, http.MethodPost, e.path("/stop"), nil, nil); err != nil {
		return errors.Wrapf(err, "stop sandbox %s", e.id)
	}
	return nil
}

func (e *httpEnvironment) ExtendTimeout(ctx context.Context, d time.Duration) error {
	body := map[string]int64{"timeout_ms": d.Milliseconds()}
	if err := e.client.do(ctx, http.MethodPost, e.path("/timeout"), body, nil); err != nil {
		return errors.Wrapf(err, "extend timeout of sandbox %s", e.id)
	}
	return nil
}

func (e *httpEnvironment) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := e.client.do(ctx, http.MethodPost, e.path("/snapshot"), nil, &snap); err != nil {
		return nil, errors.Wrapf(err, "snapshot sandbox %s", e.id)
	}
	return &snap, nil
}

func (e *httpEnvironment) WriteFiles(ctx context.Context, files []File) error {
	body := map[string][]File{"files": files}
	if err := e.client.do(ctx, http.MethodPut, e.path("/files"), body, nil); err != nil {
		return errors.Wrapf(err, "write files to sandbox %s", e.id)
	}
	return nil
}

func (e *httpEnvironment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var out struct {
		Content []byte `json:"content"`
	}
	p := e.path("/files") + "?path=" + url.QueryEscape(path)
	if err := e.client.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, errors.Wrapf(err, "read file %s from sandbox %s", path, e.id)
	}
	return out.Content, nil
}

// httpCommand is the Command handle backed by the REST API.
type httpCommand struct {
	env *httpEnvironment
	id  string
}

func (c *httpCommand) path(suffix string) string {
	return c.env.path(fmt.Sprintf("/commands/%s%s", url.PathEscape(c.id), suffix))
}

func (c *httpCommand) Logs(ctx context.Context) (LogStream, error) {
	body, err := c.env.client.stream(ctx, c.path("/logs"))
	if err != nil {
		return nil, errors.Wrapf(err, "stream logs of command %s", c.id)
	}
	return &ndjsonLogStream{body: body, scanner: bufio.NewScanner(body)}, nil
}

func (c *httpCommand) Wait(ctx context.Context) (*CommandResult, error) {
	var result CommandResult
	if err := c.env.client.do(ctx, http.MethodGet, c.path("/wait"), nil, &result); err != nil {
		return nil, errors.Wrapf(err, "wait for command %s", c.id)
	}
	return &result, nil
}

// ndjsonLogStream decodes one LogChunk per NDJSON line.
type ndjsonLogStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *ndjsonLogStream) Next() (*LogChunk, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk LogChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, errors.Wrap(err, "decode log chunk")
		}
		return &chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *ndjsonLogStream) Close() error {
	return s.body.Close()
}
