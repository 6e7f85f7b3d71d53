// Package graph is the HTTP boundary towards the Microsoft Graph REST API.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "client-request-id"

// Request describes one call against the remote.
type Request struct {
	Method string
	// Path is relative to the client base URL, or an absolute URL (pre-authenticated upload targets).
	Path   string
	Header http.Header
	// Body is sent as-is. Ignored when JSON is set.
	Body []byte
	// JSON is marshalled as the request body with an application/json content type.
	JSON interface{}
	// Anonymous requests carry no Authorization header.
	Anonymous bool
	// IgnoreTimeout turns a 504 answer into a plain response instead of an error.
	IgnoreTimeout bool
}

// Response is a fully read remote answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Doer issues a single request.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Client sends authenticated requests through a retrying HTTP client.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	tokens     oauth2.TokenSource
	logger     log.Logger
}

type ignoreTimeoutKey struct{}

// NewClient wires the retry policy into httpClient. tokens may be nil when only anonymous requests are sent.
func NewClient(httpClient *retryablehttp.Client, baseURL string, tokens oauth2.TokenSource, logger log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient.CheckRetry = createCustomRetryFunction(logger)
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		logger:     logger,
	}
}

// NewDefaultClient ...
func NewDefaultClient(tokens oauth2.TokenSource, logger log.Logger) *Client {
	return NewClient(retryhttp.NewClient(logger), DefaultBaseURL, tokens, logger)
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, requestErr error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusGatewayTimeout && ctx.Value(ignoreTimeoutKey{}) != nil {
			return false, nil
		}
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, requestErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, err, requestErr)
		return retry, err
	}
}

// Do sends the request. On a non-2xx answer both the response and an *APIError are returned.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	header := http.Header{}
	for k, v := range r.Header {
		header[k] = append([]string(nil), v...)
	}

	var body interface{}
	if r.JSON != nil {
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = data
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	} else if r.Body != nil {
		body = r.Body
	}

	if r.IgnoreTimeout {
		ctx = context.WithValue(ctx, ignoreTimeoutKey{}, true)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.Method, c.resolve(r.Path), body)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	if !r.Anonymous {
		if c.tokens == nil {
			return nil, fmt.Errorf("no credential configured for %s %s", r.Method, r.Path)
		}
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))
	}

	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("Request dump: %s", string(dump))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	response := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	c.logger.Debugf("Response: HTTP %d, %d bytes", resp.StatusCode, len(data))

	if r.IgnoreTimeout && resp.StatusCode == http.StatusGatewayTimeout {
		c.logger.Warnf("%s %s timed out on the remote side, ignoring", r.Method, r.Path)
		return response, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return response, unwrapError(response)
	}

	return response, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
