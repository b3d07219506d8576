package spond

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes bounds how much of a response we are willing to buffer.
const maxBodyBytes = 16 << 20

// Transport performs the raw HTTP round-trips for the client. The default
// implementation wraps net/http; hosts may inject their own.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
	Post(ctx context.Context, url string, header http.Header, body []byte) ([]byte, error)
}

// StatusError is returned by HTTPTransport for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// IsUnauthorized reports whether err carries a 401 response, which means
// the held token was rejected.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// HTTPTransport is the net/http backed Transport.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given overall request
// timeout. A zero timeout means no client-side limit.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return t.do(ctx, http.MethodGet, url, header, nil)
}

func (t *HTTPTransport) Post(ctx context.Context, url string, header http.Header, body []byte) ([]byte, error) {
	return t.do(ctx, http.MethodPost, url, header, body)
}

func (t *HTTPTransport) do(ctx context.Context, method, url string, header http.Header, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(data)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   snippet,
		}
	}
	return data, nil
}
