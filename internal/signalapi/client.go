// Package signalapi is a thin client for the remote signal service.
package signalapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/signalwatch/internal/models"
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	// KindTransport covers network failures and non-2xx responses.
	KindTransport ErrorKind = iota
	// KindParse means the payload did not match the expected shape.
	KindParse
)

func (k ErrorKind) String() string {
	if k == KindParse {
		return "parse"
	}
	return "transport"
}

// FetchError reports a failed request to the signal service.
type FetchError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int // set for non-2xx responses
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsParse reports whether err is a FetchError caused by a malformed payload.
func IsParse(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindParse
}

// SignalsResponse is the body of the signal list endpoints.
type SignalsResponse struct {
	OK      bool            `json:"ok"`
	Signals []models.Signal `json:"signals"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	OK              bool    `json:"ok"`
	App             *string `json:"app,omitempty"`
	IntervalMinutes *int    `json:"interval_minutes,omitempty"`
	TopN            *int    `json:"top_n,omitempty"`
	Timeframes      *string `json:"timeframes,omitempty"`
}

// Client provides access to the signal service. It performs exactly one
// request per call; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A zero timeout leaves the
// transport default in place.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchOpportunities returns the service's current high-value signals.
func (c *Client) FetchOpportunities(ctx context.Context, limit int) ([]models.Signal, error) {
	return c.fetchSignals(ctx, "fetch opportunities", "/signals/opportunities", limit)
}

// FetchLatest returns the most recently produced signals.
func (c *Client) FetchLatest(ctx context.Context, limit int) ([]models.Signal, error) {
	return c.fetchSignals(ctx, "fetch latest", "/signals/latest", limit)
}

// Health queries the service health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getJSON(ctx, "health", "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) fetchSignals(ctx context.Context, op, path string, limit int) ([]models.Signal, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var resp SignalsResponse
	if err := c.getJSON(ctx, op, path, q, &resp); err != nil {
		return nil, err
	}
	return resp.Signals, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return &FetchError{Kind: KindTransport, Op: op, Err: fmt.Errorf("failed to parse URL: %w", err)}
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &FetchError{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &FetchError{
			Kind:       KindTransport,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Kind: KindParse, Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
