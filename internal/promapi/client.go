package promapi

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

	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// ErrQueryFailed is returned when the backend answers with a non-success status field.
var ErrQueryFailed = errors.New("prometheus query failed")

// StatusError is returned when the backend answers with a non-2xx HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prometheus query failed with status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of an error response ends up in logs.
const maxErrorBody = 512

// Config represents Prometheus client configuration
type Config struct {
	Timeout time.Duration
}

// Response represents a response from the instant query endpoint.
type Response struct {
	Status    string `json:"status"`
	Data      Data   `json:"data"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Data represents the data section of a Prometheus response
type Data struct {
	ResultType string   `json:"resultType"`
	Result     []Result `json:"result"`
}

// Result is one raw row of a vector result. Value is kept undecoded so that
// a single malformed row can be skipped without failing the whole response.
type Result struct {
	Metric map[string]string `json:"metric"`
	Value  []interface{}     `json:"value"`
}

// Sample is a decoded Result.
type Sample struct {
	Metric    map[string]string
	Timestamp model.Time
	Value     float64
}

// Sample decodes the [timestamp, "value"] pair of the row.
func (r Result) Sample() (Sample, error) {
	if len(r.Value) != 2 {
		return Sample{}, fmt.Errorf("expected [timestamp, value] pair, got %d elements", len(r.Value))
	}

	ts, ok := r.Value[0].(float64)
	if !ok {
		return Sample{}, fmt.Errorf("timestamp is %T, not a number", r.Value[0])
	}

	raw, ok := r.Value[1].(string)
	if !ok {
		return Sample{}, fmt.Errorf("value is %T, not a string", r.Value[1])
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to parse value %q: %w", raw, err)
	}

	return Sample{
		Metric:    r.Metric,
		Timestamp: model.TimeFromUnixNano(int64(ts * float64(time.Second))),
		Value:     value,
	}, nil
}

// Label returns the value of a label and whether it was present and non-empty.
func (r Result) Label(name model.LabelName) (string, bool) {
	v, ok := r.Metric[string(name)]
	return v, ok && v != ""
}

// Client queries a Prometheus-compatible HTTP API. It holds no per-backend
// state, so one Client (and its connection pool) serves every base URL.
type Client struct {
	logger *zap.Logger
	client *http.Client
}

// NewClient creates a new Prometheus client
func NewClient(logger *zap.Logger, config Config) *Client {
	return &Client{
		logger: logger,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Query runs an instant query against baseURL and returns the raw result rows.
func (c *Client) Query(ctx context.Context, baseURL, query string) ([]Result, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/api/v1/query")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prometheus URL: %w", err)
	}

	params := url.Values{}
	params.Set("query", query)
	u.RawQuery = params.Encode()

	c.logger.Debug("Querying Prometheus",
		zap.String("url", u.String()),
		zap.String("query", query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query prometheus: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var promResp Response
	if err := json.NewDecoder(resp.Body).Decode(&promResp); err != nil {
		return nil, fmt.Errorf("failed to decode prometheus response: %w", err)
	}

	if promResp.Status != "success" {
		if promResp.Error != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrQueryFailed, promResp.ErrorType, promResp.Error)
		}
		return nil, fmt.Errorf("%w: status %q", ErrQueryFailed, promResp.Status)
	}

	c.logger.Debug("Prometheus query returned",
		zap.String("query", query),
		zap.String("resultType", promResp.Data.ResultType),
		zap.Int("results", len(promResp.Data.Result)))

	return promResp.Data.Result, nil
}
