package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbd888/fraudgate/internal/circuitbreaker"
	"github.com/mbd888/fraudgate/internal/retry"
	"github.com/mbd888/fraudgate/internal/security"
)

// Config holds the configuration for connecting to the gateway.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8000"
	Timeout time.Duration // zero means 30s
}

// Validate checks the base URL.
func (c Config) Validate() error {
	if _, err := security.ValidateBaseURL(c.APIURL); err != nil {
		return fmt.Errorf("FRAUDGATE_API_URL: %w", err)
	}
	return nil
}

// Transaction is the POST /predict request body.
type Transaction struct {
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	OldBalanceOrg  float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
	IsFlaggedFraud *int    `json:"isFlaggedFraud,omitempty"`
}

// Verdict is the POST /predict response body.
type Verdict struct {
	IsFraud          bool    `json:"is_fraud"`
	FraudProbability float64 `json:"fraud_probability"`
	Confidence       string  `json:"confidence"`
}

// ModelInfo is the GET /model_info response body.
type ModelInfo struct {
	ModelType    string   `json:"model_type"`
	NFeatures    int      `json:"n_features"`
	FeatureNames []string `json:"feature_names"`
	Note         string   `json:"note"`
}

// Client is a pure HTTP client for the gateway API. Transport failures and
// 5xx responses count against a circuit breaker; while it is open, calls fail
// fast with circuitbreaker.ErrOpen.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	retry      retry.Policy
}

// NewClient creates a new gateway client. cfg should already be validated.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := cfg.APIURL
	if u, err := security.ValidateBaseURL(cfg.APIURL); err == nil {
		base = u.String()
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New("gateway", 5, 30*time.Second),
		retry:   retry.DefaultPolicy(),
	}
}

// apiError represents an error response from the gateway.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// statusError is a non-2xx response from the gateway.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.code, e.msg)
}

// upstreamFault reports whether err says the gateway itself is unwell, as
// opposed to it rejecting our input.
func upstreamFault(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// doRequest sends one request through the breaker.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	err := c.breaker.Do(func() error {
		return c.send(ctx, method, path, body, out)
	}, upstreamFault)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("gateway unavailable: %w", err)
	}
	return err
}

// send makes an HTTP request to the gateway and decodes the response into out.
func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		msg := string(respBody)
		if json.Unmarshal(respBody, &apiErr) == nil {
			switch {
			case apiErr.Message != "":
				msg = apiErr.Message
			case apiErr.Detail != "":
				msg = apiErr.Detail
			}
		}
		return &statusError{code: resp.StatusCode, msg: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Predict scores one transaction. It is never retried: every attempt the
// gateway sees advances its step counter.
func (c *Client) Predict(ctx context.Context, tx Transaction) (*Verdict, error) {
	var v Verdict
	if err := c.doRequest(ctx, http.MethodPost, "/predict", tx, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ModelInfo describes the loaded classifier, retrying upstream faults.
func (c *Client) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	var info ModelInfo
	err := retry.Do(ctx, c.retry, func() error {
		err := c.doRequest(ctx, http.MethodGet, "/model_info", nil, &info)
		if err != nil && (!upstreamFault(err) || errors.Is(err, circuitbreaker.ErrOpen)) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}
