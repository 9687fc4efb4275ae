// Package verifier talks to the external payment-slip verification API.
// Calls are bounded by a timeout, traced through otelhttp and guarded by a
// circuit breaker so a struggling provider fails fast instead of piling up
// checkout requests.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrUnavailable wraps transport failures, timeouts, 5xx responses and an
// open circuit.  The slip itself was not judged.
var ErrUnavailable = errors.New("slip verifier unavailable")

// errCallerGone marks calls abandoned by the caller.  The breaker does not
// count them against the provider.
var errCallerGone = errors.New("caller gone")

// Result is the verifier's judgement of one slip.
type Result struct {
	Success     bool
	AmountCents int64
	Reference   string // bank transaction reference, empty when not reported
	Message     string // provider message on rejection
	Payload     json.RawMessage
}

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is an HTTP client for the slip verification API.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[Result]
}

// NewClient builds a Client with an instrumented transport.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
			Name:        "slip-verifier",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errCallerGone)
			},
		}),
	}
}

// apiResponse mirrors the provider's JSON envelope.
type apiResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Amount   float64 `json:"amount"`
		TransRef string  `json:"transRef"`
	} `json:"data"`
}

// Verify uploads the slip image and returns the provider's judgement.  A
// rejected slip is a successful call with Result.Success false; only
// failures to obtain a judgement return an error wrapping ErrUnavailable.
func (c *Client) Verify(ctx context.Context, image []byte, filename string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.breaker.Execute(func() (Result, error) {
		r, err := c.do(callCtx, image, filename)
		if err != nil && ctx.Err() != nil {
			// Our own timeout leaves ctx alive and still counts.
			return Result{}, fmt.Errorf("%w: %w", errCallerGone, ctx.Err())
		}
		return r, err
	})
	if err != nil {
		if errors.Is(err, errCallerGone) {
			return Result{}, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Result{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, image []byte, filename string) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename == "" {
		filename = "slip.jpg"
	}
	fw, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return Result{}, err
	}
	if _, err := fw.Write(image); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify-slip", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	out := Result{
		Success: ar.Success && resp.StatusCode < 300,
		Message: ar.Message,
		Payload: json.RawMessage(raw),
	}
	if out.Success {
		out.AmountCents = int64(math.Round(ar.Data.Amount * 100))
		out.Reference = strings.TrimSpace(ar.Data.TransRef)
	}
	return out, nil
}
