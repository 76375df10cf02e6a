// Package bridge implements engine.TensorRuntime by talking to an
// out-of-process worker over HTTP/JSON. The worker owns the actual device and
// compute graph; this side only moves requests, tensors and progress.
//
// Worker protocol (all bodies JSON):
//
//	POST   /v1/devices/bind          {"device_index"}           -> {"device_id","name"}
//	POST   /v1/devices/unbind        {"device_id"}
//	POST   /v1/models                {"device_id","locator","format"}
//	                                 -> {"handle","footprint_mb","input_shape","output_shape"}
//	POST   /v1/models/{h}/compile    {"precision"} -> NDJSON stream of
//	                                 {"progress":f} ... {"done":true,"footprint_mb":n} | {"error":"..."}
//	POST   /v1/models/{h}/execute    wireInput -> wireOutput
//	DELETE /v1/models/{h}
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"forged/internal/engine"
)

const (
	defaultRequestTimeout = 10 * time.Minute
	defaultConnectTimeout = 5 * time.Second
	maxErrorBody          = 4096
)

// Config configures a Runtime.
type Config struct {
	BaseURL string
	APIKey  string
	// RequestTimeout bounds every call, including compile streams.
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Runtime is an engine.TensorRuntime backed by a bridge worker.
type Runtime struct {
	baseURL    string
	apiKey     string
	reqTimeout time.Duration
	httpClient *http.Client
}

// New constructs a Runtime for the worker at cfg.BaseURL.
func New(cfg Config) *Runtime {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	cli := cfg.HTTPClient
	if cli == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Deadlines come from per-call contexts.
		cli = &http.Client{Transport: tr, Timeout: 0}
	}
	return &Runtime{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		reqTimeout: cfg.RequestTimeout,
		httpClient: cli,
	}
}

// httpError is a non-2xx worker response.
type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("bridge worker http %d: %s", e.Status, e.Body)
}

// ErrAPINotImplemented is wrapped when the worker does not serve an endpoint.
var ErrAPINotImplemented = errors.New("bridge worker does not implement endpoint")

// IsAPINotImplemented reports whether err came from a 404/405 response.
func IsAPINotImplemented(err error) bool { return errors.Is(err, ErrAPINotImplemented) }

// do sends one request and returns the open response for a 2xx status.
// The caller closes the body.
func (r *Runtime) do(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := &httpError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
			return nil, fmt.Errorf("%s %s: %w: %w", method, path, ErrAPINotImplemented, herr)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, herr)
	}
	return resp, nil
}

// call performs a JSON request/response round trip under the request timeout.
func (r *Runtime) call(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.reqTimeout)
	defer cancel()
	resp, err := r.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

type bindRequest struct {
	DeviceIndex int `json:"device_index"`
}

type bindResponse struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// Bind implements engine.TensorRuntime.
func (r *Runtime) Bind(ctx context.Context, deviceIndex int) (engine.Device, error) {
	var resp bindResponse
	if err := r.call(ctx, http.MethodPost, "/v1/devices/bind", bindRequest{DeviceIndex: deviceIndex}, &resp); err != nil {
		return nil, err
	}
	if resp.DeviceID == "" {
		return nil, errors.New("bridge worker returned an empty device id")
	}
	return &device{rt: r, id: resp.DeviceID, name: resp.Name}, nil
}
