// Package corscheck probes a running auth API the way a browser on another
// origin would: a preflight for the register endpoint followed by the real
// cross-origin POST.
package corscheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// CORSHeaders are the response headers a report calls out.
var CORSHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
	"Access-Control-Allow-Credentials",
	"Access-Control-Max-Age",
	"Access-Control-Expose-Headers",
}

const (
	DefaultOrigin          = "http://localhost:8900"
	DefaultPreflightOrigin = "http://localhost:3000"
	DefaultUsername        = "testuser"
	DefaultPassword        = "testpass123"

	registerPath = "/auth/register"
	maxBodyBytes = 64 << 10
)

type Options struct {
	// APIURL is the API base, e.g. http://localhost:8099/talk2me/api/v1.
	APIURL          string
	Origin          string
	PreflightOrigin string
	Username        string
	Password        string
	HTTPClient      *http.Client
}

func (o *Options) withDefaults() {
	if o.Origin == "" {
		o.Origin = DefaultOrigin
	}
	if o.PreflightOrigin == "" {
		o.PreflightOrigin = DefaultPreflightOrigin
	}
	if o.Username == "" {
		o.Username = DefaultUsername
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Result is one probe's outcome. Err is set when no response arrived.
type Result struct {
	Name        string            `json:"name"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Origin      string            `json:"origin"`
	StatusCode  int               `json:"status_code,omitempty"`
	Status      string            `json:"status,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
	CORSHeaders map[string]string `json:"cors_headers,omitempty"`
	Headers     http.Header       `json:"headers,omitempty"`
	Body        any               `json:"body,omitempty"`
	Err         string            `json:"error,omitempty"`
}

// OK reports a 2xx response.
func (r Result) OK() bool {
	return r.Err == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// AllowsOrigin reports whether the response granted the probe's origin.
func (r Result) AllowsOrigin() bool {
	got := r.CORSHeaders["Access-Control-Allow-Origin"]
	return got == "*" || got == r.Origin
}

type Report struct {
	Preflight Result `json:"preflight"`
	Register  Result `json:"register"`
}

// Passed is true when both probes succeeded and were granted their origin.
func (r Report) Passed() bool {
	return r.Preflight.OK() && r.Preflight.AllowsOrigin() &&
		r.Register.Err == "" && r.Register.AllowsOrigin()
}

// Run sends the preflight and then the register request. A failed preflight
// does not skip the POST; both results are always reported.
func Run(ctx context.Context, opts Options) Report {
	opts.withDefaults()
	target := strings.TrimRight(opts.APIURL, "/") + registerPath

	return Report{
		Preflight: preflight(ctx, opts, target),
		Register:  register(ctx, opts, target),
	}
}

func preflight(ctx context.Context, opts Options, target string) Result {
	res := Result{Name: "preflight", Method: http.MethodOptions, URL: target, Origin: opts.PreflightOrigin}

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, target, nil)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	req.Header.Set("Origin", opts.PreflightOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")

	return do(opts.HTTPClient, req, res)
}

func register(ctx context.Context, opts Options, target string) Result {
	res := Result{Name: "register", Method: http.MethodPost, URL: target, Origin: opts.Origin}

	payload, err := json.Marshal(map[string]string{"username": opts.Username, "password": opts.Password})
	if err != nil {
		res.Err = err.Error()
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		res.Err = err.Error()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", opts.Origin)

	return do(opts.HTTPClient, req, res)
}

func do(client *http.Client, req *http.Request, res Result) Result {
	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Status = resp.Status
	res.Headers = resp.Header.Clone()
	res.CORSHeaders = make(map[string]string)
	for _, h := range CORSHeaders {
		if v := resp.Header.Get(h); v != "" {
			res.CORSHeaders[h] = v
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.Err = fmt.Sprintf("failed to read body: %v", err)
		return res
	}
	res.Body = decodeBody(resp.Header.Get("Content-Type"), data)
	return res
}

func decodeBody(contentType string, data []byte) any {
	if len(data) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	}
	return string(data)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
