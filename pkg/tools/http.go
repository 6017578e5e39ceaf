package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxHTTPBodyBytes = 1 << 20

// HTTPTool performs HTTP requests described by its arguments:
// {"method": "GET|POST|...", "url": "...", "body": {...}}
type HTTPTool struct {
	desc   Descriptor
	client *http.Client
	urls   URLPolicy
}

type httpArgs struct {
	Method string          `json:"method"`
	URL    string          `json:"url"`
	Body   json.RawMessage `json:"body"`
}

type httpOutput struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
}

// NewHTTPTool creates an HTTP tool. A nil client uses a default client;
// the invoker enforces the descriptor timeout.
func NewHTTPTool(desc Descriptor, client *http.Client, urls URLPolicy) *HTTPTool {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTool{desc: desc, client: client, urls: urls}
}

// HTTPRequestDescriptor is the descriptor of the built-in http.request tool
func HTTPRequestDescriptor(timeout time.Duration) Descriptor {
	idempotent := false
	return Descriptor{
		Name:        "http.request",
		Description: "Perform an HTTP request and return the status code and response text",
		InputSchema: ObjectSchema(map[string]Field{
			"method": {Type: "string", Description: "HTTP method, defaults to GET"},
			"url":    {Type: "string", Description: "Absolute http(s) URL"},
			"body":   {Type: "object", Description: "JSON body for POST/PUT/PATCH"},
		}, "url"),
		Tags:       []string{"network"},
		Timeout:    timeout,
		Idempotent: &idempotent,
	}
}

// Descriptor returns the tool descriptor
func (t *HTTPTool) Descriptor() Descriptor {
	return t.desc
}

// Invoke performs the request. Non-2xx responses are structured failures
// that still carry the status and text.
func (t *HTTPTool) Invoke(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args httpArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, err
	}

	u, err := t.urls.Validate(args.URL)
	if err != nil {
		return Failure(CodeURLBlocked, err.Error(), map[string]any{"url": args.URL}), nil
	}

	method := strings.ToUpper(strings.TrimSpace(args.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(args.Body) > 0 && method != http.MethodGet && method != http.MethodHead {
		body = bytes.NewReader(args.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBodyBytes))
	if err != nil {
		return Result{}, err
	}

	out, err := json.Marshal(httpOutput{Status: resp.StatusCode, Text: string(text)})
	if err != nil {
		return Result{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Success: false,
			Output:  out,
			Error:   &Error{Code: CodeHTTPError, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)},
		}, nil
	}
	return Result{Success: true, Output: out}, nil
}
