package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const (
	readerUserAgent    = "Mozilla/5.0 (compatible; skagent/1.0)"
	defaultReaderChars = 8000
)

// ReaderTool fetches an article and returns its main content as plain text
type ReaderTool struct {
	client   *http.Client
	urls     URLPolicy
	timeout  time.Duration
	maxChars int
	policy   *bluemonday.Policy
}

type readerOutput struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt,omitempty"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// NewReaderTool creates the web.read tool
func NewReaderTool(client *http.Client, urls URLPolicy, timeout time.Duration, maxChars int) *ReaderTool {
	if client == nil {
		client = &http.Client{}
	}
	if maxChars <= 0 {
		maxChars = defaultReaderChars
	}
	return &ReaderTool{
		client:   client,
		urls:     urls,
		timeout:  timeout,
		maxChars: maxChars,
		policy:   bluemonday.StrictPolicy(),
	}
}

// Descriptor returns the tool descriptor
func (t *ReaderTool) Descriptor() Descriptor {
	idempotent := true
	return Descriptor{
		Name:        "web.read",
		Description: "Fetch a web page and extract the main article content as clean text",
		InputSchema: ObjectSchema(map[string]Field{
			"url": {Type: "string", Description: "Absolute http(s) URL of the article"},
		}, "url"),
		Tags:       []string{"network"},
		Timeout:    t.timeout,
		Idempotent: &idempotent,
	}
}

// Invoke fetches and extracts the article
func (t *ReaderTool) Invoke(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, err
	}

	u, err := t.urls.Validate(args.URL)
	if err != nil {
		return Failure(CodeURLBlocked, err.Error(), map[string]any{"url": args.URL}), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", readerUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failure(CodeHTTPError, fmt.Sprintf("HTTP %d", resp.StatusCode), map[string]any{"url": u.String()}), nil
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxHTTPBodyBytes), u)
	if err != nil {
		return Result{}, fmt.Errorf("extract article: %w", err)
	}

	text := strings.TrimSpace(t.policy.Sanitize(article.TextContent))
	truncated := false
	if utf8.RuneCountInString(text) > t.maxChars {
		text = string([]rune(text)[:t.maxChars])
		truncated = true
	}

	return Success(readerOutput{
		URL:       u.String(),
		Title:     strings.TrimSpace(article.Title),
		Excerpt:   strings.TrimSpace(article.Excerpt),
		Text:      text,
		Truncated: truncated,
	})
}
