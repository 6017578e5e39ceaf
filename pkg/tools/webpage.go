package tools

import (
	"context"
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserOptions configures the headless browser behind web.page_text
type BrowserOptions struct {
	ChromePath string        `json:"chrome_path" mapstructure:"chrome_path"`
	NoSandbox  bool          `json:"no_sandbox" mapstructure:"no_sandbox"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxChars   int           `json:"max_chars" mapstructure:"max_chars"`
}

// PageTextTool renders a page in headless Chrome and returns its visible
// text. The browser is launched on first use.
type PageTextTool struct {
	opts BrowserOptions
	urls URLPolicy

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewPageTextTool creates the web.page_text tool
func NewPageTextTool(opts BrowserOptions, urls URLPolicy) *PageTextTool {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 4000
	}
	return &PageTextTool{opts: opts, urls: urls}
}

// Descriptor returns the tool descriptor
func (t *PageTextTool) Descriptor() Descriptor {
	idempotent := true
	return Descriptor{
		Name:        "web.page_text",
		Description: "Load a web page in a headless browser and return its title and visible text",
		InputSchema: ObjectSchema(map[string]Field{
			"url": {Type: "string", Description: "Absolute http(s) URL"},
		}, "url"),
		Tags:       []string{"network", "browser"},
		Timeout:    t.opts.Timeout,
		Idempotent: &idempotent,
	}
}

// Invoke loads the page and extracts the body text
func (t *PageTextTool) Invoke(ctx context.Context, raw json.RawMessage) (Result, error) {
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

	browser, err := t.connect()
	if err != nil {
		return Result{}, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return Result{}, err
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return Result{}, err
	}

	body, err := page.Element("body")
	if err != nil {
		return Result{}, err
	}
	text, err := body.Text()
	if err != nil {
		return Result{}, err
	}

	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}

	truncated := false
	if utf8.RuneCountInString(text) > t.opts.MaxChars {
		text = string([]rune(text)[:t.opts.MaxChars])
		truncated = true
	}

	return Success(map[string]any{
		"url":       u.String(),
		"title":     title,
		"text":      text,
		"truncated": truncated,
	})
}

func (t *PageTextTool) connect() (*rod.Browser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.browser != nil {
		return t.browser, nil
	}

	l := launcher.New().Headless(true)
	if t.opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	if t.opts.ChromePath != "" {
		l = l.Bin(t.opts.ChromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, err
	}

	t.launcher = l
	t.browser = browser
	return browser, nil
}

// Close shuts the browser down if it was started
func (t *PageTextTool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.browser == nil {
		return nil
	}
	err := t.browser.Close()
	t.launcher.Kill()
	t.browser = nil
	t.launcher = nil
	return err
}
