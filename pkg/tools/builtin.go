package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"
)

// BuiltinOptions configures the default tool set
type BuiltinOptions struct {
	HTTPTimeout time.Duration
	HTTPClient  *http.Client
	URLPolicy   URLPolicy
	// Browser enables web.page_text when non-nil
	Browser *BrowserOptions
	Now     func() time.Time
}

// RegisterBuiltins registers string.upper, time.now, http.request,
// web.read and, when configured, web.page_text
func RegisterBuiltins(reg *Registry, opts BuiltinOptions) error {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	builtins := []Tool{
		StringUpperTool(),
		TimeNowTool(opts.Now),
		NewHTTPTool(HTTPRequestDescriptor(opts.HTTPTimeout), opts.HTTPClient, opts.URLPolicy),
		NewReaderTool(opts.HTTPClient, opts.URLPolicy, opts.HTTPTimeout, 0),
	}
	if opts.Browser != nil {
		builtins = append(builtins, NewPageTextTool(*opts.Browser, opts.URLPolicy))
	}

	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// StringUpperTool converts {"text": "..."} to {"result": "..."} in upper case
func StringUpperTool() *FunctionTool {
	idempotent := true
	desc := Descriptor{
		Name:        "string.upper",
		Description: "Convert text to uppercase",
		InputSchema: ObjectSchema(map[string]Field{
			"text": {Type: "string", Description: "Input text"},
		}, "text"),
		OutputSchema: &Schema{Type: "object", Properties: map[string]Field{
			"result": {Type: "string"},
		}},
		Tags:       []string{"text"},
		Timeout:    time.Second,
		Idempotent: &idempotent,
	}

	return NewFunctionTool(desc, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return map[string]string{"result": strings.ToUpper(args.Text)}, nil
	})
}

// TimeNowTool reports the current time, optionally in an IANA timezone
func TimeNowTool(now func() time.Time) *FunctionTool {
	desc := Descriptor{
		Name:        "time.now",
		Description: "Get the current date and time, optionally in an IANA timezone such as Asia/Singapore",
		InputSchema: ObjectSchema(map[string]Field{
			"timezone": {Type: "string", Description: "IANA timezone name"},
		}),
		Tags:    []string{"time"},
		Timeout: time.Second,
	}

	return NewFunctionTool(desc, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Timezone string `json:"timezone"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}

		t := now()
		if tz := strings.TrimSpace(args.Timezone); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return Failure("invalid_timezone", fmt.Sprintf("unknown timezone %q", tz), nil), nil
			}
			t = t.In(loc)
		}

		return map[string]any{
			"now":      t.Format(time.RFC3339),
			"timezone": t.Location().String(),
			"weekday":  t.Weekday().String(),
			"unix":     t.Unix(),
		}, nil
	})
}
