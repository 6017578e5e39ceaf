package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials before log lines reach a writer
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for LLM provider keys and common secrets
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Anthropic before OpenAI, both start with sk-
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{8,}`),
			regexp.MustCompile(`(?i)(x-api-key|api[_-]?key)(["'\s:=]+)[^\s"',]+`),
			regexp.MustCompile(`(?i)(password|secret)(["'\s:=]+)[^\s"',]+`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s. Key/value patterns keep the key.
func (r *Redactor) Redact(s string) string {
	for _, re := range r.patterns {
		if re.NumSubexp() >= 2 {
			s = re.ReplaceAllString(s, "${1}${2}"+redacted)
			continue
		}
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{w: w, r: r}
}

type redactingWriter struct {
	w io.Writer
	r *Redactor
}

// Write reports len(p) on success so callers never see a short write when
// redaction changes the length.
func (rw *redactingWriter) Write(p []byte) (int, error) {
	if _, err := rw.w.Write([]byte(rw.r.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
