// Package redact implements the line-wise output redaction of §4.5's
// Redaction step: before any telemetry write that captures device
// output, each line is scanned against a keyword set and, on match,
// the whole line is replaced with a fixed sentinel. The Configuration
// Repository always receives the raw, unredacted text.
package redact

import "strings"

// DefaultRedactionText is the sentinel substituted for a matching line.
const DefaultRedactionText = "***REDACTED***"

// DefaultKeywords is the case-insensitive keyword set applied when no
// configuration override is present.
var DefaultKeywords = []string{"password", "secret", "community", "pre-shared-key", "key"}

// Config controls which keywords trigger a line redaction and what
// sentinel replaces a matching line.
type Config struct {
	Keywords      []string
	RedactionText string
}

// DefaultConfig returns the §4.5 default keyword set and sentinel.
func DefaultConfig() Config {
	return Config{
		Keywords:      append([]string(nil), DefaultKeywords...),
		RedactionText: DefaultRedactionText,
	}
}

// Redactor applies Config to multi-line device output.
type Redactor struct {
	keywords []string
	text     string
}

// NewRedactor builds a Redactor from cfg, filling in defaults for any
// zero-valued field.
func NewRedactor(cfg Config) *Redactor {
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	text := cfg.RedactionText
	if text == "" {
		text = DefaultRedactionText
	}

	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Redactor{keywords: lowered, text: text}
}

// RedactText scans raw line-by-line and replaces any line containing a
// configured keyword (case-insensitive) with the sentinel. Line
// boundaries and trailing content are otherwise preserved.
func (r *Redactor) RedactText(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if r.matches(line) {
			lines[i] = r.text
		}
	}
	return strings.Join(lines, "\n")
}

func (r *Redactor) matches(line string) bool {
	lower := strings.ToLower(line)
	for _, k := range r.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
