// Package redact masks credentials in text before it reaches server logs or
// is echoed back by `config show`.
package redact

import (
	"regexp"
	"strings"
)

// Mode selects how much redaction is applied.
type Mode string

const (
	// ModeOff disables redaction.
	ModeOff Mode = "off"
	// ModeBasic masks secret-looking assignments, auth headers and query params.
	ModeBasic Mode = "basic"
	// ModeStrict also masks bare tokens with well-known vendor prefixes.
	ModeStrict Mode = "strict"

	// DefaultReplacement is written in place of a masked value.
	DefaultReplacement = "***REDACTED***"
)

// ParseMode converts a config string to a Mode, falling back to ModeBasic.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOff, ModeBasic, ModeStrict:
		return m
	default:
		return ModeBasic
	}
}

// Config holds configuration for a Redactor.
type Config struct {
	Mode Mode
	// Keys are extra key names, matched as suffixes, whose values are masked.
	Keys        []string
	Replacement string
}

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks secrets. It is safe for concurrent use.
type Redactor struct {
	mode        Mode
	replacement string
	rules       []rule
}

var keySuffixes = []string{"TOKEN", "KEY", "SECRET", "PASSWORD", "AUTHORIZATION", "APIKEY"}

var headers = []string{
	"Authorization", "Proxy-Authorization", "OpenAI-Organization",
	"X-API-Key", "Cookie", "Set-Cookie",
}

var queryParams = []string{"token", "key", "api_key", "apikey", "access_token", "secret", "password"}

var vendorPrefixes = []struct {
	prefix  string
	pattern string
}{
	{"sk-proj-", `sk-proj-[A-Za-z0-9_\-]{20,}`},
	{"sk-", `sk-[A-Za-z0-9_\-]{20,}`},
	{"ghp_", `ghp_[A-Za-z0-9_]{30,40}`},
	{"gho_", `gho_[A-Za-z0-9_]{30,40}`},
	{"ghs_", `ghs_[A-Za-z0-9_]{30,40}`},
	{"github_pat_", `github_pat_[A-Za-z0-9_]{30,}`},
}

// New compiles a Redactor.
func New(cfg Config) *Redactor {
	r := &Redactor{mode: cfg.Mode, replacement: cfg.Replacement}
	if r.mode == "" {
		r.mode = ModeBasic
	}
	if r.replacement == "" {
		r.replacement = DefaultReplacement
	}
	if r.mode == ModeOff {
		return r
	}

	keys := append([]string(nil), keySuffixes...)
	for _, k := range cfg.Keys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, regexp.QuoteMeta(k))
		}
	}
	// KEY=value, key: "value" and "key":"value" forms.
	r.rules = append(r.rules, rule{
		re:   regexp.MustCompile(`(?i)(\b\w*(?:` + strings.Join(keys, "|") + `)"?\s*[=:]\s*)["']?[^"'\s,}&]+["']?`),
		repl: "${1}" + r.replacement,
	})

	quoted := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = regexp.QuoteMeta(h)
	}
	r.rules = append(r.rules, rule{
		re:   regexp.MustCompile(`(?im)^(\s*(?:` + strings.Join(quoted, "|") + `)\s*:\s*)[^\r\n]+`),
		repl: "${1}" + r.replacement,
	})
	r.rules = append(r.rules, rule{
		re:   regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/\-]+=*`),
		repl: "Bearer " + r.replacement,
	})
	r.rules = append(r.rules, rule{
		re:   regexp.MustCompile(`([?&](?:` + strings.Join(queryParams, "|") + `)=)[^&\s#'"]+`),
		repl: "${1}" + r.replacement,
	})

	if r.mode == ModeStrict {
		for _, p := range vendorPrefixes {
			r.rules = append(r.rules, rule{
				re:   regexp.MustCompile(p.pattern),
				repl: p.prefix + r.replacement,
			})
		}
	}
	return r
}

// Mode returns the active mode.
func (r *Redactor) Mode() Mode { return r.mode }

// String returns s with secrets masked.
func (r *Redactor) String(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.repl)
	}
	return s
}

// Redact returns data with secrets masked.
func (r *Redactor) Redact(data []byte) []byte {
	if len(r.rules) == 0 {
		return data
	}
	return []byte(r.String(string(data)))
}

// Error returns err's message with secrets masked, or "" for nil.
func (r *Redactor) Error(err error) string {
	if err == nil {
		return ""
	}
	return r.String(err.Error())
}

// Secret masks a value known to be a credential, keeping the last four
// characters of long values so operators can tell keys apart.
func Secret(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return DefaultReplacement
	default:
		return DefaultReplacement + v[len(v)-4:]
	}
}
