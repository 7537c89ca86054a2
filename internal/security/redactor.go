package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches document keys whose values are secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|pass|key|credential)`)

// DefaultPatterns returns patterns for credentials that travel through the
// gateway: authorization headers and webhook signatures.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]{8,}=*`),
		regexp.MustCompile(`(?i)basic\s+[a-zA-Z0-9+/]{8,}=*`),
		regexp.MustCompile(`sha256=[a-f0-9]{64}`),
	}
}

// Redactor scrubs credentials from strings and decoded documents. It knows
// credential shapes (patterns) and concrete secret values (literals). The
// zero value redacts nothing until patterns or literals are added. Safe
// for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
	replacer *strings.Replacer
}

// NewRedactor returns a Redactor with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers a credential shape.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret value, such as a configured token. Empty
// and already known values are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.literals, secret) {
		return
	}
	r.literals = append(r.literals, secret)
	// Longest first, so a secret containing another is replaced whole.
	slices.SortFunc(r.literals, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	pairs := make([]string, 0, 2*len(r.literals))
	for _, lit := range r.literals {
		pairs = append(pairs, lit, RedactPlaceholder)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact returns s with every known literal and pattern match replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	replacer, patterns := r.replacer, r.patterns
	r.mu.RUnlock()

	if replacer != nil {
		s = replacer.Replace(s)
	}
	for _, p := range patterns {
		s = p.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap rewrites a decoded YAML or JSON document in place. Non-empty
// strings under secret-looking keys become RedactPlaceholder; every other
// string goes through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		m[k] = r.redactValue(secretKeyPattern.MatchString(k), v)
	}
}

func (r *Redactor) redactValue(secretKey bool, v any) any {
	switch val := v.(type) {
	case string:
		if secretKey && val != "" {
			return RedactPlaceholder
		}
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(false, item)
		}
	}
	return v
}
