// Package privacy redacts credentials from hook events before they leave
// the machine.
package privacy

import (
	"regexp"
	"strings"

	"github.com/thebtf/flow/internal/hookevent"
)

// Marker replaces every redacted value.
const Marker = "[REDACTED]"

var (
	// assignment matches "key = value" style secrets; the key is kept.
	assignment = regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|secret[_-]?key|secret[_-]?token|auth[_-]?token|access[_-]?token|password|passwd|aws[_-]?secret[_-]?access[_-]?key)(\s*[:=]\s*)(['"]?)[^\s'"\[]{8,}(['"]?)`)

	// tokens matches credentials recognisable on their own.
	tokens = []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`),
		regexp.MustCompile(`github_pat_[a-zA-Z0-9_]{22,}`),
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	}

	privateKey = regexp.MustCompile(`(?s)-----BEGIN ([A-Z]+ )?PRIVATE KEY-----.*?(-----END ([A-Z]+ )?PRIVATE KEY-----|$)`)
)

// ContainsSecrets reports whether text looks like it carries a credential.
func ContainsSecrets(text string) bool {
	if text == "" {
		return false
	}
	if assignment.MatchString(text) || privateKey.MatchString(text) {
		return true
	}
	for _, re := range tokens {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Redact replaces credentials in text. Assignments keep their key, standalone
// tokens keep a four character prefix.
func Redact(text string) string {
	if text == "" {
		return text
	}
	out := privateKey.ReplaceAllString(text, Marker)
	out = assignment.ReplaceAllString(out, "${1}${2}${3}"+Marker+"${4}")
	for _, re := range tokens {
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			if strings.HasPrefix(strings.ToLower(match), "bearer") {
				return match[:len("bearer")] + " " + Marker
			}
			return match[:4] + "..." + Marker
		})
	}
	return out
}

// RedactRecord returns a deep copy of rec with every string value redacted.
// Keys are left untouched and rec itself is not modified.
func RedactRecord(rec hookevent.Record) hookevent.Record {
	out := make(hookevent.Record, len(rec))
	for k, v := range rec {
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case string:
		return Redact(t)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = redactValue(inner)
		}
		return m
	case hookevent.Record:
		return RedactRecord(t)
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = redactValue(inner)
		}
		return s
	default:
		return v
	}
}
