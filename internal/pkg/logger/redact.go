package logger

import (
	"regexp"
	"strings"
)

var (
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)
	apiKeyRegex = regexp.MustCompile(`\b(sk|rk|sk_live|sk_test|sk-proj)[-_][A-Za-z0-9_-]{6,}`)
)

var secretKeyMarkers = []string{"key", "token", "secret", "authorization", "password"}

// RedactSecret masks a credential for safe logging.
// "sk_live_abcdef123" → "sk_l***"
// Values of 4 characters or fewer are fully masked.
func RedactSecret(secret string) string {
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}

// RedactSecrets masks bearer tokens and API-key-shaped substrings in s.
func RedactSecrets(s string) string {
	s = bearerRegex.ReplaceAllString(s, "Bearer ***")
	return apiKeyRegex.ReplaceAllStringFunc(s, RedactSecret)
}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(key, marker) {
			return RedactSecret(val)
		}
	}
	return RedactSecrets(val)
}
