package decode

import "strings"

// SplitCSVLine splits one CSV line on commas outside double quotes. Quotes
// toggle the quoted state and are not part of the field; a doubled quote
// inside a quoted field is a literal quote.
func SplitCSVLine(line string) []string {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			field.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	return append(fields, field.String())
}

// splitLines breaks a CSV body into non-blank lines, tolerating CRLF and a
// leading byte-order mark.
func splitLines(body string) []string {
	body = strings.TrimPrefix(body, "\ufeff")
	raw := strings.Split(body, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// normalizeHeader lowercases, trims and strips surrounding quotes.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.Trim(h, `"'`)
	return strings.ToLower(strings.TrimSpace(h))
}

func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = normalizeHeader(h)
	}
	return out
}

var matchTiers = []func(header, candidate string) bool{
	func(h, c string) bool { return h == c },
	strings.HasPrefix,
	strings.Contains,
}

// MatchColumn returns the index of the first header matching any candidate,
// or -1. Exact matches across all candidates are tried first, then prefix
// matches, then substring matches. Comparison is case-insensitive.
func MatchColumn(headers []string, candidates ...string) int {
	norm := normalizeHeaders(headers)
	for _, match := range matchTiers {
		for _, c := range candidates {
			c = normalizeHeader(c)
			if c == "" {
				continue
			}
			for i, h := range norm {
				if match(h, c) {
					return i
				}
			}
		}
	}
	return -1
}

// MatchColumnAll returns the index of the first header containing every
// keyword, or -1.
func MatchColumnAll(headers []string, keywords ...string) int {
	for i, h := range normalizeHeaders(headers) {
		all := len(keywords) > 0
		for _, k := range keywords {
			if !strings.Contains(h, strings.ToLower(k)) {
				all = false
				break
			}
		}
		if all {
			return i
		}
	}
	return -1
}
