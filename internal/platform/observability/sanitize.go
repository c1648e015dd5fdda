package observability

import (
	"strings"
	"unicode"
)

const (
	maxFieldRunes  = 256
	maxRouteRunes  = 180
	maxMethodRunes = 10
	maxUserIDRunes = 64
)

func stripControl(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldRunes
	}
	var b strings.Builder
	b.Grow(len(value))
	count := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		count++
		if count >= limit {
			break
		}
	}
	return b.String()
}

// SanitizeRoute strips control characters from a route pattern before logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, maxRouteRunes)
}

// SanitizeMethod strips control characters from an HTTP method name.
func SanitizeMethod(method string) string {
	return stripControl(method, maxMethodRunes)
}

// SanitizeUserID caps identifier length so logs never carry oversized
// or attacker-shaped subject values.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return stripControl(uid, maxUserIDRunes)
}

// RedactEmail masks the local part of an email address, keeping the first
// character and the domain for correlation.
func RedactEmail(email string) string {
	email = stripControl(strings.TrimSpace(email), maxFieldRunes)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local := email[:at]
	return local[:1] + "***" + email[at:]
}
