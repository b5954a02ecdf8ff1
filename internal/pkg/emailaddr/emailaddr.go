// Package emailaddr normalizes and validates newsletter email addresses.
// The same rules run on the client for UX; this server-side copy is the
// authoritative one.
package emailaddr

import (
	"regexp"
	"strings"
)

const maxEmailLength = 254

// Conservative RFC-5322-inspired pattern: restricted local-part symbols, and
// a domain that requires at least one dot.
var emailPattern = regexp.MustCompile(`^[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~.-]+@[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// Result is the outcome of validating one raw input.
type Result struct {
	Valid     bool
	Sanitized string
	Message   string
}

func invalid(sanitized, message string) Result {
	return Result{Sanitized: sanitized, Message: message}
}

// Validate trims and lowercases raw, then checks it against the subscription
// rules. blockedDomains lists disposable-email domains to reject (compared
// case-insensitively against the full domain part). Deterministic, no side
// effects; validating an already-sanitized valid address returns it unchanged.
func Validate(raw string, blockedDomains []string) Result {
	sanitized := strings.ToLower(strings.TrimSpace(raw))

	if sanitized == "" {
		return invalid(sanitized, "Email is required")
	}
	if len(sanitized) > maxEmailLength {
		return invalid(sanitized, "Email is too long")
	}

	at := strings.LastIndex(sanitized, "@")
	if at <= 0 || at == len(sanitized)-1 {
		return invalid(sanitized, "Please enter a valid email address")
	}
	local, domain := sanitized[:at], sanitized[at+1:]

	if strings.Contains(sanitized, "..") {
		return invalid(sanitized, "Invalid email format")
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return invalid(sanitized, "Invalid email format")
	}
	if !emailPattern.MatchString(sanitized) {
		return invalid(sanitized, "Please enter a valid email address")
	}

	for _, blocked := range blockedDomains {
		if domain == strings.ToLower(strings.TrimSpace(blocked)) {
			return invalid(sanitized, "Email addresses from "+domain+" are not allowed")
		}
	}

	return Result{Valid: true, Sanitized: sanitized}
}
