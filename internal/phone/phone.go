package phone

import "strings"

// Normalize canonicalizes a free-form phone string into an E.164-like key
// ("+" followed by 10..15 digits) usable for equality comparison.
//
// Rules:
// - Every non-digit character is stripped, including a leading "+".
// - Exactly 10 digits get the default country code ("1") prepended.
// - Fewer than 10 or more than 15 digits after stripping is invalid.
//
// The function is pure and idempotent: feeding a canonical key back in
// returns the same key.
//
// Known limitation: international numbers typed with "+" and a non-US
// country code go through the same strip-and-reassemble path, so a short
// foreign number can be rejected or reinterpreted. Callers that need true
// multi-country support must not rely on this normalizer.
func Normalize(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 10 {
		digits = defaultCountryCode + digits
	}
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	return "+" + digits, true
}

const defaultCountryCode = "1"

// IsValidEmail performs a conservative syntactic check: a non-whitespace
// local part, a single "@", and a domain containing at least one dot.
// It gates directory writes; resolution reads must tolerate anything.
func IsValidEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if local == "" || domain == "" {
		return false
	}
	if strings.ContainsAny(local, " \t\r\n") || strings.ContainsAny(domain, " \t\r\n") {
		return false
	}
	dot := strings.IndexByte(domain, '.')
	// Domain needs a dot with characters on both sides.
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return true
}
