package phone

import "strings"

// Stored numbers are +65-prefixed while the attendance feed reports bare
// 8-digit local numbers. Normalize bridges the two by expanding a raw value
// into every plausible canonical form; two values match when their variant
// sets intersect.

const countryCode = "65"

const localDigits = 8

// Normalize strips non-digit characters and returns every canonical
// representation of the value. An 8-digit local number also yields the
// country-code-prefixed forms; a prefixed number also yields the bare local
// form. Garbage input yields an empty set.
func Normalize(raw string) []string {
	digits := stripNonDigits(raw)
	if digits == "" {
		return nil
	}

	variants := []string{digits}
	switch {
	case len(digits) == localDigits:
		variants = append(variants, countryCode+digits, "+"+countryCode+digits)
	case len(digits) == localDigits+len(countryCode) && strings.HasPrefix(digits, countryCode):
		variants = append(variants, "+"+digits, digits[len(countryCode):])
	}

	return dedupe(variants)
}

// Match reports whether two raw phone values refer to the same number.
// Matching is set intersection over full digit strings, never a substring
// search, so it is symmetric and unrelated numbers sharing only the country
// code never match.
func Match(a, b string) bool {
	va := Normalize(a)
	if len(va) == 0 {
		return false
	}
	vb := Normalize(b)
	if len(vb) == 0 {
		return false
	}

	seen := make(map[string]struct{}, len(va))
	for _, v := range va {
		seen[v] = struct{}{}
	}
	for _, v := range vb {
		if _, ok := seen[v]; ok {
			return true
		}
	}
	return false
}

func stripNonDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
