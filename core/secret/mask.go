// Package secret masks credentials before they reach logs.
package secret

import "strings"

// Mask returns a masked representation of a secret string.
// Short values are fully hidden; longer ones keep their first and last
// characters so operators can tell two values apart.
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
	}
}

// MaskCookie masks every value of a Cookie header while keeping the cookie
// names readable: "session=abcdefgh; theme=dark" becomes
// "session=a******h; theme=****".
func MaskCookie(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Split(header, ";")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			parts[i] = Mask(p)
			continue
		}
		parts[i] = name + "=" + Mask(value)
	}
	return strings.Join(parts, "; ")
}
