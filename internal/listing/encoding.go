package listing

import (
	"net/url"
	"strings"
)

// displayReplacer reverses the minimal encoding table. It is the fallback
// when a name contains a malformed escape that url.PathUnescape rejects.
var displayReplacer = strings.NewReplacer(
	"%20", " ",
	"%28", "(",
	"%29", ")",
	"%2B", "+", "%2b", "+",
	"%26", "&",
	"%27", "'",
	"%2C", ",", "%2c", ",",
	"%5B", "[", "%5b", "[",
	"%5D", "]", "%5d", "]",
)

// Decode percent-decodes a name for display.
func Decode(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return displayReplacer.Replace(s)
}

// EncodeSegment percent-encodes a single path segment. Only RFC 3986
// unreserved characters are left as-is, so ' ', '(', ')', '+', '&', '\'',
// ',', '[' and ']' become %20, %28, %29, %2B, %26, %27, %2C, %5B and %5D.
func EncodeSegment(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

// EncodePath encodes every segment of a slash separated relative path.
func EncodePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = EncodeSegment(part)
	}
	return strings.Join(parts, "/")
}

// CanonicalPath re-encodes every segment of a published href or path so
// that one location has exactly one spelling, however the server escaped it.
func CanonicalPath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = EncodeSegment(Decode(part))
	}
	return strings.Join(parts, "/")
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}
