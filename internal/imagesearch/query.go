package imagesearch

import (
	"strings"
	"unicode"
)

// DefaultSearchURLTemplate is the Pixabay results page; {query} is replaced by the encoded query.
const DefaultSearchURLTemplate = "https://pixabay.com/images/search/{query}/"

// Normalize trims the query and rejects blank input.
func Normalize(raw string) (Query, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return Query(q), nil
}

// PathSegment replaces every space with sep; no other character is altered.
func (q Query) PathSegment(sep string) string {
	return strings.ReplaceAll(string(q), " ", sep)
}

// BuildSearchURL expands template with the encoded query.
func BuildSearchURL(template string, q Query, sep string) string {
	return strings.ReplaceAll(template, "{query}", q.PathSegment(sep))
}

// Accept reports whether raw is a usable image URL for domain.
func Accept(raw, domain string) bool {
	if raw == "" || !strings.HasPrefix(raw, "https://") {
		return false
	}
	return strings.Contains(raw, domain)
}

// SanitizeFilename turns a query into a file-name stem. Whitespace becomes '_'
// as do path separators and characters most filesystems reject.
func SanitizeFilename(q Query) string {
	var b strings.Builder
	for _, r := range string(q) {
		switch {
		case unicode.IsSpace(r), unicode.IsControl(r):
			b.WriteRune('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	stem := b.String()
	if stem == "" || stem == "." || stem == ".." {
		return "image"
	}
	return stem
}
