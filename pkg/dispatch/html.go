package dispatch

import "strings"

// StripMarkup reduces an HTML-ish message body to plain text for the
// messaging gateway: tags are removed and character references dropped.
func StripMarkup(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inTag:
			if c == '>' {
				inTag = false
			}
		case c == '<':
			inTag = true
		case c == '&':
			// Drop a bounded &...; reference; keep a bare ampersand.
			end := i + 10
			if end > len(s) {
				end = len(s)
			}
			if j := strings.IndexByte(s[i:end], ';'); j > 0 {
				i += j
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
