package scoring

import (
	"strings"
	"unicode"
)

// CategoryName derives a display name from the fragment of a leaderboard
// web link, e.g. ".../celeste#any%25" becomes "Any%". The fragment is the
// text between the first and the second "#".
func CategoryName(weblink string) string {
	parts := strings.Split(weblink, "#")
	if len(parts) < 2 {
		return ""
	}
	name := titleCase(strings.ReplaceAll(unquote(parts[1]), "_", " "))
	name = strings.ReplaceAll(name, "Ng1", "Ng+")
	return percentSuffix(name)
}

// unquote decodes every valid %XX escape and leaves malformed ones as they
// are. Invalid UTF-8 in the result is replaced with U+FFFD.
func unquote(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b = append(b, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		b = append(b, s[i])
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func isHex(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case isDigit(c):
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// titleCase upper-cases every letter that follows a non-letter and
// lower-cases every other letter.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// percentSuffix appends "%" to every "Any" and to a trailing two-digit
// number, unless a "%" already follows.
func percentSuffix(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "Any") {
			b.WriteString("Any")
			i += len("Any")
			if !strings.HasPrefix(s[i:], "%") {
				b.WriteByte('%')
			}
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	out := b.String()
	if n := len(out); n >= 2 && isDigit(out[n-1]) && isDigit(out[n-2]) {
		out += "%"
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
