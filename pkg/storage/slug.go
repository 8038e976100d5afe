package storage

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackName = "unnamed"

// Filename turns a remote file name into a safe local one. The stem is
// slugified and the extension, if any, is kept.
//
//	"Benchy Boat (v2).STL" -> "benchy-boat-v2.STL"
func Filename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '.'); i > 0 && i < len(name)-1 {
		stem, ext := name[:i], name[i+1:]
		if cleanExt := extension(ext); cleanExt != "" {
			return Slugify(stem) + "." + cleanExt
		}
	}
	return Slugify(name)
}

// extension keeps only letters and digits, so an extension can never
// introduce a path separator.
func extension(ext string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, ext)
}

// Slugify lowercases s, strips accents and joins runs of anything other
// than ASCII letters and digits with a single '-'.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	if b.Len() == 0 {
		return fallbackName
	}
	return b.String()
}
