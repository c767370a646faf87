package partition

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// unsafeKeyRunes are replaced in group keys so a key is always a single,
// portable file name.
const unsafeKeyRunes = `/\:*?"<>|`

// GroupKey derives the output identity of a top-level page from its title:
// whitespace is removed and characters that are unsafe in file names are
// replaced with '_'.
func GroupKey(title string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(title) {
		switch {
		case unicode.IsSpace(r):
		case unicode.IsControl(r), strings.ContainsRune(unsafeKeyRunes, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	key := b.String()
	if strings.Trim(key, ".") == "" {
		return strings.Repeat("_", max(len(key), 1))
	}
	return key
}

// collisionKey is the form under which two keys are considered the same.
// Case is folded because output directories may live on case-insensitive
// file systems.
func collisionKey(key string) string {
	return cases.Fold().String(key)
}
