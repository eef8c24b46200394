package ledger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// esStems are the endings after which an English plural takes "es".
var esStems = []string{"ss", "x", "z", "ch", "sh"}

// Normalize folds an item name into its canonical ledger key: trimmed,
// lower-cased, NFC-composed, with a simple plural suffix removed.
//
// The fold is a heuristic. "Boxes" and "Apples" become "box" and "apple",
// but true singulars ending in a single "s" are folded too ("Gas" -> "ga").
// Words ending in "ss" are left alone, which keeps the result a fixed point:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(name string) string {
	key := norm.NFC.String(strings.ToLower(strings.TrimSpace(name)))

	if stem, ok := strings.CutSuffix(key, "es"); ok {
		for _, ending := range esStems {
			if strings.HasSuffix(stem, ending) {
				return stem
			}
		}
	}
	if strings.HasSuffix(key, "s") && !strings.HasSuffix(key, "ss") {
		if stem := key[:len(key)-1]; foldable(stem) {
			return stem
		}
	}
	return key
}

// foldable rejects stems that would leave an empty key or trailing space.
func foldable(stem string) bool {
	last, size := utf8.DecodeLastRuneInString(stem)
	return size > 0 && !unicode.IsSpace(last)
}
