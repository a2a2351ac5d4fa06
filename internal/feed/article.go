package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const minTitleRunes = 20

// Article is a single news item drawn from an RSS feed or API source.
type Article struct {
	Title       string
	Description string
	Source      string
	Category    string
	Link        string
	Published   string // YYYY-MM-DD, may be empty
}

// ID returns the article's stable identity: a 16-char hex digest of the
// normalized title. Case and whitespace differences do not change identity.
func (a Article) ID() string {
	return TitleID(a.Title)
}

// TitleID hashes a title into its 16-char identity. The title is lowercased
// and whitespace-collapsed first so trivially reformatted copies of the same
// headline share an identity.
func TitleID(title string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(title), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}

// Eligible reports whether the article carries enough text to narrate:
// a title of at least 20 characters and a non-empty description.
func (a Article) Eligible() bool {
	return utf8.RuneCountInString(strings.TrimSpace(a.Title)) >= minTitleRunes &&
		strings.TrimSpace(a.Description) != ""
}
