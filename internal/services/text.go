package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const maxNoteRunes = 1000

var (
	plainTextPolicy = bluemonday.StrictPolicy()
	vndPrinter      = message.NewPrinter(language.Vietnamese)
	titleFolder     = cases.Fold()
)

// maxEntityPasses bounds how many layers of entity encoding are peeled off
// before sanitising.
const maxEntityPasses = 3

// sanitizePlainText strips markup from free text and caps its length. Entities
// are decoded first so encoded markup is stripped as well; the output keeps the
// policy's escaping and is safe to embed in HTML as is.
func sanitizePlainText(value string, maxRunes int) string {
	runes := []rune(strings.TrimSpace(decodeEntities(value)))
	if maxRunes > 0 && len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}
	return strings.TrimSpace(plainTextPolicy.Sanitize(string(runes)))
}

func decodeEntities(value string) string {
	for i := 0; i < maxEntityPasses; i++ {
		decoded := html.UnescapeString(value)
		if decoded == value {
			break
		}
		value = decoded
	}
	return value
}

// formatVND renders an amount the way Vietnamese storefronts do, e.g. 50.000₫.
func formatVND(amount int64) string {
	return vndPrinter.Sprintf("%d", amount) + "₫"
}

// foldTitle normalises a category title for case-insensitive comparison.
func foldTitle(value string) string {
	return titleFolder.String(strings.Join(strings.Fields(value), " "))
}
