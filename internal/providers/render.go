package providers

import (
	"strings"
	"unicode/utf8"

	"alert-bulletin-service/internal/models"
)

// Channel payload limits.
const (
	socialTextLimit    = 4096
	socialCaptionLimit = 1024
	chatBodyLimit      = 1600
	pushTitleLimit     = 65
	pushBodyLimit      = 240
)

const ellipsis = "..."

// truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return string([]rune(s)[:limit])
	}
	return strings.TrimRightFunc(string([]rune(s)[:limit-len(ellipsis)]), isSpace) + ellipsis
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

// singleLine collapses every run of whitespace, newlines included, to one space.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// plainText is the full bulletin as plain text sections.
func plainText(b models.Bulletin) string {
	sections := []string{b.Title, b.AdvisoryText}
	if b.RisksText != "" {
		sections = append(sections, "Risks:\n"+b.RisksText)
	}
	if b.SafetyTipsText != "" {
		sections = append(sections, "Safety tips:\n"+b.SafetyTipsText)
	}
	if len(b.Hashtags) > 0 {
		sections = append(sections, strings.Join(b.Hashtags, " "))
	}
	return strings.Join(sections, "\n\n")
}

func joinTags(tags []string) string {
	return strings.Join(tags, " ")
}
