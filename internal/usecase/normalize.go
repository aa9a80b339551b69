package usecase

import (
	"regexp"
	"strings"
)

// MentionToken is how the platform renders a mention of userID in message text.
func MentionToken(userID string) string {
	return "<@" + userID + ">"
}

// NormalizeText removes every mention of the bot, including the labelled
// form <@U123|name>, and trims surrounding whitespace.
func NormalizeText(raw, botUserID string) string {
	if botUserID == "" {
		return strings.TrimSpace(raw)
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(botUserID) + `(\|[^>]*)?>`)
	return strings.TrimSpace(re.ReplaceAllString(raw, ""))
}

func mentions(text, botUserID string) bool {
	return botUserID != "" && strings.Contains(text, "<@"+botUserID)
}

func isComment(text, marker string) bool {
	return marker != "" && strings.HasPrefix(strings.TrimSpace(text), marker)
}
