package service

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tapboard/internal/domain"
)

const maxDisplayNameLen = 64

// MarkdownV2 metacharacters the display medium treats as markup.
var markupEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
	">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
	".", "\\.", "!", "\\!",
)

var medals = []string{"🥇", "🥈", "🥉"}

// CleanDisplayName normalizes a client-reported display name for storage:
// control characters are stripped, surrounding space trimmed, length capped.
// Empty names become "anonymous".
func CleanDisplayName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(b.String())
	runes := []rune(cleaned)
	if len(runes) > maxDisplayNameLen {
		cleaned = string(runes[:maxDisplayNameLen])
	}
	if cleaned == "" {
		return "anonymous"
	}
	return cleaned
}

// EscapeMarkup escapes markup metacharacters so a display name can be
// interpolated into the formatted reply without injecting formatting.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

// FormatTop renders the ranked entries as the reply text the gateway delivers.
func FormatTop(entries []domain.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "🏆 *Turbo Tapper Leaderboard*\n\nNo scores yet\\. Be the first\\!"
	}

	var b strings.Builder
	b.WriteString("🏆 *Turbo Tapper Leaderboard*\n\n")
	for i, entry := range entries {
		if i < len(medals) {
			b.WriteString(medals[i])
		} else {
			fmt.Fprintf(&b, "%d\\.", entry.Rank)
		}
		b.WriteString(" ")
		b.WriteString(EscapeMarkup(entry.DisplayName))
		b.WriteString(": ")
		b.WriteString(groupDigits(entry.Score))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// groupDigits formats n with thousands separators, e.g. 1234567 -> "1,234,567".
func groupDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
