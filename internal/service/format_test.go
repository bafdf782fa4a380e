package service

import (
	"strings"
	"testing"

	"github.com/tapboard/internal/domain"
)

func TestCleanDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Ann", want: "Ann"},
		{name: "trims space", in: "  Ann  ", want: "Ann"},
		{name: "strips control runes", in: "An\x00n\n", want: "Ann"},
		{name: "empty becomes anonymous", in: "", want: "anonymous"},
		{name: "whitespace only becomes anonymous", in: "   \t\n", want: "anonymous"},
		{name: "unicode kept", in: "Анна 🎮", want: "Анна 🎮"},
		{name: "long name capped", in: strings.Repeat("a", 100), want: strings.Repeat("a", 64)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CleanDisplayName(tt.in); got != tt.want {
				t.Fatalf("CleanDisplayName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEscapeMarkup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Ann", "Ann"},
		{"a_b", "a\\_b"},
		{"*bold*", "\\*bold\\*"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"a.b!c", "a\\.b\\!c"},
	}

	for _, tt := range tests {
		if got := EscapeMarkup(tt.in); got != tt.want {
			t.Fatalf("EscapeMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTopEmpty(t *testing.T) {
	t.Parallel()

	got := FormatTop(nil)
	if !strings.Contains(got, "No scores yet") {
		t.Fatalf("FormatTop(nil) = %q, want empty-board message", got)
	}
}

func TestFormatTop(t *testing.T) {
	t.Parallel()

	entries := []domain.LeaderboardEntry{
		{Rank: 1, UserID: 2, DisplayName: "High", Score: 1234567},
		{Rank: 2, UserID: 3, DisplayName: "a_b", Score: 500},
		{Rank: 3, UserID: 4, DisplayName: "Mid", Score: 500},
		{Rank: 4, UserID: 1, DisplayName: "Low", Score: 10},
	}

	got := FormatTop(entries)
	lines := strings.Split(got, "\n")
	if len(lines) != 6 {
		t.Fatalf("FormatTop produced %d lines, want 6:\n%s", len(lines), got)
	}
	if lines[0] != "🏆 *Turbo Tapper Leaderboard*" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[2] != "🥇 High: 1,234,567" {
		t.Fatalf("first place line = %q", lines[2])
	}
	if lines[3] != "🥈 a\\_b: 500" {
		t.Fatalf("second place line = %q, want escaped name", lines[3])
	}
	if lines[4] != "🥉 Mid: 500" {
		t.Fatalf("third place line = %q", lines[4])
	}
	if lines[5] != "4\\. Low: 10" {
		t.Fatalf("fourth place line = %q, want numeric rank", lines[5])
	}
	if strings.HasSuffix(got, "\n") {
		t.Fatal("FormatTop output has a trailing newline")
	}
}

func TestGroupDigits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{5, "5"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{10000000, "10,000,000"},
		{-1234, "-1,234"},
	}

	for _, tt := range tests {
		if got := groupDigits(tt.in); got != tt.want {
			t.Fatalf("groupDigits(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
