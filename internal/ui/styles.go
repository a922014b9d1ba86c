// Package ui provides terminal styling, progress display and credential
// prompts for the exporter's console output. Colors follow the Ayu theme
// and adapt to light and dark terminals.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu palette, light and dark variants.
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// icon is a status glyph with a plain fallback for terminals where
// BBS_NO_EMOJI is set or output is redirected.
type icon struct {
	glyph, plain string
}

func (i icon) String() string {
	if ShouldUseEmoji() {
		return i.glyph
	}
	return i.plain
}

var (
	iconPass = icon{"✓", "[ok]"}
	iconWarn = icon{"⚠", "[warn]"}
	iconFail = icon{"✗", "[error]"}
	iconInfo = icon{"ℹ", "[info]"}
)

// separatorWidth matches the longest summary line in practice.
const separatorWidth = 42

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

func RenderPassIcon() string { return PassStyle.Render(iconPass.String()) }
func RenderWarnIcon() string { return WarnStyle.Render(iconWarn.String()) }
func RenderFailIcon() string { return FailStyle.Render(iconFail.String()) }
func RenderInfoIcon() string { return AccentStyle.Render(iconInfo.String()) }

// RenderCategory renders a model type or section name as a header:
// "pull_requests" becomes "PULL REQUESTS".
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(strings.ReplaceAll(s, "_", " ")))
}

// RenderSeparator renders a muted rule under a header.
func RenderSeparator() string {
	return MutedStyle.Render(strings.Repeat("─", separatorWidth))
}

// RenderCount renders one "<label>: N" summary line.
func RenderCount(label string, n int) string {
	return fmt.Sprintf("%s %s: %s", RenderPassIcon(), label, RenderAccent(fmt.Sprint(n)))
}

// SummaryRow is one line of an export summary.
type SummaryRow struct {
	Label string
	Count int
}

// RenderSummary renders a titled block of counts. Rows with a zero count
// are left out; an empty summary renders as "".
func RenderSummary(title string, rows []SummaryRow) string {
	var b strings.Builder
	for _, r := range rows {
		if r.Count == 0 {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(RenderCategory(title) + "\n" + RenderSeparator() + "\n")
		}
		b.WriteString(RenderCount(r.Label, r.Count) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
