package ui

import "github.com/charmbracelet/lipgloss"

// Colors for the UI theme - Muted Professional Palette
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError     = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted     = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorText      = lipgloss.Color("#F1F5F9") // Soft White (Slate 100)
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500 (slightly lighter)
)

// PhaseIcons mark loop phases in the status line.
var PhaseIcons = map[string]string{
	"PLANNING":  "◇",
	"EXECUTING": "◆",
	"ANALYZING": "◈",
	"REVIEWING": "◉",
}

// Styles holds the lipgloss styles for the terminal session.
type Styles struct {
	Banner     lipgloss.Style
	BannerInfo lipgloss.Style

	UserQuery lipgloss.Style
	Phase     lipgloss.Style
	Iteration lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style

	Report      lipgloss.Style
	ReportMeta  lipgloss.Style
	ReportBadge lipgloss.Style

	StatusBar lipgloss.Style
	Prompt    lipgloss.Style
	Spinner   lipgloss.Style

	HelpCommand lipgloss.Style
	HelpText    lipgloss.Style
}

// DefaultStyles returns the default dark-terminal styling.
func DefaultStyles() *Styles {
	return &Styles{
		Banner: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
		BannerInfo: lipgloss.NewStyle().
			Foreground(ColorMuted),

		UserQuery: lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true).
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(ColorPrimary).
			PaddingLeft(1),
		Phase: lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true),
		Iteration: lipgloss.NewStyle().
			Foreground(ColorDim),

		Success: lipgloss.NewStyle().Foreground(ColorSuccess),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
		Accent:  lipgloss.NewStyle().Foreground(ColorPrimary),

		Report: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDim).
			Padding(0, 1),
		ReportMeta: lipgloss.NewStyle().
			Foreground(ColorDim),
		ReportBadge: lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),

		StatusBar: lipgloss.NewStyle().
			Foreground(ColorDim),
		Prompt: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
		Spinner: lipgloss.NewStyle().
			Foreground(ColorSecondary),

		HelpCommand: lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true),
		HelpText: lipgloss.NewStyle().
			Foreground(ColorDim),
	}
}

// FormatUserQuery renders the operator's query as a left-bordered card.
func (s *Styles) FormatUserQuery(query string) string {
	return s.UserQuery.Render("❯ " + query)
}

// FormatError renders an error line.
func (s *Styles) FormatError(err error) string {
	return s.Error.Render("✗ " + err.Error())
}

// FormatNotice renders a dim one-line notice.
func (s *Styles) FormatNotice(text string) string {
	return s.Muted.Render("· " + text)
}
