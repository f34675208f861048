package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/triagekit/triage/internal/notify"
	"github.com/triagekit/triage/pkg/protocol"
)

var (
	colorPrimary = lipgloss.Color("#7aa2f7")
	colorDim     = lipgloss.Color("#565f89")
	colorBorder  = lipgloss.Color("#3b4261")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")
	colorInfo    = lipgloss.Color("#7dcfff")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	dimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	selectedStyle = lipgloss.NewStyle().Bold(true)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	focusedPaneStyle = paneStyle.BorderForeground(colorPrimary)
)

func noteStyle(k notify.Kind) lipgloss.Style {
	c := colorInfo
	switch k {
	case notify.Success:
		c = colorSuccess
	case notify.Warning:
		c = colorWarning
	case notify.Error:
		c = colorError
	}
	return lipgloss.NewStyle().Foreground(c)
}

func priorityStyle(p protocol.Priority) lipgloss.Style {
	switch p {
	case protocol.PriorityHigh:
		return lipgloss.NewStyle().Foreground(colorError)
	case protocol.PriorityMedium:
		return lipgloss.NewStyle().Foreground(colorWarning)
	}
	return lipgloss.NewStyle().Foreground(colorSuccess)
}
