package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	NextPane   key.Binding
	Up         key.Binding
	Down       key.Binding
	NextPage   key.Binding
	PrevPage   key.Binding
	Expand     key.Binding
	Submit     key.Binding
	AnalyzeAll key.Binding
	AnalyzeOne key.Binding
	Category   key.Binding
	Priority   key.Binding
	Clear      key.Binding
	Refresh    key.Binding
	Dismiss    key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	NextPane:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	NextPage:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next page")),
	PrevPage:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev page")),
	Expand:     key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "expand")),
	Submit:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "create")),
	AnalyzeAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "analyze all")),
	AnalyzeOne: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "analyze selected")),
	Category:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "category filter")),
	Priority:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "priority filter")),
	Clear:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "clear filters")),
	Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Dismiss:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dismiss")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPane, k.Submit, k.AnalyzeAll, k.Expand, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextPane, k.Up, k.Down, k.NextPage, k.PrevPage, k.Expand},
		{k.Submit, k.AnalyzeAll, k.AnalyzeOne, k.Refresh},
		{k.Category, k.Priority, k.Clear, k.Dismiss, k.Quit},
	}
}
