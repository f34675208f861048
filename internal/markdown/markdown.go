// Package markdown renders analysis summaries for terminal display.
package markdown

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultWidth is used when a non-positive width is requested.
const DefaultWidth = 80

// Styles controls how each element is drawn. Colors degrade to plain text
// when the terminal has no color support.
type Styles struct {
	Heading lipgloss.Style
	Text    lipgloss.Style
	Code    lipgloss.Style
	Link    lipgloss.Style
	Rule    lipgloss.Style
}

// DefaultStyles returns the styles used by the CLI and TUI.
func DefaultStyles() Styles {
	return Styles{
		Heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Text:    lipgloss.NewStyle(),
		Code:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		Link:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Underline(true),
		Rule:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Renderer turns Markdown into word-wrapped, styled terminal text.
// A Renderer is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	styles Styles
	width  int
}

// New creates a renderer that wraps at width columns.
func New(width int, styles Styles) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		styles: styles,
		width:  width,
	}
}

// Render renders src with the default styles at the given width.
func Render(src string, width int) string {
	return New(width, DefaultStyles()).Render(src)
}

// Render parses src and returns terminal text without a trailing newline.
func (r *Renderer) Render(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	source := []byte(src)
	doc := r.md.Parser().Parse(text.NewReader(source))

	w := &walker{source: source, styles: r.styles, width: r.width}
	ast.Walk(doc, w.walk)
	return strings.TrimRight(w.out.String(), "\n")
}

type listState struct {
	ordered bool
	next    int
	tight   bool
}

// walker holds the state of one Render call.
type walker struct {
	source []byte
	styles Styles
	width  int

	out    strings.Builder
	inline strings.Builder

	prefix  string
	bullet  string
	lists   []listState
	bold    int
	italic  int
	strike  int
	started bool
}

func (w *walker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			w.inline.Reset()
		} else {
			w.flushParagraph()
		}

	case *ast.Heading:
		if entering {
			w.inline.Reset()
			return ast.WalkContinue, nil
		}
		content := ansi.Strip(w.inline.String())
		w.inline.Reset()
		w.blank()
		w.emit(w.styles.Heading.Render(content))

	case *ast.FencedCodeBlock:
		if entering {
			w.codeBlock(n.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			w.codeBlock(n.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			if len(w.lists) == 0 {
				w.blank()
			}
			w.lists = append(w.lists, listState{ordered: n.IsOrdered(), next: n.Start, tight: n.IsTight})
		} else {
			w.lists = w.lists[:len(w.lists)-1]
		}

	case *ast.ListItem:
		if entering {
			top := &w.lists[len(w.lists)-1]
			marker := "• "
			if top.ordered {
				marker = fmt.Sprintf("%d. ", top.next)
				top.next++
			}
			w.bullet = w.prefix + marker
			w.prefix += strings.Repeat(" ", ansi.StringWidth(marker))
		} else {
			w.prefix = w.prefix[:len(w.prefix)-len(w.lastIndent())]
		}

	case *ast.Blockquote:
		if entering {
			w.blank()
			w.prefix += "│ "
		} else {
			w.prefix = strings.TrimSuffix(w.prefix, "│ ")
		}

	case *ast.ThematicBreak:
		if entering {
			w.blank()
			w.emit(w.styles.Rule.Render(strings.Repeat("─", w.available())))
		}

	case *ast.Text:
		if entering {
			w.inline.WriteString(w.styled(string(n.Segment.Value(w.source))))
			if n.HardLineBreak() {
				w.inline.WriteString("\n")
			} else if n.SoftLineBreak() {
				w.inline.WriteString(" ")
			}
		}

	case *ast.String:
		if entering {
			w.inline.WriteString(w.styled(string(n.Value)))
		}

	case *ast.Emphasis:
		delta := -1
		if entering {
			delta = 1
		}
		if n.Level >= 2 {
			w.bold += delta
		} else {
			w.italic += delta
		}

	case *extast.Strikethrough:
		if entering {
			w.strike++
		} else {
			w.strike--
		}

	case *ast.CodeSpan:
		if entering {
			var code strings.Builder
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					code.Write(t.Segment.Value(w.source))
				}
			}
			w.inline.WriteString(w.styles.Code.Render(code.String()))
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if !entering {
			w.inline.WriteString(" " + w.styles.Link.Render("("+string(n.Destination)+")"))
		}

	case *ast.AutoLink:
		if entering {
			w.inline.WriteString(w.styles.Link.Render(string(n.URL(w.source))))
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock, *ast.RawHTML, *ast.Image:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (w *walker) styled(s string) string {
	st := w.styles.Text
	if w.bold > 0 {
		st = st.Bold(true)
	}
	if w.italic > 0 {
		st = st.Italic(true)
	}
	if w.strike > 0 {
		st = st.Strikethrough(true)
	}
	return st.Render(s)
}

func (w *walker) available() int {
	n := w.width - ansi.StringWidth(w.prefix)
	if n < 10 {
		n = 10
	}
	return n
}

// flushParagraph wraps the collected inline text and writes it. Paragraphs
// inside tight list items are not separated by blank lines.
func (w *walker) flushParagraph() {
	content := w.inline.String()
	w.inline.Reset()
	if content == "" {
		return
	}
	if w.bullet == "" && !w.inTightList() {
		w.blank()
	}
	w.emit(ansi.Wordwrap(content, w.available(), ""))
}

func (w *walker) codeBlock(lines *text.Segments) {
	var code strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(w.source))
	}
	w.blank()
	saved := w.prefix
	w.prefix += "  "
	w.emit(w.styles.Code.Render(strings.TrimRight(code.String(), "\n")))
	w.prefix = saved
}

// emit writes content line by line, using the pending bullet for the first
// line and the current prefix for the rest.
func (w *walker) emit(content string) {
	for i, line := range strings.Split(content, "\n") {
		p := w.prefix
		if i == 0 && w.bullet != "" {
			p = w.bullet
			w.bullet = ""
		}
		w.out.WriteString(strings.TrimRight(p+line, " "))
		w.out.WriteByte('\n')
	}
	w.started = true
}

// blank separates a new block from the previous one.
func (w *walker) blank() {
	if w.started && !strings.HasSuffix(w.out.String(), "\n\n") {
		w.out.WriteByte('\n')
	}
}

func (w *walker) inTightList() bool {
	return len(w.lists) > 0 && w.lists[len(w.lists)-1].tight
}

// lastIndent is the continuation indent pushed by the innermost list item.
func (w *walker) lastIndent() string {
	top := w.lists[len(w.lists)-1]
	if !top.ordered {
		return "  "
	}
	return strings.Repeat(" ", len(fmt.Sprintf("%d. ", top.next-1)))
}
