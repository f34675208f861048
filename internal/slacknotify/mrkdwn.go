package slacknotify

import (
	"fmt"
	"strings"
)

// MarkdownToMrkdwn converts the Markdown produced by run summaries to
// Slack's mrkdwn dialect. Headings become bold lines, list markers become
// bullets, and inline emphasis, strikethrough and links are rewritten.
// Fenced code blocks pass through untouched.
func MarkdownToMrkdwn(md string) string {
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = convertLine(line)
	}
	return strings.Join(lines, "\n")
}

func convertLine(line string) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	body := line[len(indent):]

	if h := strings.TrimLeft(body, "#"); h != body && (h == "" || h[0] == ' ') {
		text := strings.TrimSpace(h)
		if text == "" {
			return ""
		}
		return indent + "*" + convertInline(text) + "*"
	}
	for _, marker := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(body, marker) {
			return indent + "• " + convertInline(body[len(marker):])
		}
	}
	return indent + convertInline(body)
}

func convertInline(s string) string {
	s = convertEmphasis(s)
	s = strings.ReplaceAll(s, "~~", "~")
	return convertLinks(s)
}

// convertEmphasis maps **bold** to *bold* and *italic* to _italic_ outside
// inline code spans.
func convertEmphasis(s string) string {
	var b strings.Builder
	inCode := false
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '`':
			inCode = !inCode
			b.WriteByte(ch)
		case ch == '*' && !inCode && i+1 < len(s) && s[i+1] == '*':
			b.WriteByte('*')
			i++
		case ch == '*' && !inCode:
			b.WriteByte('_')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// convertLinks rewrites [text](url) as <url|text>. Incomplete links are
// left as written.
func convertLinks(s string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '[')
		if open == -1 {
			break
		}
		mid := strings.Index(s[open:], "](")
		if mid == -1 {
			break
		}
		mid += open
		end := strings.IndexByte(s[mid:], ')')
		if end == -1 {
			break
		}
		end += mid
		b.WriteString(s[:open])
		fmt.Fprintf(&b, "<%s|%s>", s[mid+2:end], s[open+1:mid])
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}
