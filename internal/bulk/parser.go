// Package bulk turns user-supplied text and uploaded files into ticket
// creation records. Everything here is a pure function of its input.
package bulk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/triagekit/triage/pkg/protocol"
)

var (
	titleLine       = regexp.MustCompile(`(?i)^\s*title\s*:(.*)$`)
	descriptionLine = regexp.MustCompile(`(?i)^\s*description\s*:(.*)$`)
)

// ParseText extracts records from line-oriented text. Two forms are
// recognized, first match wins per line:
//
//	Title: <title>
//	Description: <description>
//
//	<title> | <description>
//
// Blank lines are ignored and unmatched lines are skipped. An empty result
// is not an error.
func ParseText(text string) []protocol.TicketCreate {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	records := []protocol.TicketCreate{}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}

		if rec, next, ok := matchTitlePair(lines, i); ok {
			records = append(records, rec)
			i = next
			continue
		}

		if rec, ok := matchPipe(line); ok {
			records = append(records, rec)
		}
	}
	return records
}

// matchTitlePair matches a Title line at i followed by a Description line on
// the next non-blank line. It returns the index of the consumed Description line.
func matchTitlePair(lines []string, i int) (protocol.TicketCreate, int, bool) {
	m := titleLine.FindStringSubmatch(lines[i])
	if m == nil {
		return protocol.TicketCreate{}, i, false
	}
	title := strings.TrimSpace(m[1])

	j := i + 1
	for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
		j++
	}
	if j >= len(lines) {
		return protocol.TicketCreate{}, i, false
	}
	d := descriptionLine.FindStringSubmatch(lines[j])
	if d == nil {
		return protocol.TicketCreate{}, i, false
	}
	desc := strings.TrimSpace(d[1])
	if title == "" || desc == "" {
		return protocol.TicketCreate{}, i, false
	}
	return protocol.TicketCreate{Title: title, Description: desc}, j, true
}

func matchPipe(line string) (protocol.TicketCreate, bool) {
	title, desc, found := strings.Cut(line, "|")
	if !found {
		return protocol.TicketCreate{}, false
	}
	title = strings.TrimSpace(title)
	desc = strings.TrimSpace(desc)
	if title == "" || desc == "" {
		return protocol.TicketCreate{}, false
	}
	return protocol.TicketCreate{Title: title, Description: desc}, true
}

// ParseJSON parses an uploaded JSON document. An array yields one record per
// element carrying non-empty string title and description fields; a single
// object yields at most one record. Comments and trailing commas are accepted.
func ParseJSON(data []byte) ([]protocol.TicketCreate, error) {
	var doc any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, &ParseError{Kind: MalformedJSON, Err: err}
	}
	return collect(doc)
}

// ParseYAML applies the ParseJSON record rules to a YAML document.
func ParseYAML(data []byte) ([]protocol.TicketCreate, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Kind: MalformedYAML, Err: err}
	}
	return collect(doc)
}

// ParseFile picks a parser from the file extension. Files that are neither
// JSON nor YAML are parsed as text; unlike ParseText, an empty result is
// reported as NoValidRecords.
func ParseFile(name string, data []byte) ([]protocol.TicketCreate, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	}

	// Extensionless uploads that look like JSON are still treated as JSON.
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return ParseJSON(data)
	}

	records := ParseText(string(data))
	if len(records) == 0 {
		return nil, &ParseError{Kind: NoValidRecords}
	}
	return records, nil
}

func collect(doc any) ([]protocol.TicketCreate, error) {
	var records []protocol.TicketCreate
	switch v := doc.(type) {
	case []any:
		for _, elem := range v {
			if rec, ok := recordFrom(elem); ok {
				records = append(records, rec)
			}
		}
	case map[string]any:
		if rec, ok := recordFrom(v); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, &ParseError{Kind: NoValidRecords}
	}
	return records, nil
}

func recordFrom(elem any) (protocol.TicketCreate, bool) {
	obj, ok := elem.(map[string]any)
	if !ok {
		return protocol.TicketCreate{}, false
	}
	title, ok1 := obj["title"].(string)
	desc, ok2 := obj["description"].(string)
	if !ok1 || !ok2 {
		return protocol.TicketCreate{}, false
	}
	title = strings.TrimSpace(title)
	desc = strings.TrimSpace(desc)
	if title == "" || desc == "" {
		return protocol.TicketCreate{}, false
	}
	return protocol.TicketCreate{Title: title, Description: desc}, true
}

// Format renders records in the Title/Description form accepted by ParseText.
func Format(records []protocol.TicketCreate) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Title: %s\nDescription: %s\n", r.Title, r.Description)
	}
	return b.String()
}
