package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/triagekit/triage/pkg/protocol"
)

// Categories the classifiers may assign.
const (
	CategoryBilling        = "billing"
	CategoryBug            = "bug"
	CategoryFeatureRequest = "feature_request"
	CategoryAuthentication = "authentication"
	CategoryOther          = "other"
)

// Categories lists the valid categories.
var Categories = []string{CategoryBilling, CategoryBug, CategoryFeatureRequest, CategoryAuthentication, CategoryOther}

// KeywordNotes is the note attached to keyword classifications.
const KeywordNotes = "Auto-categorized based on keywords in title/description"

// Classification is the outcome for a single ticket.
type Classification struct {
	Category string            `json:"category"`
	Priority protocol.Priority `json:"priority"`
	Notes    string            `json:"notes"`
}

type keywordRule struct {
	category string
	words    []string
	// escalate lists words that raise the priority to high. When nil the
	// rule always yields priority.
	escalate []string
	priority protocol.Priority
}

// Rules are checked in order; the first match wins.
var keywordRules = []keywordRule{
	{CategoryBilling, []string{"payment", "billing", "invoice", "subscription", "charge"}, []string{"urgent", "critical", "asap"}, protocol.PriorityMedium},
	{CategoryBug, []string{"bug", "error", "crash", "broken", "not working"}, []string{"crash", "down", "critical"}, protocol.PriorityMedium},
	{CategoryFeatureRequest, []string{"feature", "enhancement", "request", "add", "new"}, nil, protocol.PriorityLow},
	{CategoryAuthentication, []string{"login", "password", "access", "permission"}, nil, protocol.PriorityHigh},
}

// ClassifyKeywords assigns a category and priority from substrings of the
// ticket title and description.
func ClassifyKeywords(t protocol.Ticket) Classification {
	text := strings.ToLower(t.Title + " " + t.Description)
	for _, r := range keywordRules {
		if !containsAny(text, r.words) {
			continue
		}
		prio := r.priority
		if containsAny(text, r.escalate) {
			prio = protocol.PriorityHigh
		}
		return Classification{Category: r.category, Priority: prio, Notes: KeywordNotes}
	}
	return Classification{Category: CategoryOther, Priority: protocol.PriorityMedium, Notes: KeywordNotes}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// SummarizeCounts builds a plain-text summary from classification counts.
// results holds one entry per ticket; nil entries count as failed.
func SummarizeCounts(total int, results []*Classification) string {
	if total == 0 {
		return "No tickets processed!"
	}

	categories := make(map[string]int)
	priorities := make(map[protocol.Priority]int)
	processed := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		processed++
		categories[r.Category]++
		priorities[protocol.Priority(strings.ToLower(string(r.Priority)))]++
	}

	parts := []string{fmt.Sprintf("Processed %d out of %d tickets.", processed, total)}
	if failed := total - processed; failed > 0 {
		parts = append(parts, fmt.Sprintf("%d tickets failed processing.", failed))
	}

	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	sort.Strings(names)
	if len(names) > 0 {
		counts := make([]string, len(names))
		for i, c := range names {
			counts[i] = fmt.Sprintf("%d %s", categories[c], c)
		}
		parts = append(parts, "Categories: "+strings.Join(counts, ", ")+".")
	}

	parts = append(parts, fmt.Sprintf("Priorities: %d high, %d medium, %d low.",
		priorities[protocol.PriorityHigh], priorities[protocol.PriorityMedium], priorities[protocol.PriorityLow]))

	if len(names) > 0 {
		top := names[0]
		for _, c := range names[1:] {
			if categories[c] > categories[top] {
				top = c
			}
		}
		parts = append(parts, fmt.Sprintf("Most common issue: %s (%d tickets).", top, categories[top]))
	}
	return strings.Join(parts, " ")
}
