// Package view derives display state from the ticket store and the analysis
// reconciler. It performs no I/O and never mutates its sources.
package view

import (
	"sort"

	"github.com/triagekit/triage/pkg/protocol"
)

// All is the neutral value for the category and priority filters.
const All = "all"

const (
	DefaultPendingPageSize  = 5
	DefaultAnalyzedPageSize = 3
)

// List identifies a paginated ticket list.
type List int

const (
	PendingList List = iota
	AnalyzedList
)

func (l List) String() string {
	if l == AnalyzedList {
		return "analyzed"
	}
	return "pending"
}

// Loading holds the in-flight flags of the session.
type Loading struct {
	Tickets   bool
	Creating  bool
	Analyzing bool
}

// TicketSource provides a consistent snapshot of every ticket.
type TicketSource interface {
	All() []protocol.Ticket
}

// AnalysisSource provides the latest run and the in-flight state.
type AnalysisSource interface {
	Latest() *protocol.AnalysisRun
	Running() bool
}

// LoadingSource provides loading flags.
type LoadingSource interface {
	Loading() Loading
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPageSizes sets the page sizes of the pending and analyzed lists.
// Non-positive values keep the defaults.
func WithPageSizes(pending, analyzed int) Option {
	return func(c *Coordinator) {
		if pending > 0 {
			c.pageSize[PendingList] = pending
		}
		if analyzed > 0 {
			c.pageSize[AnalyzedList] = analyzed
		}
	}
}

// Coordinator holds interaction state and computes frames. It is owned by a
// single UI loop and is not safe for concurrent use.
type Coordinator struct {
	tickets  TicketSource
	analysis AnalysisSource
	loading  LoadingSource

	pageSize [2]int
	page     [2]int
	expanded *ExpandedSet
	category string
	priority string
}

// New creates a Coordinator. loading may be nil.
func New(tickets TicketSource, analysis AnalysisSource, loading LoadingSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		tickets:  tickets,
		analysis: analysis,
		loading:  loading,
		pageSize: [2]int{DefaultPendingPageSize, DefaultAnalyzedPageSize},
		page:     [2]int{1, 1},
		expanded: NewExpandedSet(),
		category: All,
		priority: All,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PageSize returns the page size of list.
func (c *Coordinator) PageSize(list List) int { return c.pageSize[list] }

// NextPage advances list by one page, stopping at the last page.
func (c *Coordinator) NextPage(list List) {
	c.SetPage(list, c.clampedPage(list)+1)
}

// PrevPage moves list back one page, stopping at the first page.
func (c *Coordinator) PrevPage(list List) {
	c.SetPage(list, c.clampedPage(list)-1)
}

// SetPage jumps to page n of list, clamped into the valid range.
func (c *Coordinator) SetPage(list List, n int) {
	c.page[list] = clamp(n, totalPages(c.count(list), c.pageSize[list]))
}

// ToggleExpanded toggles the details of ticket id.
func (c *Coordinator) ToggleExpanded(id int64) bool {
	return c.expanded.Toggle(id)
}

// Expanded returns the expansion set.
func (c *Coordinator) Expanded() *ExpandedSet { return c.expanded }

// SetCategoryFilter restricts the analyzed list to category. Empty or All
// clears the filter.
func (c *Coordinator) SetCategoryFilter(category string) {
	if category == "" {
		category = All
	}
	c.category = category
}

// SetPriorityFilter restricts the analyzed list to priority. Empty or All
// clears the filter.
func (c *Coordinator) SetPriorityFilter(priority string) {
	if priority == "" {
		priority = All
	}
	c.priority = priority
}

// ClearFilters resets both filters to All.
func (c *Coordinator) ClearFilters() {
	c.category = All
	c.priority = All
}

// Filters returns the active category and priority filters.
func (c *Coordinator) Filters() (category, priority string) {
	return c.category, c.priority
}

// ListView is one paginated list in a Frame.
type ListView struct {
	Page       int
	TotalPages int
	PageSize   int
	// Total is the number of tickets after filtering.
	Total   int
	Tickets []protocol.Ticket
}

// HasNext reports whether a later page exists.
func (v ListView) HasNext() bool { return v.Page < v.TotalPages }

// HasPrev reports whether an earlier page exists.
func (v ListView) HasPrev() bool { return v.Page > 1 }

// Frame is everything a renderer needs for one draw.
type Frame struct {
	Pending  ListView
	Analyzed ListView

	// AnalyzedTotal counts analyzed tickets before filtering.
	AnalyzedTotal int
	Categories    []string

	CategoryFilter string
	PriorityFilter string
	Expanded       []int64

	Loading   Loading
	Analyzing bool

	Latest           *protocol.AnalysisRun
	LatestCategories map[string]int
	LatestPriorities map[protocol.Priority]int
}

// Frame computes the display state from the current sources. Pages are
// clamped to the current counts and the clamped values are kept.
func (c *Coordinator) Frame() Frame {
	pending, analyzed := splitByStatus(c.tickets.All())
	filtered := c.filterAnalyzed(analyzed)

	f := Frame{
		Pending:        c.paginate(PendingList, pending),
		Analyzed:       c.paginate(AnalyzedList, filtered),
		AnalyzedTotal:  len(analyzed),
		Categories:     categories(analyzed),
		CategoryFilter: c.category,
		PriorityFilter: c.priority,
		Expanded:       c.expanded.IDs(),
	}
	if c.loading != nil {
		f.Loading = c.loading.Loading()
	}
	if c.analysis != nil {
		f.Analyzing = c.analysis.Running() || f.Loading.Analyzing
		if run := c.analysis.Latest(); run != nil {
			f.Latest = run
			f.LatestCategories, f.LatestPriorities = runStats(run)
		}
	}
	return f
}

// splitByStatus partitions one snapshot so that no ticket lands in both
// lists. Anything not analyzed counts as pending.
func splitByStatus(all []protocol.Ticket) (pending, analyzed []protocol.Ticket) {
	pending, analyzed = []protocol.Ticket{}, []protocol.Ticket{}
	for _, t := range all {
		if t.IsAnalyzed() {
			analyzed = append(analyzed, t)
		} else {
			pending = append(pending, t)
		}
	}
	return pending, analyzed
}

func (c *Coordinator) paginate(list List, tickets []protocol.Ticket) ListView {
	size := c.pageSize[list]
	pages := totalPages(len(tickets), size)
	c.page[list] = clamp(c.page[list], pages)
	page := c.page[list]

	start := (page - 1) * size
	end := min(start+size, len(tickets))
	visible := []protocol.Ticket{}
	if start < end {
		visible = append(visible, tickets[start:end]...)
	}
	return ListView{
		Page:       page,
		TotalPages: pages,
		PageSize:   size,
		Total:      len(tickets),
		Tickets:    visible,
	}
}

func (c *Coordinator) count(list List) int {
	pending, analyzed := splitByStatus(c.tickets.All())
	if list == AnalyzedList {
		return len(c.filterAnalyzed(analyzed))
	}
	return len(pending)
}

func (c *Coordinator) clampedPage(list List) int {
	return clamp(c.page[list], totalPages(c.count(list), c.pageSize[list]))
}

func (c *Coordinator) filterAnalyzed(tickets []protocol.Ticket) []protocol.Ticket {
	if c.category == All && c.priority == All {
		return tickets
	}
	out := []protocol.Ticket{}
	for _, t := range tickets {
		if c.category != All && t.Category != c.category {
			continue
		}
		if c.priority != All && string(t.Priority) != c.priority {
			continue
		}
		out = append(out, t)
	}
	return out
}

func totalPages(count, size int) int {
	if size <= 0 || count <= 0 {
		return 1
	}
	return (count + size - 1) / size
}

func clamp(page, pages int) int {
	if page < 1 {
		return 1
	}
	if page > pages {
		return pages
	}
	return page
}

func categories(tickets []protocol.Ticket) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tickets {
		if t.Category == "" {
			continue
		}
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	sort.Strings(out)
	return out
}

func runStats(run *protocol.AnalysisRun) (map[string]int, map[protocol.Priority]int) {
	cats := make(map[string]int)
	prios := make(map[protocol.Priority]int)
	for _, ta := range run.TicketAnalyses {
		if ta.Category != "" {
			cats[ta.Category]++
		}
		if ta.Priority != "" {
			prios[ta.Priority]++
		}
	}
	return cats, prios
}
