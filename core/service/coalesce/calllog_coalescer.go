// Package coalesce turns committed annotated rows into the display read model.
package coalesce

import (
	"time"

	"calllog_server/core/domain"
	"calllog_server/core/port/out"
)

// Coalescer merges adjacent groupable rows. It keeps no state between calls:
// every read recomputes groups and day headers from scratch.
type Coalescer struct {
	sources    []out.DataSource
	policy     GroupingPolicy
	historyCap int
}

// NewCoalescer uses each source's Coalesce to merge the columns it owns.
func NewCoalescer(sources []out.DataSource, policy GroupingPolicy, historyCap int) *Coalescer {
	if historyCap <= 0 {
		historyCap = domain.MaxCallTypeHistory
	}
	return &Coalescer{
		sources:    sources,
		policy:     policy,
		historyCap: historyCap,
	}
}

// Coalesce expects rows newest-first (timestamp DESC, id DESC) and never
// reorders them.
func (c *Coalescer) Coalesce(rows []domain.AnnotatedRow, now time.Time) []domain.CoalescedRow {
	seq := newRowSequence(rows)
	out := make([]domain.CoalescedRow, 0, len(rows))

	for seq.HasNext() {
		first := seq.Next()
		group := []domain.AnnotatedRow{first}
		for {
			next, ok := seq.Peek()
			if !ok || !c.policy.Groupable(first, next) {
				break
			}
			group = append(group, seq.Next())
		}

		row := c.merge(group, now)
		row.ShowDayHeader = len(out) == 0 || out[len(out)-1].DayGroup != row.DayGroup
		out = append(out, row)
	}
	return out
}

func (c *Coalescer) merge(group []domain.AnnotatedRow, now time.Time) domain.CoalescedRow {
	first := group[0]

	all := make([]domain.Fields, len(group))
	ids := make([]int64, len(group))
	types := make([]domain.CallType, 0, c.historyCap)
	for i, r := range group {
		all[i] = r.Fields()
		ids[i] = r.ID
		if len(types) < c.historyCap {
			types = append(types, domain.CallType(r.CallType))
		}
	}

	fields := all[0].Clone()
	for _, src := range c.sources {
		fields.Merge(src.Coalesce(all))
	}

	return domain.CoalescedRow{
		ID:             first.ID,
		IDs:            ids,
		Timestamp:      first.Timestamp,
		Number:         first.Number,
		Fields:         fields,
		NumberCalls:    len(group),
		CallTypes:      types,
		DayGroup:       domain.DayGroupOf(first.Timestamp, now),
		LookupComplete: fields.Bool(domain.ColLookupComplete),
	}
}

// =============================================================================
// rowSequence
// =============================================================================

// rowSequence is a forward-only cursor with one row of lookahead.
type rowSequence struct {
	rows []domain.AnnotatedRow
	pos  int
}

func newRowSequence(rows []domain.AnnotatedRow) *rowSequence {
	return &rowSequence{rows: rows}
}

func (s *rowSequence) HasNext() bool {
	return s.pos < len(s.rows)
}

func (s *rowSequence) Peek() (domain.AnnotatedRow, bool) {
	if !s.HasNext() {
		return domain.AnnotatedRow{}, false
	}
	return s.rows[s.pos], true
}

func (s *rowSequence) Next() domain.AnnotatedRow {
	r := s.rows[s.pos]
	s.pos++
	return r
}
