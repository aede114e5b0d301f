// Package seen owns the bot's only durable state: the set of announcement
// identities that have already been delivered.
package seen

import (
	"sort"
	"time"
)

// Record marks one historically delivered announcement.
type Record struct {
	Identity    string    `json:"identity"`
	Title       string    `json:"title"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// Set is an insertion-ordered collection of records, unique by identity.
// Sets behave as values: every operation returns a new Set and never
// mutates its receiver, so one run can thread a set through partition,
// commit and save without aliasing surprises.
type Set struct {
	records []Record
	index   map[string]struct{}
}

// NewSet builds a Set from records. Duplicate identities keep the first
// occurrence.
func NewSet(records ...Record) Set {
	s := Set{index: make(map[string]struct{}, len(records))}
	for _, r := range records {
		if _, ok := s.index[r.Identity]; ok {
			continue
		}
		s.index[r.Identity] = struct{}{}
		s.records = append(s.records, r)
	}
	return s
}

// Has reports whether the identity was already delivered.
func (s Set) Has(identity string) bool {
	_, ok := s.index[identity]
	return ok
}

// Len returns the number of records.
func (s Set) Len() int { return len(s.records) }

// Records returns a copy of the records in insertion order.
func (s Set) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Append returns a new Set with the given records added. Identities
// already present are skipped, first occurrence wins.
func (s Set) Append(records ...Record) Set {
	return NewSet(append(s.Records(), records...)...)
}

// Capped returns a new Set holding at most max records. When over the
// cap, the records with the oldest FirstSeenAt are evicted first; the
// survivors keep their insertion order. max <= 0 means unbounded.
func (s Set) Capped(max int) Set {
	if max <= 0 || len(s.records) <= max {
		return NewSet(s.records...)
	}

	evict := len(s.records) - max
	byAge := make([]int, len(s.records))
	for i := range byAge {
		byAge[i] = i
	}
	sort.SliceStable(byAge, func(a, b int) bool {
		return s.records[byAge[a]].FirstSeenAt.Before(s.records[byAge[b]].FirstSeenAt)
	})

	dropped := make(map[int]struct{}, evict)
	for _, i := range byAge[:evict] {
		dropped[i] = struct{}{}
	}

	kept := make([]Record, 0, max)
	for i, r := range s.records {
		if _, gone := dropped[i]; gone {
			continue
		}
		kept = append(kept, r)
	}
	return NewSet(kept...)
}
