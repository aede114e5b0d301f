// Package dedup decides which discovered announcements are new and folds
// delivered ones back into the seen-set.
//
// Both operations are pure: they read a seen.Set value and return results
// without touching shared state, so the run loop alone decides when the
// updated set becomes durable.
package dedup

import (
	"time"

	"github.com/hazyhaar/bullhorn/internal/extract"
	"github.com/hazyhaar/bullhorn/internal/seen"
)

// Partition returns the candidates whose identity is absent from the
// seen-set, in discovery order. An announcement delivered on a previous
// run is never returned, however often the portal keeps showing it.
func Partition(candidates []extract.Announcement, set seen.Set) []extract.Announcement {
	var fresh []extract.Announcement
	for _, c := range candidates {
		if !set.Has(c.Identity) {
			fresh = append(fresh, c)
		}
	}
	return fresh
}

// Commit returns a new set with one record per delivered announcement,
// capped to max records by evicting the oldest first. Identities already
// present keep their original FirstSeenAt. Announcements that failed to
// deliver must not be committed; leaving them out is what makes the next
// run retry them.
func Commit(delivered []extract.Announcement, set seen.Set, max int, now time.Time) seen.Set {
	records := make([]seen.Record, 0, len(delivered))
	for _, d := range delivered {
		if set.Has(d.Identity) {
			continue
		}
		records = append(records, seen.Record{
			Identity:    d.Identity,
			Title:       d.Title,
			FirstSeenAt: now,
		})
	}
	return set.Append(records...).Capped(max)
}
