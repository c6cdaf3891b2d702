// cmd/kagerou/engine.go
//
// The deduplication and ordering engine. Pure functions only: the scheduler
// owns all I/O, these decide what is new and where the marker should land.
package main

import (
	"sort"
	"strings"
)

// compareID is the total order over item IDs. Snowflake-style numeric IDs
// compare by magnitude: the shorter digit string is smaller, equal lengths
// compare lexicographically. Anything non-numeric falls back to a plain
// string compare. Ordering never consults timestamps.
func compareID(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if isDigits(a) && isDigits(b) {
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// maxID returns the greater of two IDs, treating "" as the minimum.
func maxID(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if compareID(a, b) >= 0 {
		return a
	}
	return b
}

// dedupeAscending collapses duplicate IDs and returns the remaining items
// sorted ascending by ID. Items without an ID are dropped; the adapter
// boundary should never produce them, but scraped batches occasionally do.
func dedupeAscending(batch []Item) []Item {
	seen := make(map[string]bool, len(batch))
	out := make([]Item, 0, len(batch))
	for _, it := range batch {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		return compareID(out[i].ID, out[j].ID) < 0
	})
	return out
}

// computeNew selects the genuinely new items from a raw batch given the
// subject's marker, and proposes the marker value to persist after delivery.
//
// The batch may be empty, arrive in any order and contain duplicate IDs. The
// returned items are deduplicated and sorted ascending by ID, so a channel
// read top-to-bottom sees chronological order. The proposed marker is the
// maximum ID across the batch and the previous marker; it never regresses,
// even when nothing is deliverable. An empty batch changes nothing.
//
// On the first-ever poll (null marker) the policy decides: skip initializes
// the marker to the newest batch ID and delivers nothing, backfill delivers
// the whole batch oldest-first.
func computeNew(batch []Item, marker SeenMarker, policy FirstPollPolicy) ([]Item, SeenMarker) {
	if len(batch) == 0 {
		return nil, marker
	}

	ordered := dedupeAscending(batch)
	if len(ordered) == 0 {
		return nil, marker
	}
	newest := ordered[len(ordered)-1].ID

	proposed := marker
	proposed.LastDeliveredID = maxID(marker.LastDeliveredID, newest)

	if marker.IsNull() {
		if policy == DeliverBacklogOnFirstPoll {
			return ordered, proposed
		}
		return nil, proposed
	}

	var fresh []Item
	for _, it := range ordered {
		if compareID(it.ID, marker.LastDeliveredID) > 0 {
			fresh = append(fresh, it)
		}
	}
	return fresh, proposed
}

// computeNewRecent is the membership variant of computeNew, for sources whose
// IDs are not strictly monotonic. "New" means "not in the recent-ID set"; the
// proposed marker carries the union, trimmed to the most recent entries.
func computeNewRecent(batch []Item, marker SeenMarker, policy FirstPollPolicy) ([]Item, SeenMarker) {
	if len(batch) == 0 {
		return nil, marker
	}

	ordered := dedupeAscending(batch)
	if len(ordered) == 0 {
		return nil, marker
	}

	if marker.IsNull() && policy != DeliverBacklogOnFirstPoll {
		proposed := marker
		proposed.RecentIDs = trimRecent(itemIDs(ordered))
		proposed.LastDeliveredID = maxID(marker.LastDeliveredID, ordered[len(ordered)-1].ID)
		return nil, proposed
	}

	known := make(map[string]bool, len(marker.RecentIDs))
	for _, id := range marker.RecentIDs {
		known[id] = true
	}

	var fresh []Item
	for _, it := range ordered {
		if !known[it.ID] {
			fresh = append(fresh, it)
		}
	}

	proposed := marker
	proposed.RecentIDs = trimRecent(append(append([]string{}, marker.RecentIDs...), itemIDs(fresh)...))
	proposed.LastDeliveredID = maxID(marker.LastDeliveredID, ordered[len(ordered)-1].ID)
	return fresh, proposed
}

// advancePartial computes the marker to persist when delivery stopped partway
// through a batch: progress covers only what was actually handed to the sink,
// so the next tick re-fetches and re-attempts the tail.
func advancePartial(marker SeenMarker, delivered []Item, mode DedupeMode) SeenMarker {
	if len(delivered) == 0 {
		return marker
	}
	out := marker
	out.LastDeliveredID = maxID(marker.LastDeliveredID, delivered[len(delivered)-1].ID)
	if mode == DedupeRecent {
		out.RecentIDs = trimRecent(append(append([]string{}, marker.RecentIDs...), itemIDs(delivered)...))
	}
	return out
}

func itemIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func trimRecent(ids []string) []string {
	if len(ids) > recentSetLimit {
		ids = ids[len(ids)-recentSetLimit:]
	}
	return ids
}
