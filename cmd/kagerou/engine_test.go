// cmd/kagerou/engine_test.go
package main

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ids(items []Item) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func batchOf(idList ...string) []Item {
	items := make([]Item, len(idList))
	for i, id := range idList {
		items[i] = Item{ID: id, Text: "post " + id}
	}
	return items
}

func TestCompareID(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},               // numeric: magnitude, not lexicographic
		{"10", "2", 1},
		{"5", "5", 0},
		{"0005", "5", 0},              // leading zeros don't matter
		{"1790000000000000001", "1790000000000000002", -1},
		{"abc", "abd", -1},            // non-numeric falls back to string order
		{"", "1", -1},
		{"a10", "a2", -1},             // mixed stays lexicographic
	}
	for _, tt := range tests {
		got := compareID(tt.a, tt.b)
		if sign(got) != tt.want {
			t.Errorf("compareID(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func TestComputeNewOrdering(t *testing.T) {
	// Batch [5, 2, 9, 2] with marker 1: deduplicated, ascending, marker 9.
	marker := SeenMarker{SubjectID: "acct", LastDeliveredID: "1"}
	fresh, proposed := computeNew(batchOf("5", "2", "9", "2"), marker, SkipBacklogOnFirstPoll)

	if diff := cmp.Diff([]string{"2", "5", "9"}, ids(fresh)); diff != "" {
		t.Errorf("new items mismatch (-want +got):\n%s", diff)
	}
	if proposed.LastDeliveredID != "9" {
		t.Errorf("proposed marker = %q, want 9", proposed.LastDeliveredID)
	}
}

func TestComputeNewEmptyBatch(t *testing.T) {
	for _, marker := range []SeenMarker{
		{SubjectID: "acct"},
		{SubjectID: "acct", LastDeliveredID: "42"},
	} {
		fresh, proposed := computeNew(nil, marker, SkipBacklogOnFirstPoll)
		if len(fresh) != 0 {
			t.Errorf("empty batch delivered %v", ids(fresh))
		}
		if diff := cmp.Diff(marker, proposed); diff != "" {
			t.Errorf("empty batch moved the marker (-want +got):\n%s", diff)
		}
	}
}

func TestComputeNewFirstPollSkip(t *testing.T) {
	// Descending-recency batch as fetched: newest first.
	fresh, proposed := computeNew(batchOf("12", "11", "10"), SeenMarker{SubjectID: "acct"}, SkipBacklogOnFirstPoll)

	if len(fresh) != 0 {
		t.Errorf("skip policy delivered backlog: %v", ids(fresh))
	}
	if proposed.LastDeliveredID != "12" {
		t.Errorf("marker initialized to %q, want newest 12", proposed.LastDeliveredID)
	}
}

func TestComputeNewFirstPollBackfill(t *testing.T) {
	fresh, proposed := computeNew(batchOf("12", "11", "10"), SeenMarker{SubjectID: "acct"}, DeliverBacklogOnFirstPoll)

	if diff := cmp.Diff([]string{"10", "11", "12"}, ids(fresh)); diff != "" {
		t.Errorf("backfill order mismatch (-want +got):\n%s", diff)
	}
	if proposed.LastDeliveredID != "12" {
		t.Errorf("proposed marker = %q, want 12", proposed.LastDeliveredID)
	}
}

func TestComputeNewNeverReturnsSeen(t *testing.T) {
	// No item at or below the marker is ever returned, and the marker never
	// regresses, across a sequence of ticks with overlapping batches.
	marker := SeenMarker{SubjectID: "acct"}
	batches := [][]Item{
		batchOf("3", "2", "1"),
		batchOf("3", "2", "1"),      // repeat: nothing new
		batchOf("5", "4", "3", "2"), // overlap
		batchOf("4", "5"),           // stale only
		batchOf("7", "7", "6"),
	}

	seen := map[string]bool{}
	for i, batch := range batches {
		fresh, proposed := computeNew(batch, marker, SkipBacklogOnFirstPoll)
		for _, it := range fresh {
			if seen[it.ID] {
				t.Fatalf("tick %d delivered duplicate id %s", i, it.ID)
			}
			if marker.LastDeliveredID != "" && compareID(it.ID, marker.LastDeliveredID) <= 0 {
				t.Fatalf("tick %d delivered id %s <= marker %s", i, it.ID, marker.LastDeliveredID)
			}
			seen[it.ID] = true
		}
		if marker.LastDeliveredID != "" && compareID(proposed.LastDeliveredID, marker.LastDeliveredID) < 0 {
			t.Fatalf("tick %d regressed marker %s -> %s", i, marker.LastDeliveredID, proposed.LastDeliveredID)
		}
		marker = proposed
	}

	if marker.LastDeliveredID != "7" {
		t.Errorf("final marker = %q, want 7", marker.LastDeliveredID)
	}
}

func TestComputeNewMarkerAdvancesWithoutDeliverables(t *testing.T) {
	// Everything in the batch was already seen; the marker still reflects
	// the max of batch and previous marker.
	marker := SeenMarker{SubjectID: "acct", LastDeliveredID: "20"}
	fresh, proposed := computeNew(batchOf("18", "19", "20"), marker, SkipBacklogOnFirstPoll)

	if len(fresh) != 0 {
		t.Errorf("stale batch delivered %v", ids(fresh))
	}
	if proposed.LastDeliveredID != "20" {
		t.Errorf("proposed marker = %q, want 20", proposed.LastDeliveredID)
	}
}

func TestComputeNewRecentMode(t *testing.T) {
	marker := SeenMarker{SubjectID: "acct"}

	// First poll under skip: seed the set, deliver nothing.
	fresh, marker := computeNewRecent(batchOf("b", "a"), marker, SkipBacklogOnFirstPoll)
	if len(fresh) != 0 {
		t.Fatalf("first poll delivered %v", ids(fresh))
	}

	// Second poll: one genuinely new item, one repeat with a non-monotonic ID.
	fresh, marker = computeNewRecent(batchOf("a", "c"), marker, SkipBacklogOnFirstPoll)
	if diff := cmp.Diff([]string{"c"}, ids(fresh)); diff != "" {
		t.Errorf("recent mode mismatch (-want +got):\n%s", diff)
	}

	for _, id := range []string{"a", "b", "c"} {
		if !containsID(marker.RecentIDs, id) {
			t.Errorf("recent set missing %s: %v", id, marker.RecentIDs)
		}
	}
}

func TestRecentSetTrimmed(t *testing.T) {
	marker := SeenMarker{SubjectID: "acct", LastDeliveredID: "0", RecentIDs: []string{"0"}}
	for i := 1; i <= recentSetLimit+50; i += 10 {
		var batch []Item
		for j := i; j < i+10; j++ {
			batch = append(batch, Item{ID: strconv.Itoa(j)})
		}
		_, marker = computeNewRecent(batch, marker, SkipBacklogOnFirstPoll)
	}
	if len(marker.RecentIDs) > recentSetLimit {
		t.Errorf("recent set grew to %d, limit is %d", len(marker.RecentIDs), recentSetLimit)
	}
}

func TestAdvancePartial(t *testing.T) {
	marker := SeenMarker{SubjectID: "acct", LastDeliveredID: "2"}
	fresh := batchOf("3", "4", "5")

	// Delivery of item 4 failed: only 3 was handed to the sink.
	partial := advancePartial(marker, fresh[:1], DedupeMarker)
	if partial.LastDeliveredID != "3" {
		t.Errorf("partial marker = %q, want 3", partial.LastDeliveredID)
	}

	// Nothing delivered: marker untouched.
	untouched := advancePartial(marker, nil, DedupeMarker)
	if diff := cmp.Diff(marker, untouched); diff != "" {
		t.Errorf("empty partial moved marker (-want +got):\n%s", diff)
	}

	// Next tick re-fetches and the tail comes back as new.
	next, _ := computeNew(batchOf("3", "4", "5", "6"), partial, SkipBacklogOnFirstPoll)
	if diff := cmp.Diff([]string{"4", "5", "6"}, ids(next)); diff != "" {
		t.Errorf("retry tail mismatch (-want +got):\n%s", diff)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
