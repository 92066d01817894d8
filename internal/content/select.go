package content

import (
	"sort"
	"strings"
)

// SelectNext picks the next item to deliver from one owner's items.
//
// Delivered items and drafts are never picked. Among the rest the lowest
// readiness priority wins, then the earliest CreatedAt, then the smallest ID.
func SelectNext(items []Item) (Item, bool) {
	var (
		best  Item
		found bool
	)
	for _, it := range items {
		if it.Delivered || !it.Readiness.Eligible() {
			continue
		}
		if !found || before(it, best) {
			best, found = it, true
		}
	}
	return best, found
}

func before(a, b Item) bool {
	if pa, pb := a.Readiness.Priority(), b.Readiness.Priority(); pa != pb {
		return pa < pb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return strings.Compare(a.ID, b.ID) < 0
}

func sortForSelection(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return before(items[i], items[j]) })
}
