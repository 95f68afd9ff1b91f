// Package window holds the batch grouping steps used by the burst and volume
// rules: partition into fixed time buckets, group by key, keep groups that pass
// a predicate, and flatten the survivors back into their members.
package window

import (
	"slices"
	"time"
)

// Bucket is one fixed-size time window and the items that fall in it
type Bucket[T any] struct {
	Start time.Time
	Items []T
}

// Group is the set of items sharing a key
type Group[K comparable, T any] struct {
	Key   K
	Items []T
}

// Len returns the number of members
func (g Group[K, T]) Len() int {
	return len(g.Items)
}

// Align returns the start of the fixed window containing t. Windows are aligned
// to absolute time, so every :00, :05, :10 ... boundary is shared by all
// records regardless of their zone offset.
func Align(t time.Time, size time.Duration) time.Time {
	return t.Truncate(size)
}

// Partition splits items into non-overlapping windows of the given size.
// Buckets are ordered by start time; items keep their input order.
func Partition[T any](items []T, size time.Duration, at func(T) time.Time) []Bucket[T] {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	// keyed on the UTC instant; UnixNano overflows outside 1678-2262
	index := make(map[time.Time]int)
	var buckets []Bucket[T]
	for _, item := range items {
		start := Align(at(item), size).UTC()
		i, ok := index[start]
		if !ok {
			i = len(buckets)
			index[start] = i
			buckets = append(buckets, Bucket[T]{Start: start})
		}
		buckets[i].Items = append(buckets[i].Items, item)
	}

	slices.SortStableFunc(buckets, func(a, b Bucket[T]) int {
		return a.Start.Compare(b.Start)
	})
	return buckets
}

// GroupBy collects items by key. Groups are ordered by first appearance.
func GroupBy[K comparable, T any](items []T, key func(T) K) []Group[K, T] {
	index := make(map[K]int)
	var groups []Group[K, T]
	for _, item := range items {
		k := key(item)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[K, T]{Key: k})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// FilterGroups keeps the groups for which keep returns true
func FilterGroups[K comparable, T any](groups []Group[K, T], keep func(Group[K, T]) bool) []Group[K, T] {
	var out []Group[K, T]
	for _, g := range groups {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

// Flatten returns every member of every group, group by group
func Flatten[K comparable, T any](groups []Group[K, T]) []T {
	var out []T
	for _, g := range groups {
		out = append(out, g.Items...)
	}
	return out
}

// MoreThan is a FilterGroups predicate matching groups with over n members
func MoreThan[K comparable, T any](n int) func(Group[K, T]) bool {
	return func(g Group[K, T]) bool {
		return g.Len() > n
	}
}
