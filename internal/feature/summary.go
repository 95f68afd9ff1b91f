package feature

import (
	"cmp"
	"slices"
	"time"

	"logwarden/internal/types"
)

// Count pairs a label with how often it occurred
type Count[K any] struct {
	Key   K   `json:"key"`
	Count int `json:"count"`
}

// Summary holds the batch aggregates behind the traffic charts
type Summary struct {
	TotalRequests     int                `json:"total_requests"`
	TopIPs            []Count[string]    `json:"top_ips"`
	StatusCodes       []Count[int]       `json:"status_codes"`
	Attacks           []Count[string]    `json:"attacks"`
	RequestsPerMinute []Count[time.Time] `json:"requests_per_minute"`
	DoSCandidates     []Count[string]    `json:"dos_candidates"`
	DoSThreshold      int                `json:"dos_threshold"`
}

// Summarize computes the aggregates. topN bounds the IP lists; IPs with more
// than dosThreshold requests are DoS candidates.
func (a *Accumulator) Summarize(events []types.SuspiciousEvent, topN, dosThreshold int) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{DoSThreshold: dosThreshold}

	var ips []Count[string]
	for _, ip := range a.order {
		n := a.features[ip].Requests
		s.TotalRequests += n
		ips = append(ips, Count[string]{Key: ip, Count: n})
	}
	sortDesc(ips)
	s.TopIPs = head(ips, topN)

	var over []Count[string]
	for _, c := range ips {
		if c.Count > dosThreshold {
			over = append(over, c)
		}
	}
	s.DoSCandidates = head(over, topN)

	for code, n := range a.statuses {
		s.StatusCodes = append(s.StatusCodes, Count[int]{Key: code, Count: n})
	}
	slices.SortFunc(s.StatusCodes, func(x, y Count[int]) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Key, y.Key)
	})

	for minute, n := range a.perMin {
		s.RequestsPerMinute = append(s.RequestsPerMinute, Count[time.Time]{Key: time.Unix(minute, 0).UTC(), Count: n})
	}
	slices.SortFunc(s.RequestsPerMinute, func(x, y Count[time.Time]) int {
		return x.Key.Compare(y.Key)
	})

	perReason := make(map[types.Reason]int)
	for _, e := range events {
		perReason[e.Reason]++
	}
	for _, r := range types.Reasons {
		if n := perReason[r]; n > 0 {
			s.Attacks = append(s.Attacks, Count[string]{Key: r.Label(), Count: n})
		}
	}

	return s
}

// sortDesc orders by count, highest first; ties keep their current order
func sortDesc(cs []Count[string]) {
	slices.SortStableFunc(cs, func(x, y Count[string]) int {
		return cmp.Compare(y.Count, x.Count)
	})
}

func head[T any](xs []T, n int) []T {
	if n > 0 && len(xs) > n {
		return xs[:n]
	}
	return xs
}
