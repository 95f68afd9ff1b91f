// Package report builds the incident summary of a detection run and renders it
// as the plain-text incident report and as a styled terminal summary.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"logwarden/internal/types"
)

// DefaultTopN is how many events each reason section lists
const DefaultTopN = 10

// Build summarizes events. Sections follow rule order and only exist for
// reasons that occur; each lists its first topN events in event order.
func Build(events []types.SuspiciousEvent, topN int) types.IncidentReport {
	if topN <= 0 {
		topN = DefaultTopN
	}

	ips := make(map[string]struct{})
	byReason := make(map[types.Reason][]types.SuspiciousEvent)
	for _, e := range events {
		ips[e.IP] = struct{}{}
		if len(byReason[e.Reason]) < topN {
			byReason[e.Reason] = append(byReason[e.Reason], e)
		}
	}

	r := types.IncidentReport{
		TotalEvents: len(events),
		DistinctIPs: len(ips),
	}
	for _, reason := range types.Reasons {
		if evts, ok := byReason[reason]; ok {
			r.Sections = append(r.Sections, types.ReportSection{Reason: reason, Events: evts})
		}
	}
	return r
}

// Write renders the report in its text form
func Write(w io.Writer, r types.IncidentReport) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "=== INCIDENT REPORT ===")
	fmt.Fprintf(bw, "Total suspicious events detected: %d\n", r.TotalEvents)
	fmt.Fprintf(bw, "Unique IPs involved: %d\n", r.DistinctIPs)
	fmt.Fprintln(bw)

	for _, s := range r.Sections {
		fmt.Fprintf(bw, "--- %s ---\n", strings.ToUpper(s.Reason.Label()))
		for _, e := range s.Events {
			fmt.Fprintln(bw, Line(e))
		}
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}

// Line formats one event as it appears in a report section
func Line(e types.SuspiciousEvent) string {
	return fmt.Sprintf("IP: %s | Time: %s | URL: %s", e.IP, e.Time.Format(types.TimeLayout), e.URL)
}
