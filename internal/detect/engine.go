package detect

import (
	"slices"
	"time"

	"logwarden/internal/types"
)

// Rule flags records of a batch for one reason
type Rule struct {
	Reason      types.Reason
	Description string
	// Match returns the indices of flagged records in ascending order
	Match func(records []types.RequestRecord) []int
}

// Engine is the core detection engine
type Engine struct {
	burstWindow    time.Duration
	burstThreshold int
	dosThreshold   int
	rules          []Rule
}

// Option tunes an Engine
type Option func(*Engine)

// WithBurstWindow sets the width of the brute-force burst windows
func WithBurstWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.burstWindow = d
		}
	}
}

// WithBurstThreshold sets how many failures per window an IP may have before
// all of them are flagged
func WithBurstThreshold(n int) Option {
	return func(e *Engine) { e.burstThreshold = n }
}

// WithDoSThreshold sets how many requests an IP may make in the batch before
// all of them are flagged
func WithDoSThreshold(n int) Option {
	return func(e *Engine) { e.dosThreshold = n }
}

// NewEngine creates a detection engine with the default rule set
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		burstWindow:    5 * time.Minute,
		burstThreshold: 3,
		dosThreshold:   30,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = e.defaultRules()
	return e
}

// Rules returns the loaded rules in application order
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Detect applies every rule to the batch and returns the deduplicated events.
// Events are ordered by rule, then by record position.
func (e *Engine) Detect(records []types.RequestRecord) []types.SuspiciousEvent {
	var events []types.SuspiciousEvent
	for _, rule := range e.rules {
		for _, i := range rule.Match(records) {
			events = append(events, types.SuspiciousEvent{
				RequestRecord: records[i],
				Reason:        rule.Reason,
			})
		}
	}
	return Dedup(events)
}

// Dedup drops events equal to an earlier one on every field, reason included
func Dedup(events []types.SuspiciousEvent) []types.SuspiciousEvent {
	seen := make(map[types.Key]struct{}, len(events))
	out := make([]types.SuspiciousEvent, 0, len(events))
	for _, evt := range events {
		k := evt.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, evt)
	}
	return out
}

func (e *Engine) defaultRules() []Rule {
	return []Rule{
		{
			Reason:      types.ReasonFailedLogin,
			Description: "Response status 401 or 403",
			Match:       each(types.RequestRecord.IsFailedAuth),
		},
		{
			Reason:      types.ReasonBruteForceBurst,
			Description: "More failed logins from one IP than allowed within a fixed window",
			Match:       e.matchBurst,
		},
		{
			Reason:      types.ReasonSQLInjection,
			Description: "URL carries SQL injection tokens",
			Match:       each(func(r types.RequestRecord) bool { return IsSQLInjection(r.URL) }),
		},
		{
			Reason:      types.ReasonXSS,
			Description: "URL carries a script tag",
			Match:       each(func(r types.RequestRecord) bool { return IsXSS(r.URL) }),
		},
		{
			Reason:      types.ReasonDoS,
			Description: "More requests from one IP than allowed across the batch",
			Match:       e.matchVolume,
		},
	}
}

// each builds a Match func from a per-record condition
func each(cond func(types.RequestRecord) bool) func([]types.RequestRecord) []int {
	return func(records []types.RequestRecord) []int {
		var idx []int
		for i, r := range records {
			if cond(r) {
				idx = append(idx, i)
			}
		}
		return idx
	}
}

func ascending(idx []int) []int {
	slices.Sort(idx)
	return idx
}
