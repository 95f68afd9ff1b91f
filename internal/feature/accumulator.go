package feature

import (
	"sync"
	"time"

	"logwarden/internal/types"
)

// FeatureVector represents what one IP did across the batch
type FeatureVector struct {
	IP            string
	Requests      int
	FailedLogins  int
	DistinctPaths map[string]bool
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Accumulator tracks per-IP traffic features and batch-wide counters
type Accumulator struct {
	mu       sync.Mutex
	features map[string]*FeatureVector
	order    []string
	statuses map[int]int
	perMin   map[int64]int
}

const (
	MaxPathsPerIP = 50
)

// NewAccumulator creates a new feature accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		features: make(map[string]*FeatureVector),
		statuses: make(map[int]int),
		perMin:   make(map[int64]int),
	}
}

// Add records one request
func (a *Accumulator) Add(rec types.RequestRecord) *FeatureVector {
	a.mu.Lock()
	defer a.mu.Unlock()

	feat, exists := a.features[rec.IP]
	if !exists {
		feat = &FeatureVector{
			IP:            rec.IP,
			DistinctPaths: make(map[string]bool),
			FirstSeen:     rec.Time,
			LastSeen:      rec.Time,
		}
		a.features[rec.IP] = feat
		a.order = append(a.order, rec.IP)
	}

	feat.Requests++
	if rec.IsFailedAuth() {
		feat.FailedLogins++
	}

	// Cap per-IP map growth
	if len(feat.DistinctPaths) < MaxPathsPerIP {
		feat.DistinctPaths[rec.URL] = true
	}

	if rec.Time.Before(feat.FirstSeen) {
		feat.FirstSeen = rec.Time
	}
	if rec.Time.After(feat.LastSeen) {
		feat.LastSeen = rec.Time
	}

	a.statuses[rec.Status]++
	a.perMin[rec.Time.Truncate(time.Minute).Unix()]++

	return feat
}

// AddAll records every request of a batch
func (a *Accumulator) AddAll(records []types.RequestRecord) {
	for _, r := range records {
		a.Add(r)
	}
}

// GetFeatures returns the current feature vector for an IP
func (a *Accumulator) GetFeatures(ip string) *FeatureVector {
	a.mu.Lock()
	defer a.mu.Unlock()
	if feat, ok := a.features[ip]; ok {
		return feat
	}
	return nil
}

// GetAll returns every vector in first-seen order
func (a *Accumulator) GetAll() []*FeatureVector {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*FeatureVector, 0, len(a.order))
	for _, ip := range a.order {
		out = append(out, a.features[ip])
	}
	return out
}

// ReplaceAll swaps the per-IP state, e.g. after loading it from the store.
// Status and per-minute counters are not part of a vector and are reset.
func (a *Accumulator) ReplaceAll(vectors []*FeatureVector) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.statuses = make(map[int]int)
	a.perMin = make(map[int64]int)
	a.features = make(map[string]*FeatureVector, len(vectors))
	a.order = a.order[:0]
	for _, v := range vectors {
		if _, dup := a.features[v.IP]; !dup {
			a.order = append(a.order, v.IP)
		}
		a.features[v.IP] = v
	}
}
