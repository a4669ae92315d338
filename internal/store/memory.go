package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// InMemoryStore is a mutex-guarded in-memory implementation of Store.
// Suitable for tests and ephemeral runs; all reads return copies so loaded
// snapshots stay stable while writers proceed.
type InMemoryStore struct {
	mu           sync.RWMutex
	patterns     map[string]*pattern.Pattern      // pattern ID -> record
	links        map[string]*pattern.UsageLink    // domain|source|target -> record
	trajectories map[string][]*pattern.Trajectory // domain -> records
	spikes       map[string][]*pattern.SpikeEvent // domain -> append-only log
	closed       bool
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		patterns:     make(map[string]*pattern.Pattern),
		links:        make(map[string]*pattern.UsageLink),
		trajectories: make(map[string][]*pattern.Trajectory),
		spikes:       make(map[string][]*pattern.SpikeEvent),
	}
}

func linkKey(domain, sourceID, targetID string) string {
	return domain + "|" + sourceID + "|" + targetID
}

func clonePattern(p *pattern.Pattern) *pattern.Pattern {
	cp := *p
	cp.Embedding = append([]float32(nil), p.Embedding...)
	if p.ClusterID != nil {
		id := *p.ClusterID
		cp.ClusterID = &id
	}
	if p.LastFiredAt != nil {
		at := *p.LastFiredAt
		cp.LastFiredAt = &at
	}
	return &cp
}

// PutPattern inserts or replaces a pattern record.
func (s *InMemoryStore) PutPattern(ctx context.Context, p *pattern.Pattern) error {
	if p == nil {
		return ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.patterns[p.ID] = clonePattern(p)
	return nil
}

// GetPattern returns a copy of the pattern with the given ID.
func (s *InMemoryStore) GetPattern(ctx context.Context, id string) (*pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	p, ok := s.patterns[id]
	if !ok {
		return nil, ErrPatternNotFound
	}
	return clonePattern(p), nil
}

// ListPatterns returns copies of all patterns in a domain, ordered by ID.
func (s *InMemoryStore) ListPatterns(ctx context.Context, domain string) ([]*pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	result := []*pattern.Pattern{}
	for _, p := range s.patterns {
		if p.Domain == domain {
			result = append(result, clonePattern(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateClusterAssignments persists cluster IDs for the given patterns.
func (s *InMemoryStore) UpdateClusterAssignments(ctx context.Context, domain string, assignments map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	now := time.Now()
	for id, clusterID := range assignments {
		p, ok := s.patterns[id]
		if !ok || p.Domain != domain {
			continue
		}
		cid := clusterID
		p.ClusterID = &cid
		p.UpdatedAt = now
	}
	return nil
}

// UpdatePotential applies a compare-and-swap on a pattern's spike potential.
func (s *InMemoryStore) UpdatePotential(ctx context.Context, id string, expected, next float64, firedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	p, ok := s.patterns[id]
	if !ok {
		return ErrPatternNotFound
	}
	if p.SpikePotential != expected {
		return ErrConflict
	}

	p.SpikePotential = next
	if firedAt != nil {
		at := *firedAt
		p.LastFiredAt = &at
	}
	p.UpdatedAt = time.Now()
	return nil
}

// ResetPotentials zeroes every spike potential in a domain.
func (s *InMemoryStore) ResetPotentials(ctx context.Context, domain string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	count := 0
	now := time.Now()
	for _, p := range s.patterns {
		if p.Domain != domain {
			continue
		}
		p.SpikePotential = 0
		p.UpdatedAt = now
		count++
	}
	return count, nil
}

// UpsertLink inserts or replaces a directed usage link.
func (s *InMemoryStore) UpsertLink(ctx context.Context, link *pattern.UsageLink) error {
	if link == nil {
		return ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	cp := *link
	s.links[linkKey(link.Domain, link.SourceID, link.TargetID)] = &cp
	return nil
}

// ListLinks returns copies of all usage links in a domain.
func (s *InMemoryStore) ListLinks(ctx context.Context, domain string) ([]*pattern.UsageLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	result := []*pattern.UsageLink{}
	for _, l := range s.links {
		if l.Domain == domain {
			cp := *l
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SourceID != result[j].SourceID {
			return result[i].SourceID < result[j].SourceID
		}
		return result[i].TargetID < result[j].TargetID
	})
	return result, nil
}

// ListLinksFrom returns copies of one pattern's outgoing links.
func (s *InMemoryStore) ListLinksFrom(ctx context.Context, domain, sourceID string) ([]*pattern.UsageLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	result := []*pattern.UsageLink{}
	for _, l := range s.links {
		if l.Domain == domain && l.SourceID == sourceID {
			cp := *l
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TargetID < result[j].TargetID })
	return result, nil
}

// PutTrajectory records a successful trajectory.
func (s *InMemoryStore) PutTrajectory(ctx context.Context, t *pattern.Trajectory) error {
	if t == nil {
		return ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	cp := *t
	cp.PatternIDs = append([]string(nil), t.PatternIDs...)
	s.trajectories[t.Domain] = append(s.trajectories[t.Domain], &cp)
	return nil
}

// ListTrajectories returns copies of all trajectories in a domain.
func (s *InMemoryStore) ListTrajectories(ctx context.Context, domain string) ([]*pattern.Trajectory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	result := make([]*pattern.Trajectory, 0, len(s.trajectories[domain]))
	for _, t := range s.trajectories[domain] {
		cp := *t
		cp.PatternIDs = append([]string(nil), t.PatternIDs...)
		result = append(result, &cp)
	}
	return result, nil
}

// AppendSpikeEvent appends one event to the domain's spike log.
func (s *InMemoryStore) AppendSpikeEvent(ctx context.Context, ev *pattern.SpikeEvent) error {
	if ev == nil {
		return ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	cp := *ev
	s.spikes[ev.Domain] = append(s.spikes[ev.Domain], &cp)
	return nil
}

// ListSpikeEvents returns the domain's spike events recorded at or after
// since, oldest first.
func (s *InMemoryStore) ListSpikeEvents(ctx context.Context, domain string, since time.Time) ([]*pattern.SpikeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	result := []*pattern.SpikeEvent{}
	for _, ev := range s.spikes[domain] {
		if !ev.Timestamp.Before(since) {
			cp := *ev
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Close marks the store closed; subsequent operations fail with ErrClosed.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
