// Package store defines the durable repository for pattern, usage-link,
// trajectory, and spike-event records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// Sentinel errors for store operations.
var (
	// ErrPatternNotFound is returned when a pattern ID does not exist.
	ErrPatternNotFound = errors.New("pattern not found")

	// ErrConflict is returned by UpdatePotential when the stored potential
	// no longer matches the caller's snapshot. Callers retry with a fresh
	// read.
	ErrConflict = errors.New("potential update conflict")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrNilRecord indicates a nil record was passed to a write operation.
	ErrNilRecord = errors.New("record cannot be nil")
)

// Store is the durable repository backing the analytics engine.
//
// Patterns, links, and trajectories are keyed by domain; spike events form
// an append-only log per domain. List operations return independent copies,
// so a loaded snapshot is safe to read while writers proceed. The engine
// writes back only cluster assignments and spiking state; record creation
// and deletion belong to the ingest side.
//
// Implementations:
//   - InMemoryStore: mutex-guarded maps (tests, ephemeral runs)
//   - BadgerStore: embedded BadgerDB (persistent)
type Store interface {
	// PutPattern inserts or replaces a pattern record.
	PutPattern(ctx context.Context, p *pattern.Pattern) error

	// GetPattern returns the pattern with the given ID.
	// Returns ErrPatternNotFound if it does not exist.
	GetPattern(ctx context.Context, id string) (*pattern.Pattern, error)

	// ListPatterns returns all patterns in a domain, ordered by ID.
	// Unknown domains yield an empty slice, not an error.
	ListPatterns(ctx context.Context, domain string) ([]*pattern.Pattern, error)

	// UpdateClusterAssignments persists cluster IDs for the given patterns
	// in one batch. Patterns absent from the map are left untouched.
	UpdateClusterAssignments(ctx context.Context, domain string, assignments map[string]int) error

	// UpdatePotential applies a compare-and-swap on a pattern's spike
	// potential: the write succeeds only while the stored value still
	// equals expected. A non-nil firedAt also records the firing time.
	// Returns ErrConflict when the snapshot is stale.
	UpdatePotential(ctx context.Context, id string, expected, next float64, firedAt *time.Time) error

	// ResetPotentials zeroes every spike potential in a domain and
	// returns the number of patterns updated.
	ResetPotentials(ctx context.Context, domain string) (int, error)

	// UpsertLink inserts or replaces a directed usage link. Link identity
	// is (domain, source, target), so re-running a build updates weights
	// in place.
	UpsertLink(ctx context.Context, link *pattern.UsageLink) error

	// ListLinks returns all usage links in a domain.
	ListLinks(ctx context.Context, domain string) ([]*pattern.UsageLink, error)

	// ListLinksFrom returns the outgoing usage links of one pattern.
	ListLinksFrom(ctx context.Context, domain, sourceID string) ([]*pattern.UsageLink, error)

	// PutTrajectory records a successful trajectory.
	PutTrajectory(ctx context.Context, t *pattern.Trajectory) error

	// ListTrajectories returns all recorded trajectories in a domain.
	ListTrajectories(ctx context.Context, domain string) ([]*pattern.Trajectory, error)

	// AppendSpikeEvent appends one event to the domain's spike log.
	AppendSpikeEvent(ctx context.Context, ev *pattern.SpikeEvent) error

	// ListSpikeEvents returns the spike events of a domain recorded at or
	// after since, oldest first. A zero since returns the full log.
	ListSpikeEvents(ctx context.Context, domain string, since time.Time) ([]*pattern.SpikeEvent, error)

	// Close releases the store's resources.
	Close() error
}
