package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
)

// Single-byte key prefixes. Compound keys use 0x00 separators; domains and
// pattern IDs never contain NUL bytes.
const (
	prefixPattern     = byte(0x01) // patternID -> JSON(Pattern)
	prefixDomainIndex = byte(0x02) // domain + 0x00 + patternID -> empty
	prefixLink        = byte(0x03) // domain + 0x00 + sourceID + 0x00 + targetID -> JSON(UsageLink)
	prefixTrajectory  = byte(0x04) // domain + 0x00 + trajectoryID -> JSON(Trajectory)
	prefixSpike       = byte(0x05) // domain + 0x00 + tsNano(8 BE) + seq(8 BE) -> JSON(SpikeEvent)
)

// BadgerOptions configures the Badger-backed store.
type BadgerOptions struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool
	// SyncWrites forces an fsync after every write.
	SyncWrites bool
}

// BadgerStore is a persistent Store backed by BadgerDB. Spike event keys
// embed a big-endian timestamp so iteration order is chronological.
type BadgerStore struct {
	db       *badger.DB
	spikeSeq atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewBadgerStore opens or creates a Badger database at opts.Path.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func patternKey(id string) []byte {
	return append([]byte{prefixPattern}, id...)
}

func domainIndexKey(domain, id string) []byte {
	key := make([]byte, 0, 1+len(domain)+1+len(id))
	key = append(key, prefixDomainIndex)
	key = append(key, domain...)
	key = append(key, 0x00)
	key = append(key, id...)
	return key
}

func domainIndexPrefix(domain string) []byte {
	key := make([]byte, 0, 1+len(domain)+1)
	key = append(key, prefixDomainIndex)
	key = append(key, domain...)
	key = append(key, 0x00)
	return key
}

func linkKeyBytes(domain, sourceID, targetID string) []byte {
	key := make([]byte, 0, 1+len(domain)+1+len(sourceID)+1+len(targetID))
	key = append(key, prefixLink)
	key = append(key, domain...)
	key = append(key, 0x00)
	key = append(key, sourceID...)
	key = append(key, 0x00)
	key = append(key, targetID...)
	return key
}

func linkPrefix(domain string) []byte {
	key := make([]byte, 0, 1+len(domain)+1)
	key = append(key, prefixLink)
	key = append(key, domain...)
	key = append(key, 0x00)
	return key
}

func linkSourcePrefix(domain, sourceID string) []byte {
	key := append(linkPrefix(domain), sourceID...)
	return append(key, 0x00)
}

func trajectoryKey(domain, id string) []byte {
	key := make([]byte, 0, 1+len(domain)+1+len(id))
	key = append(key, prefixTrajectory)
	key = append(key, domain...)
	key = append(key, 0x00)
	key = append(key, id...)
	return key
}

func trajectoryPrefix(domain string) []byte {
	key := make([]byte, 0, 1+len(domain)+1)
	key = append(key, prefixTrajectory)
	key = append(key, domain...)
	key = append(key, 0x00)
	return key
}

func (s *BadgerStore) spikeKey(domain string, ts time.Time) []byte {
	key := make([]byte, 0, 1+len(domain)+1+16)
	key = append(key, prefixSpike)
	key = append(key, domain...)
	key = append(key, 0x00)
	key = binary.BigEndian.AppendUint64(key, uint64(ts.UnixNano()))
	key = binary.BigEndian.AppendUint64(key, s.spikeSeq.Add(1))
	return key
}

func spikePrefix(domain string) []byte {
	key := make([]byte, 0, 1+len(domain)+1)
	key = append(key, prefixSpike)
	key = append(key, domain...)
	key = append(key, 0x00)
	return key
}

// patternIDFromIndexKey strips prefix + domain + separator from an index key.
func patternIDFromIndexKey(key []byte, domainLen int) string {
	offset := 1 + domainLen + 1
	if offset >= len(key) {
		return ""
	}
	return string(key[offset:])
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// PutPattern inserts or replaces a pattern record and its domain index entry.
func (s *BadgerStore) PutPattern(ctx context.Context, p *pattern.Pattern) error {
	if p == nil {
		return ErrNilRecord
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := patternKey(p.ID)

		// A re-put under a new domain must drop the stale index entry.
		item, err := txn.Get(key)
		if err == nil {
			var existing pattern.Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err != nil {
				return fmt.Errorf("decoding existing pattern: %w", err)
			}
			if existing.Domain != p.Domain {
				if err := txn.Delete(domainIndexKey(existing.Domain, p.ID)); err != nil {
					return err
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding pattern: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(domainIndexKey(p.Domain, p.ID), []byte{})
	})
}

// GetPattern retrieves a pattern by ID.
func (s *BadgerStore) GetPattern(ctx context.Context, id string) (*pattern.Pattern, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var p *pattern.Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(patternKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrPatternNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded pattern.Pattern
			if err := json.Unmarshal(val, &decoded); err != nil {
				return fmt.Errorf("decoding pattern: %w", err)
			}
			p = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPatterns returns all patterns in a domain, ordered by ID.
func (s *BadgerStore) ListPatterns(ctx context.Context, domain string) ([]*pattern.Pattern, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	result := []*pattern.Pattern{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := domainIndexPrefix(domain)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := patternIDFromIndexKey(it.Item().Key(), len(domain))
			if id == "" {
				continue
			}

			item, err := txn.Get(patternKey(id))
			if err != nil {
				continue
			}
			var p pattern.Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				continue
			}
			result = append(result, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateClusterAssignments persists cluster IDs for the given patterns.
// Unknown IDs and patterns outside the domain are skipped.
func (s *BadgerStore) UpdateClusterAssignments(ctx context.Context, domain string, assignments map[string]int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	now := time.Now()
	return s.db.Update(func(txn *badger.Txn) error {
		for id, clusterID := range assignments {
			key := patternKey(id)
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			var p pattern.Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return fmt.Errorf("decoding pattern: %w", err)
			}
			if p.Domain != domain {
				continue
			}

			cid := clusterID
			p.ClusterID = &cid
			p.UpdatedAt = now

			data, err := json.Marshal(&p)
			if err != nil {
				return fmt.Errorf("encoding pattern: %w", err)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdatePotential applies a compare-and-swap on a pattern's spike potential.
// Returns ErrConflict when the stored potential no longer matches expected,
// including when a concurrent transaction commits first.
func (s *BadgerStore) UpdatePotential(ctx context.Context, id string, expected, next float64, firedAt *time.Time) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := patternKey(id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrPatternNotFound
		}
		if err != nil {
			return err
		}

		var p pattern.Pattern
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		}); err != nil {
			return fmt.Errorf("decoding pattern: %w", err)
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

		data, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("encoding pattern: %w", err)
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}

// ResetPotentials zeroes every spike potential in a domain and reports how
// many patterns were touched.
func (s *BadgerStore) ResetPotentials(ctx context.Context, domain string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	count := 0
	now := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := domainIndexPrefix(domain)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := patternIDFromIndexKey(it.Item().Key(), len(domain))
			if id == "" {
				continue
			}

			key := patternKey(id)
			item, err := txn.Get(key)
			if err != nil {
				continue
			}
			var p pattern.Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				continue
			}

			p.SpikePotential = 0
			p.UpdatedAt = now

			data, err := json.Marshal(&p)
			if err != nil {
				return fmt.Errorf("encoding pattern: %w", err)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertLink inserts or replaces a directed usage link.
func (s *BadgerStore) UpsertLink(ctx context.Context, link *pattern.UsageLink) error {
	if link == nil {
		return ErrNilRecord
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encoding link: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(linkKeyBytes(link.Domain, link.SourceID, link.TargetID), data)
	})
}

func (s *BadgerStore) listLinksByPrefix(prefix []byte) ([]*pattern.UsageLink, error) {
	result := []*pattern.UsageLink{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var l pattern.UsageLink
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &l)
			}); err != nil {
				continue
			}
			result = append(result, &l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListLinks returns all usage links in a domain, ordered by source then target.
func (s *BadgerStore) ListLinks(ctx context.Context, domain string) ([]*pattern.UsageLink, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.listLinksByPrefix(linkPrefix(domain))
}

// ListLinksFrom returns one pattern's outgoing links, ordered by target.
func (s *BadgerStore) ListLinksFrom(ctx context.Context, domain, sourceID string) ([]*pattern.UsageLink, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.listLinksByPrefix(linkSourcePrefix(domain, sourceID))
}

// PutTrajectory records a successful trajectory.
func (s *BadgerStore) PutTrajectory(ctx context.Context, t *pattern.Trajectory) error {
	if t == nil {
		return ErrNilRecord
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding trajectory: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(trajectoryKey(t.Domain, t.ID), data)
	})
}

// ListTrajectories returns all trajectories in a domain.
func (s *BadgerStore) ListTrajectories(ctx context.Context, domain string) ([]*pattern.Trajectory, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	result := []*pattern.Trajectory{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := trajectoryPrefix(domain)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t pattern.Trajectory
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				continue
			}
			result = append(result, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AppendSpikeEvent appends one event to the domain's spike log.
func (s *BadgerStore) AppendSpikeEvent(ctx context.Context, ev *pattern.SpikeEvent) error {
	if ev == nil {
		return ErrNilRecord
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding spike event: %w", err)
	}
	key := s.spikeKey(ev.Domain, ev.Timestamp)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// ListSpikeEvents returns the domain's spike events recorded at or after
// since, oldest first. Key order makes iteration chronological.
func (s *BadgerStore) ListSpikeEvents(ctx context.Context, domain string, since time.Time) ([]*pattern.SpikeEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	result := []*pattern.SpikeEvent{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := spikePrefix(domain)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ev pattern.SpikeEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				continue
			}
			if ev.Timestamp.Before(since) {
				continue
			}
			result = append(result, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close closes the underlying database. Subsequent operations fail with
// ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
