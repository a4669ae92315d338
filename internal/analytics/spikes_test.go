package analytics

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patternd/internal/pattern"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

func seedLink(t *testing.T, st store.Store, domain, src, dst string, weight float64) {
	t.Helper()
	l, err := pattern.NewUsageLink(domain, src, dst, weight)
	require.NoError(t, err)
	require.NoError(t, st.UpsertLink(context.Background(), l))
}

// selectiveConflictStore conflicts on potential updates for chosen patterns
// only.
type selectiveConflictStore struct {
	store.Store
	conflictIDs map[string]bool
}

func (s *selectiveConflictStore) UpdatePotential(ctx context.Context, id string, expected, next float64, firedAt *time.Time) error {
	if s.conflictIDs[id] {
		return store.ErrConflict
	}
	return s.Store.UpdatePotential(ctx, id, expected, next, firedAt)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*pattern.SpikeEvent
	err    error
}

func (m *mockPublisher) PublishSpike(ctx context.Context, ev *pattern.SpikeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) published() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestService_FireSpike(t *testing.T) {
	ctx := context.Background()

	t.Run("source always fires and resets", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedPattern(t, st, "src", "ops", []float32{1, 0})
		require.NoError(t, st.UpdatePotential(ctx, "src", 0, 0.4, nil))

		events, err := svc.FireSpike(ctx, "src")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "src", events[0].FiredPattern)
		assert.Equal(t, "ops", events[0].Domain)
		assert.True(t, events[0].DidFire)
		assert.Equal(t, 0.0, events[0].NewPotential)

		p, err := st.GetPattern(ctx, "src")
		require.NoError(t, err)
		assert.Equal(t, 0.0, p.SpikePotential)
		require.NotNil(t, p.LastFiredAt)
		assert.WithinDuration(t, time.Now(), *p.LastFiredAt, time.Second)
	})

	t.Run("propagates one hop along outgoing links", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedPattern(t, st, "src", "ops", []float32{1, 0})
		seedPattern(t, st, "t-strong", "ops", []float32{0.9, 0.1})
		seedPattern(t, st, "t-weak", "ops", []float32{0.8, 0.2})
		seedPattern(t, st, "bystander", "ops", []float32{0, 1})
		seedLink(t, st, "ops", "src", "t-strong", 0.9)
		seedLink(t, st, "ops", "src", "t-weak", 0.05)

		events, err := svc.FireSpike(ctx, "src")
		require.NoError(t, err)
		require.Len(t, events, 3)

		// Source first, then targets in link order
		assert.Equal(t, "src", events[0].FiredPattern)
		assert.Equal(t, "t-strong", events[1].FiredPattern)
		assert.False(t, events[1].DidFire)
		assert.InDelta(t, 0.09, events[1].NewPotential, 1e-9)
		assert.Equal(t, "t-weak", events[2].FiredPattern)
		assert.InDelta(t, 0.005, events[2].NewPotential, 1e-9)

		strong, err := st.GetPattern(ctx, "t-strong")
		require.NoError(t, err)
		assert.InDelta(t, 0.09, strong.SpikePotential, 1e-9)
		assert.Nil(t, strong.LastFiredAt)

		// Unlinked patterns are untouched
		bystander, err := st.GetPattern(ctx, "bystander")
		require.NoError(t, err)
		assert.Equal(t, 0.0, bystander.SpikePotential)
	})

	t.Run("downstream neuron near threshold fires", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedPattern(t, st, "src", "ops", []float32{1, 0})
		seedPattern(t, st, "charged", "ops", []float32{0.9, 0.1})
		seedLink(t, st, "ops", "src", "charged", 0.9)
		require.NoError(t, st.UpdatePotential(ctx, "charged", 0, 1.05, nil))

		// 1.05*0.9 + 0.9*0.1 = 1.035 crosses the threshold
		events, err := svc.FireSpike(ctx, "src")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.True(t, events[1].DidFire)
		assert.Equal(t, 0.0, events[1].NewPotential)

		charged, err := st.GetPattern(ctx, "charged")
		require.NoError(t, err)
		assert.Equal(t, 0.0, charged.SpikePotential)
		assert.NotNil(t, charged.LastFiredAt)
	})

	t.Run("events are persisted to the spike log", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedPattern(t, st, "src", "ops", []float32{1, 0})

		_, err := svc.FireSpike(ctx, "src")
		require.NoError(t, err)

		logged, err := st.ListSpikeEvents(ctx, "ops", time.Time{})
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, "src", logged[0].FiredPattern)
		assert.True(t, logged[0].DidFire)
	})

	t.Run("events are published", func(t *testing.T) {
		st := store.NewInMemoryStore()
		pub := &mockPublisher{}
		svc := newTestService(t, st, WithPublisher(pub))
		seedPattern(t, st, "src", "ops", []float32{1, 0})
		seedPattern(t, st, "tgt", "ops", []float32{0.9, 0.1})
		seedLink(t, st, "ops", "src", "tgt", 0.5)

		events, err := svc.FireSpike(ctx, "src")
		require.NoError(t, err)
		assert.Equal(t, len(events), pub.published())
	})

	t.Run("publisher failure does not fail the spike", func(t *testing.T) {
		st := store.NewInMemoryStore()
		pub := &mockPublisher{err: fmt.Errorf("broker down")}
		svc := newTestService(t, st, WithPublisher(pub))
		seedPattern(t, st, "src", "ops", []float32{1, 0})

		events, err := svc.FireSpike(ctx, "src")
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("unknown pattern", func(t *testing.T) {
		svc := newTestService(t, store.NewInMemoryStore())

		_, err := svc.FireSpike(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrPatternNotFound)
	})

	t.Run("empty pattern id", func(t *testing.T) {
		svc := newTestService(t, store.NewInMemoryStore())

		_, err := svc.FireSpike(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyPatternID)
	})

	t.Run("source retry exhaustion drops the spike", func(t *testing.T) {
		inner := store.NewInMemoryStore()
		svc := newTestService(t, &conflictStore{Store: inner})
		seedPattern(t, inner, "src", "ops", []float32{1, 0})

		events, err := svc.FireSpike(ctx, "src")
		assert.ErrorIs(t, err, ErrSpikeNotRecorded)
		assert.Nil(t, events)

		// Nothing was logged for the dropped spike
		logged, err := inner.ListSpikeEvents(ctx, "ops", time.Time{})
		require.NoError(t, err)
		assert.Empty(t, logged)
	})

	t.Run("downstream retry exhaustion skips that neuron", func(t *testing.T) {
		inner := store.NewInMemoryStore()
		svc := newTestService(t, &selectiveConflictStore{
			Store:       inner,
			conflictIDs: map[string]bool{"t-stuck": true},
		})
		seedPattern(t, inner, "src", "ops", []float32{1, 0})
		seedPattern(t, inner, "t-ok", "ops", []float32{0.9, 0.1})
		seedPattern(t, inner, "t-stuck", "ops", []float32{0.8, 0.2})
		seedLink(t, inner, "ops", "src", "t-ok", 0.5)
		seedLink(t, inner, "ops", "src", "t-stuck", 0.5)

		events, err := svc.FireSpike(ctx, "src")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "src", events[0].FiredPattern)
		assert.Equal(t, "t-ok", events[1].FiredPattern)
	})
}

func TestService_GetNetworkState(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := newTestService(t, st)
	seedPattern(t, st, "n1", "ops", []float32{1, 0})
	seedPattern(t, st, "n2", "ops", []float32{0.9, 0.1})
	seedPattern(t, st, "n3", "ops", []float32{0, 1})
	require.NoError(t, st.UpdatePotential(ctx, "n1", 0, 0.3, nil))
	require.NoError(t, st.UpdatePotential(ctx, "n2", 0, 0.5, nil))

	t.Run("aggregates without mutating", func(t *testing.T) {
		state, err := svc.GetNetworkState(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, "ops", state.Domain)
		assert.Equal(t, 3, state.TotalNeurons)
		assert.Equal(t, 2, state.ActiveNeurons)
		assert.InDelta(t, 0.8/3, state.AvgPotential, 1e-9)
		assert.Equal(t, 0, state.RecentSpikes)
		assert.Empty(t, state.TopFiringPatterns)

		// Reporting left potentials alone
		p, err := st.GetPattern(ctx, "n1")
		require.NoError(t, err)
		assert.InDelta(t, 0.3, p.SpikePotential, 1e-9)
	})

	t.Run("reflects recent firing", func(t *testing.T) {
		_, err := svc.FireSpike(ctx, "n1")
		require.NoError(t, err)

		state, err := svc.GetNetworkState(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, 1, state.ActiveNeurons) // n1 reset to 0 by firing
		assert.Equal(t, 1, state.RecentSpikes)
		require.Len(t, state.TopFiringPatterns, 1)
		assert.Equal(t, "n1", state.TopFiringPatterns[0].PatternID)
		assert.Equal(t, 1, state.TopFiringPatterns[0].SpikeCount)
		assert.NotNil(t, state.TopFiringPatterns[0].LastFiredAt)
	})

	t.Run("unknown domain reports an empty network", func(t *testing.T) {
		state, err := svc.GetNetworkState(ctx, "silent")
		require.NoError(t, err)
		assert.Equal(t, 0, state.TotalNeurons)
		assert.Equal(t, 0, state.ActiveNeurons)
		assert.Equal(t, 0.0, state.AvgPotential)
		assert.Empty(t, state.TopFiringPatterns)
	})
}

func TestService_ResetNetwork(t *testing.T) {
	ctx := context.Background()

	t.Run("zeroes every potential in the domain", func(t *testing.T) {
		st := store.NewInMemoryStore()
		svc := newTestService(t, st)
		seedPattern(t, st, "r1", "ops", []float32{1, 0})
		seedPattern(t, st, "r2", "ops", []float32{0.9, 0.1})
		seedPattern(t, st, "other", "lending", []float32{1, 0})
		require.NoError(t, st.UpdatePotential(ctx, "r1", 0, 0.7, nil))
		require.NoError(t, st.UpdatePotential(ctx, "other", 0, 0.6, nil))

		count, err := svc.ResetNetwork(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		state, err := svc.GetNetworkState(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, 0, state.ActiveNeurons)
		assert.Equal(t, 0.0, state.AvgPotential)

		// Other domains are untouched
		p, err := st.GetPattern(ctx, "other")
		require.NoError(t, err)
		assert.InDelta(t, 0.6, p.SpikePotential, 1e-9)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		svc := newTestService(t, &failingStore{Store: store.NewInMemoryStore(), err: fmt.Errorf("store offline")})

		_, err := svc.ResetNetwork(ctx, "ops")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store offline")
	})
}

func TestService_DetectAnomalies(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	svc := newTestService(t, st)
	seedPattern(t, st, "burst", "anomaly", []float32{1, 0})
	seedPattern(t, st, "quiet", "anomaly", []float32{0.9, 0.1})
	seedPattern(t, st, "idle", "anomaly", []float32{0, 1})

	now := time.Now().UTC()
	appendFire := func(id string, at time.Time) {
		require.NoError(t, st.AppendSpikeEvent(ctx, &pattern.SpikeEvent{
			FiredPattern: id,
			Domain:       "anomaly",
			DidFire:      true,
			Timestamp:    at,
		}))
	}

	// burst: one historical fire, then six inside the current window
	appendFire("burst", now.Add(-2*time.Hour))
	for i := 0; i < 6; i++ {
		appendFire("burst", now.Add(-30*time.Second).Add(time.Duration(i)*time.Second))
	}
	// quiet: historical activity only
	appendFire("quiet", now.Add(-2*time.Hour))
	appendFire("quiet", now.Add(-2*time.Hour).Add(time.Minute))

	t.Run("burst scores above threshold", func(t *testing.T) {
		scores, err := svc.DetectAnomalies(ctx, "anomaly", 300, 2.0)
		require.NoError(t, err)
		require.Len(t, scores, 3)

		assert.Equal(t, "burst", scores[0].PatternID)
		assert.Equal(t, 6.0, scores[0].SpikeRate)
		assert.Greater(t, scores[0].Score, 2.0)

		// idle has no history and scores exactly zero
		assert.Equal(t, "idle", scores[1].PatternID)
		assert.Equal(t, 0.0, scores[1].Score)

		// quiet fired in the past but not recently
		assert.Equal(t, "quiet", scores[2].PatternID)
		assert.Equal(t, 0.0, scores[2].SpikeRate)
		assert.Less(t, scores[2].Score, 0.0)
	})

	t.Run("scores are sorted descending", func(t *testing.T) {
		scores, err := svc.DetectAnomalies(ctx, "anomaly", 300, 2.0)
		require.NoError(t, err)
		for i := 1; i < len(scores); i++ {
			assert.LessOrEqual(t, scores[i].Score, scores[i-1].Score)
		}
	})

	t.Run("zero parameters use defaults", func(t *testing.T) {
		scores, err := svc.DetectAnomalies(ctx, "anomaly", 0, 0)
		require.NoError(t, err)
		assert.Len(t, scores, 3)
	})

	t.Run("empty domain", func(t *testing.T) {
		scores, err := svc.DetectAnomalies(ctx, "vacant", 300, 2.0)
		require.NoError(t, err)
		assert.Empty(t, scores)
	})
}
