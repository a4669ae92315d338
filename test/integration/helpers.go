package integration

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/analytics"
	"github.com/fyrsmithlabs/patternd/internal/search"
	"github.com/fyrsmithlabs/patternd/internal/spiking"
	"github.com/fyrsmithlabs/patternd/internal/store"
)

// createBadgerStore creates a badger-backed pattern store in a temp
// directory and returns a cleanup function.
func createBadgerStore(t *testing.T) (store.Store, func()) {
	tmpDir := t.TempDir()

	st, err := store.NewBadgerStore(store.BadgerOptions{Path: tmpDir})
	require.NoError(t, err, "Should create badger store")

	cleanup := func() {
		if st != nil {
			st.Close()
		}
	}

	return st, cleanup
}

// createMemoryStore creates an in-memory pattern store.
func createMemoryStore(t *testing.T) (store.Store, func()) {
	st := store.NewInMemoryStore()
	cleanup := func() {
		st.Close()
	}
	return st, cleanup
}

// getTestStoreProvider returns the pattern store for integration tests.
// Checks the PATTERN_STORE environment variable:
// - "memory" = In-memory store
// - "badger" or empty = Badger on a temp directory (default)
func getTestStoreProvider(t *testing.T) (store.Store, func()) {
	provider := os.Getenv("PATTERN_STORE")
	if provider == "" {
		provider = "badger"
	}

	switch provider {
	case "memory":
		return createMemoryStore(t)
	case "badger":
		return createBadgerStore(t)
	default:
		t.Fatalf("Unknown pattern store provider: %s", provider)
		return nil, nil
	}
}

// createTestIndex creates an in-memory similarity index.
func createTestIndex(t *testing.T) *search.Index {
	idx, err := search.NewIndex(search.Config{InMemory: true}, zap.NewNop())
	require.NoError(t, err, "Should create search index")
	return idx
}

// createTestService wires an analytics service over the given store with an
// in-memory index and default engine parameters.
func createTestService(t *testing.T, st store.Store, opts ...analytics.Option) *analytics.Service {
	opts = append([]analytics.Option{analytics.WithIndex(createTestIndex(t))}, opts...)
	svc, err := analytics.NewService(st, analytics.DefaultConfig(), spiking.DefaultConfig(), zap.NewNop(), opts...)
	require.NoError(t, err, "Should create analytics service")
	return svc
}
