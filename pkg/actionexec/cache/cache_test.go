package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildtool/buildtool/pkg/artifact"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), Config{Path: filepath.Join(dir, "actions.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.Lookup(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreThenLookupRoundTrips(t *testing.T) {
	s := openTestStore(t)

	record := &Record{
		ActionKey: "abc123",
		Outputs: []OutputEntry{
			{Path: "bin/out.o", Digest: artifact.Digest{HashFunc: "sha256", Hex: "deadbeef", Size: 42}},
			{Path: "bin/out.d", Digest: artifact.Digest{HashFunc: "sha256", Hex: "cafef00d", Size: 7}},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, s.Store(context.Background(), record))

	got, found, err := s.Lookup(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got.Outputs, 2)
	require.Equal(t, "bin/out.d", got.Outputs[0].Path)
	require.Equal(t, "bin/out.o", got.Outputs[1].Path)
}

func TestStoreReplacesExistingRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, &Record{
		ActionKey: "k1",
		Outputs:   []OutputEntry{{Path: "a", Digest: artifact.Digest{HashFunc: "sha256", Hex: "old", Size: 1}}},
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.Store(ctx, &Record{
		ActionKey: "k1",
		Outputs:   []OutputEntry{{Path: "a", Digest: artifact.Digest{HashFunc: "sha256", Hex: "new", Size: 2}}},
		CreatedAt: time.Now().UTC(),
	}))

	got, found, err := s.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got.Outputs, 1)
	require.Equal(t, "new", got.Outputs[0].Digest.Hex)
}

func TestLookupIsolatesByActionKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, &Record{ActionKey: "k1", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.Store(ctx, &Record{ActionKey: "k2", CreatedAt: time.Now().UTC()}))

	_, found, err := s.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = s.Lookup(ctx, "k3")
	require.NoError(t, err)
	require.False(t, found)
}
