package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingStore) Set(context.Context, string, string) error { return f.err }
func (f failingStore) Close() error { return nil }

func TestSettings_AbsentKeysAreEmpty(t *testing.T) {
	s := NewSettings(NewMemoryStore())
	ctx := context.Background()

	urls, err := s.URLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, urls)

	bl, err := s.Blacklist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, bl)
}

func TestSettings_RoundTripPreservesOrder(t *testing.T) {
	mem := NewMemoryStore()
	s := NewSettings(mem)
	ctx := context.Background()

	require.NoError(t, s.SetURLs(ctx, []string{"http://b", "http://a", "http://b"}))
	urls, err := s.URLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://b", "http://a", "http://b"}, urls)

	raw, ok, _ := mem.Get(ctx, KeyURLs)
	require.True(t, ok)
	assert.JSONEq(t, `["http://b","http://a","http://b"]`, raw)

	require.NoError(t, s.SetBlacklist(ctx, []string{"B"}))
	bl, err := s.Blacklist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, bl)

	require.NoError(t, s.SetBlacklist(ctx, nil))
	raw, _, _ = mem.Get(ctx, KeyBlacklist)
	assert.Equal(t, "[]", raw)
}

func TestSettings_ReadsExternallyWrittenJSON(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, KeyBlacklist, `["x", "y"]`))
	require.NoError(t, mem.Set(ctx, KeyURLs, `null`))

	s := NewSettings(mem)
	bl, err := s.Blacklist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, bl)

	urls, err := s.URLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, urls)
}

func TestSettings_InvalidJSON(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, KeyURLs, `not json`))

	_, err := NewSettings(mem).URLs(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyURLs)
}

func TestSettings_SeedURLs(t *testing.T) {
	s := NewSettings(NewMemoryStore())
	ctx := context.Background()

	seeded, err := s.SeedURLs(ctx, []string{"http://seed"})
	require.NoError(t, err)
	assert.True(t, seeded)

	require.NoError(t, s.SetURLs(ctx, []string{}))
	seeded, err = s.SeedURLs(ctx, []string{"http://other"})
	require.NoError(t, err)
	assert.False(t, seeded)

	urls, err := s.URLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestSettings_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	s := NewSettings(failingStore{err: boom})
	ctx := context.Background()

	_, err := s.URLs(ctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.SetBlacklist(ctx, []string{"a"}), boom)
	_, err = s.SeedURLs(ctx, nil)
	assert.ErrorIs(t, err, boom)
}
