package useragent

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (m mapStore) GetSession(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapStore) PutSession(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestPlatform(t *testing.T) {
	tests := map[string]string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X)": "ios",
		"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X)":          "ios",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8)":               "android",
		"curl/8.0":                                               "Unknown",
	}
	for ua, want := range tests {
		assert.Equal(t, want, Platform(ua), ua)
	}
}

func TestResolveIsStablePerAccount(t *testing.T) {
	store := mapStore{}
	rng := rand.New(rand.NewSource(1))

	first, created, err := Resolve(context.Background(), store, 3, rng)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, agents, first)

	again, created, err := Resolve(context.Background(), store, 3, rng)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)
	assert.Equal(t, first, store[Key(3)])
}
