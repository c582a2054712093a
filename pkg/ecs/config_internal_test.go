package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The config tests set environment variables and cannot run in parallel.

func TestStoreConfig_Env(t *testing.T) {
	t.Setenv("ECSTORE_SET_NOTIFY", "always")
	t.Setenv("ECSTORE_ARCHETYPE_CAPACITY", "4")
	t.Setenv("ECSTORE_TIMING_WINDOW", "8")

	reg := NewRegistry()
	s, err := NewStore(reg, StoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, SetNotifyAlways, s.opts.SetNotify)
	assert.Equal(t, 4, s.opts.ArchetypeCapacity)
	assert.Equal(t, 8, s.opts.TimingWindow)
	assert.Equal(t, 1024, s.opts.EntityCapacity)

	// Property: explicit options override the environment.
	s, err = NewStore(reg, StoreOptions{SetNotify: SetNotifyIndexed, TimingWindow: 2})
	require.NoError(t, err)
	assert.Equal(t, SetNotifyIndexed, s.opts.SetNotify)
	assert.Equal(t, 2, s.opts.TimingWindow)
	assert.Equal(t, 4, s.opts.ArchetypeCapacity)
}

func TestStoreConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown policy", key: "ECSTORE_SET_NOTIFY", value: "sometimes"},
		{name: "zero archetype capacity", key: "ECSTORE_ARCHETYPE_CAPACITY", value: "0"},
		{name: "negative entity capacity", key: "ECSTORE_ENTITY_CAPACITY", value: "-1"},
		{name: "negative chunk limit", key: "ECSTORE_PARALLEL_CHUNK_LIMIT", value: "-2"},
		{name: "not a number", key: "ECSTORE_TIMING_WINDOW", value: "many"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := NewStore(NewRegistry(), StoreOptions{})
			require.Error(t, err)
		})
	}

	_, err := NewStore(nil, StoreOptions{})
	require.Error(t, err)
}

func TestParseSetNotifyPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want SetNotifyPolicy
	}{
		{in: "never", want: SetNotifyNever},
		{in: "Indexed", want: SetNotifyIndexed},
		{in: "ALWAYS", want: SetNotifyAlways},
		{in: "", want: SetNotifyUndefined},
		{in: "sometimes", want: SetNotifyUndefined},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseSetNotifyPolicy(tc.in), tc.in)
	}
	for _, p := range []SetNotifyPolicy{SetNotifyNever, SetNotifyIndexed, SetNotifyAlways} {
		assert.Equal(t, p, ParseSetNotifyPolicy(p.String()))
	}
}
