package shard

import (
	"errors"
	"testing"

	"eve.evalgo.org/multidb/multidberr"
	"github.com/stretchr/testify/require"
)

func TestHashResolverDeterministic(t *testing.T) {
	r := NewHashResolver("s0", "s1", "s2")

	first, err := r.Resolve("tenant-42")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		again, err := r.Resolve("tenant-42")
		require.NoError(t, err)
		require.Equal(t, first, again, "hash resolution must be stable across calls")
	}
}

func TestHashResolverRejectsNil(t *testing.T) {
	r := NewHashResolver("s0", "s1")
	_, err := r.Resolve(nil)
	var missing *multidberr.MissingShardKeyError
	require.True(t, errors.As(err, &missing))
}

func TestRangeResolverRejectsGap(t *testing.T) {
	_, err := NewRangeResolver([]RangeBound{
		{Low: 0, High: 100, Shard: "s0"},
		{Low: 200, High: 300, Shard: "s1"},
	})
	require.Error(t, err)
}

func TestRangeResolverRoutesWithinBounds(t *testing.T) {
	r, err := NewRangeResolver([]RangeBound{
		{Low: 0, High: 100, Shard: "s0"},
		{Low: 100, High: 200, Shard: "s1"},
	})
	require.NoError(t, err)

	shard, err := r.Resolve(int64(150))
	require.NoError(t, err)
	require.Equal(t, "s1", shard)

	_, err = r.Resolve(int64(500))
	var noShard *multidberr.NoShardForValueError
	require.True(t, errors.As(err, &noShard))
}

func TestLookupResolverUnmappedValue(t *testing.T) {
	r := NewLookupResolver(map[interface{}]string{"acme": "s0"})
	shard, err := r.Resolve("acme")
	require.NoError(t, err)
	require.Equal(t, "s0", shard)

	_, err = r.Resolve("initech")
	var noShard *multidberr.NoShardForValueError
	require.True(t, errors.As(err, &noShard))
}

func TestCompositeResolverRequiresAllParts(t *testing.T) {
	inner := NewHashResolver("s0", "s1")
	c := NewCompositeResolver(inner, "tenant_id", "region")

	_, err := c.Resolve("acme", nil)
	var missing *multidberr.MissingShardKeyError
	require.True(t, errors.As(err, &missing))

	shard, err := c.Resolve("acme", "us-east")
	require.NoError(t, err)
	require.Contains(t, inner.Shards(), shard)
}
