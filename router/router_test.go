package router

import (
	"errors"
	"testing"

	"eve.evalgo.org/multidb/model"
	"eve.evalgo.org/multidb/multidberr"
	"eve.evalgo.org/multidb/query"
	"eve.evalgo.org/multidb/shard"
	"github.com/stretchr/testify/require"
)

func ordersDescriptor() *model.Descriptor {
	return &model.Descriptor{Name: "orders", ShardKeyColumns: []string{"tenant_id"}}
}

func TestRouteEqualityBindsSingleShard(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0", "globex": "s1"}))

	plan, err := m.Route("orders", query.New("orders").Where(query.Eq("tenant_id", "acme")), false, false)
	require.NoError(t, err)
	require.Equal(t, SingleShard, plan.Kind)
	require.Equal(t, []string{"s0"}, plan.Shards)
}

func TestRouteInBindsTargetedMultiShard(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0", "globex": "s1"}))

	plan, err := m.Route("orders", query.New("orders").Where(query.In("tenant_id", "acme", "globex")), false, false)
	require.NoError(t, err)
	require.Equal(t, TargetedMultiShard, plan.Kind)
	require.ElementsMatch(t, []string{"s0", "s1"}, plan.Shards)
}

func TestRouteAbsentShardKeyScattersOnRead(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0", "globex": "s1"}))

	plan, err := m.Route("orders", query.New("orders").Where(query.Eq("status", "open")), false, false)
	require.NoError(t, err)
	require.Equal(t, ScatterGather, plan.Kind)
}

func TestRouteAbsentShardKeyOnWriteFails(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0"}))

	_, err := m.Route("orders", query.New("orders").Where(query.Eq("status", "open")), true, false)
	var missing *multidberr.MissingShardKeyError
	require.True(t, errors.As(err, &missing))
}

func TestRouteAbsentShardKeyOnWriteAllowedWithAllShards(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0"}))

	plan, err := m.Route("orders", query.New("orders").Where(query.Eq("status", "open")), true, true)
	require.NoError(t, err)
	require.Equal(t, ScatterGather, plan.Kind)
}

func TestRouteOrJoinedTermDoesNotBindShardKey(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0"}))

	s := query.New("orders").Where(query.Group(query.Or, query.Eq("tenant_id", "acme"), query.Eq("status", "open")))
	plan, err := m.Route("orders", s, false, false)
	require.NoError(t, err)
	require.Equal(t, ScatterGather, plan.Kind)
}

func TestRouteRejectsRawUnderScatterGather(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0"}))

	s := query.New("orders").Where(query.Raw("status = 'open'"))
	_, err := m.Route("orders", s, false, false)
	require.ErrorIs(t, err, multidberr.ErrRawUnderScatterGather)
}

func TestRouteNotInDoesNotBindShardKey(t *testing.T) {
	m := NewManager()
	m.Register(ordersDescriptor(), shard.NewLookupResolver(map[interface{}]string{"acme": "s0", "globex": "s1"}))

	s := query.New("orders").Where(query.NotIn("tenant_id", "acme"))
	plan, err := m.Route("orders", s, false, false)
	require.NoError(t, err, "a NotIn term excludes values; it must not be treated as resolving a shard")
	require.Equal(t, ScatterGather, plan.Kind)
}

func TestRouteUnshardedModelAlwaysSingleShard(t *testing.T) {
	m := NewManager()
	plan, err := m.Route("settings", query.New("settings"), false, false)
	require.NoError(t, err)
	require.Equal(t, SingleShard, plan.Kind)
	require.Nil(t, plan.Shards)
}
