package scatter

import (
	"context"
	"errors"
	"testing"

	"eve.evalgo.org/multidb/multidberr"
	"eve.evalgo.org/multidb/query"
	"github.com/stretchr/testify/require"
)

func TestRunConcatenatesWithoutOrder(t *testing.T) {
	data := map[string][][]interface{}{
		"s0": {{int64(1)}, {int64(2)}},
		"s1": {{int64(3)}},
	}
	fn := func(ctx context.Context, shardName string, s query.State) ([][]interface{}, error) {
		return data[shardName], nil
	}

	rows, errs, err := Run(context.Background(), []string{"s0", "s1"}, query.New("orders"), fn, Options{})
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, rows, 3)
}

func TestRunKWayMergesOrderedShards(t *testing.T) {
	data := map[string][][]interface{}{
		"s0": {{int64(1)}, {int64(4)}},
		"s1": {{int64(2)}, {int64(3)}},
	}
	fn := func(ctx context.Context, shardName string, s query.State) ([][]interface{}, error) {
		return data[shardName], nil
	}

	s := query.New("orders").OrderBy("id", query.Asc)
	rows, _, err := Run(context.Background(), []string{"s0", "s1"}, s, fn, Options{})
	require.NoError(t, err)

	got := make([]int64, len(rows))
	for i, r := range rows {
		got[i] = r[0].(int64)
	}
	require.Equal(t, []int64{1, 2, 3, 4}, got)
}

func TestRunRejectsUnorderedShardResult(t *testing.T) {
	data := map[string][][]interface{}{
		"s0": {{int64(4)}, {int64(1)}},
	}
	fn := func(ctx context.Context, shardName string, s query.State) ([][]interface{}, error) {
		return data[shardName], nil
	}

	s := query.New("orders").OrderBy("id", query.Asc)
	_, _, err := Run(context.Background(), []string{"s0"}, s, fn, Options{})
	var unordered *multidberr.UnorderedShardResultError
	require.True(t, errors.As(err, &unordered))
}

func TestRunFailsWholeRunOnShardFailureByDefault(t *testing.T) {
	fn := func(ctx context.Context, shardName string, s query.State) ([][]interface{}, error) {
		if shardName == "s1" {
			return nil, errors.New("boom")
		}
		return [][]interface{}{{int64(1)}}, nil
	}

	_, _, err := Run(context.Background(), []string{"s0", "s1"}, query.New("orders"), fn, Options{})
	require.Error(t, err)
}

func TestRunAllowsPartialResults(t *testing.T) {
	fn := func(ctx context.Context, shardName string, s query.State) ([][]interface{}, error) {
		if shardName == "s1" {
			return nil, errors.New("boom")
		}
		return [][]interface{}{{int64(1)}}, nil
	}

	rows, errs, err := Run(context.Background(), []string{"s0", "s1"}, query.New("orders"), fn, Options{AllowPartial: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, errs, 1)
}

func TestRunPaginatesPostMerge(t *testing.T) {
	data := map[string][][]interface{}{
		"s0": {{int64(1)}, {int64(3)}},
		"s1": {{int64(2)}, {int64(4)}},
	}
	fn := func(ctx context.Context, shardName string, s query.State) ([][]interface{}, error) {
		return data[shardName], nil
	}

	s := query.New("orders").OrderBy("id", query.Asc).Paginate(2, 1)
	rows, _, err := Run(context.Background(), []string{"s0", "s1"}, s, fn, Options{})
	require.NoError(t, err)

	got := make([]int64, len(rows))
	for i, r := range rows {
		got[i] = r[0].(int64)
	}
	require.Equal(t, []int64{2, 3}, got)
}

func TestFoldAggregatesAcrossShards(t *testing.T) {
	perShard := []ShardAggregate{
		{Count: 3, Sum: 30, Min: 1, Max: 20, HasMin: true, HasMax: true},
		{Count: 2, Sum: 10, Min: 2, Max: 8, HasMin: true, HasMax: true},
	}
	require.Equal(t, int64(5), FoldCount(perShard))
	require.Equal(t, float64(40), FoldSum(perShard))
	require.Equal(t, float64(8), FoldAvg(perShard))

	min, ok := FoldMin(perShard)
	require.True(t, ok)
	require.Equal(t, float64(1), min)

	max, ok := FoldMax(perShard)
	require.True(t, ok)
	require.Equal(t, float64(20), max)
}

func TestFoldGroupsMergesByKey(t *testing.T) {
	perShard := []ShardAggregate{
		{Group: "us", Count: 2, Sum: 20, Min: 5, Max: 15, HasMin: true, HasMax: true},
		{Group: "us", Count: 1, Sum: 5, Min: 5, Max: 5, HasMin: true, HasMax: true},
		{Group: "eu", Count: 1, Sum: 9, Min: 9, Max: 9, HasMin: true, HasMax: true},
	}
	groups := FoldGroups(perShard)
	require.Len(t, groups, 2)
	require.Equal(t, "us", groups[0].Group)
	require.Equal(t, int64(3), groups[0].Count)
	require.Equal(t, float64(25), groups[0].Sum)
}
