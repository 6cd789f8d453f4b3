package dbcontext

import (
	"context"
	"errors"
	"testing"

	"eve.evalgo.org/multidb/registry"
	"github.com/stretchr/testify/require"
)

func TestConnectedToPushesAndPopsFrame(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, "", Current(ctx).Database)

	database := "orders"
	var insideDatabase string
	err := ConnectedTo(ctx, Options{Database: &database}, func(ctx context.Context) error {
		insideDatabase = Current(ctx).Database
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "orders", insideDatabase)
	require.Equal(t, "", Current(ctx).Database, "frame must not leak to the outer context")
}

func TestNestedFramesUseInnermostPrecedence(t *testing.T) {
	ctx := context.Background()
	outerDB := "orders"
	innerRole := registry.Reading

	var observedDatabase string
	var observedRole registry.Role

	err := ConnectedTo(ctx, Options{Database: &outerDB}, func(ctx context.Context) error {
		return ConnectedTo(ctx, Options{Role: &innerRole}, func(ctx context.Context) error {
			f := Current(ctx)
			observedDatabase = f.Database
			observedRole = f.Role
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, "orders", observedDatabase, "inherited from the outer frame")
	require.Equal(t, registry.Reading, observedRole)
}

func TestWhilePreventingWritesIsLIFOAndScoped(t *testing.T) {
	ctx := context.Background()
	require.False(t, IsWritePrevented(ctx))

	boom := errors.New("boom")
	err := WhilePreventingWrites(ctx, func(ctx context.Context) error {
		require.True(t, IsWritePrevented(ctx))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, IsWritePrevented(ctx), "prevention must not leak past the scope even on error")
}
