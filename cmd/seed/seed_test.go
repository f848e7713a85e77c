package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/internal/items"
	"github.com/angelmondragon/messledger-backend/internal/ledgertest"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
)

func TestSeedIsIdempotent(t *testing.T) {
	client := ledgertest.NewClient(t)
	conn := client.DB()
	ctx := context.Background()
	logg := logger.Nop()

	periodService, err := periods.NewService(client, periods.NewRepository(conn), balances.NewSnapshotRepository(conn),
		balances.NewCalculator(), periods.CloseOptions{}, logg, nil)
	require.NoError(t, err)
	itemRepo := items.NewRepository(conn)

	first, err := seed(ctx, itemRepo, periodService, "2024-05", logg)
	require.NoError(t, err)
	require.Equal(t, len(sampleItems), first.ItemsCreated)
	require.Equal(t, "2024-05", first.PeriodOpened)

	second, err := seed(ctx, itemRepo, periodService, "2024-06", logg)
	require.NoError(t, err)
	require.Zero(t, second.ItemsCreated)
	require.Equal(t, len(sampleItems), second.ItemsExisting)
	require.Empty(t, second.PeriodOpened)
	require.Equal(t, "2024-05", second.OpenPeriod)

	all, err := itemRepo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, len(sampleItems))

	current, err := periodService.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, enums.PeriodStatusOpen, current.Status)
}
