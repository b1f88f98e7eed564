package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ecotrace-api/internal/model"
)

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedRecycling(t, f)
	_, err := f.recyclers.UpsertFacility(ctx, "R2", FacilityInput{Address: "no coordinates"})
	require.NoError(t, err)

	req := f.open(t)
	_, err = f.recycling.Accept(ctx, req.QueryID)
	require.NoError(t, err)

	st, err := NewStatsService(f.store).GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.Consumers)
	require.Equal(t, 2, st.Recyclers)
	require.Equal(t, 1, st.Located)
	require.Equal(t, 1, st.Requests)
	require.Equal(t, 1, st.RequestsByState[model.RequestAccepted])
	require.Zero(t, st.Malformed)
}
