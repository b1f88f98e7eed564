package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ecotrace-api/internal/cache"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
)

type mockOrganizations struct {
	mock.Mock
}

func (m *mockOrganizations) GetOrganizationName(ctx context.Context, recyclerID string) (string, error) {
	args := m.Called(ctx, recyclerID)
	return args.String(0), args.Error(1)
}

func TestHaversine(t *testing.T) {
	origin := model.GeoPoint{Lat: 0, Lng: 0}
	require.Zero(t, Haversine(origin, origin))
	require.InDelta(t, 111.195, Haversine(origin, model.GeoPoint{Lat: 1, Lng: 0}), 0.01)

	berlin := model.GeoPoint{Lat: 52.5200, Lng: 13.4050}
	paris := model.GeoPoint{Lat: 48.8566, Lng: 2.3522}
	require.InDelta(t, 877.5, Haversine(berlin, paris), 2)
	require.InDelta(t, Haversine(berlin, paris), Haversine(paris, berlin), 1e-9)
}

func TestHaversine_MeridianAdditive_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		lng := rapid.Float64Range(-180, 180).Draw(rt, "lng")
		a := rapid.Float64Range(-90, 90).Draw(rt, "a")
		b := rapid.Float64Range(a, 90).Draw(rt, "b")
		c := rapid.Float64Range(b, 90).Draw(rt, "c")

		pa := model.GeoPoint{Lat: a, Lng: lng}
		pb := model.GeoPoint{Lat: b, Lng: lng}
		pc := model.GeoPoint{Lat: c, Lng: lng}

		whole := Haversine(pa, pc)
		parts := Haversine(pa, pb) + Haversine(pb, pc)
		if math.Abs(whole-parts) > 1e-6 {
			rt.Fatalf("distance along meridian not additive: %v != %v", whole, parts)
		}
	})
}

func TestGather(t *testing.T) {
	boom := errors.New("boom")
	values, failures := Gather(context.Background(), []int{1, 2, 3, 4}, func(_ context.Context, k int) (int, error) {
		if k%2 == 0 {
			return 0, boom
		}
		return k * 10, nil
	})
	require.Equal(t, []int{10, 30}, values)
	require.Len(t, failures, 2)
	require.Equal(t, 2, failures[0].Key)
	require.ErrorIs(t, failures[1].Err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled, cancelledFailures := Gather(ctx, []string{"a"}, func(context.Context, string) (string, error) {
		return "never", nil
	})
	require.Empty(t, cancelled)
	require.Len(t, cancelledFailures, 1)
	require.Equal(t, "a", cancelledFailures[0].Key)
	require.ErrorIs(t, cancelledFailures[0].Err, context.Canceled)
}

// seedMatching places R1 about 1km and R2 about 5km north of the origin. R1
// takes model P1 and R2 takes P3. A third recycler is far out of range.
func seedMatching(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	for _, r := range []struct {
		id  string
		lat float64
		pid string
	}{
		{"R1", 0.009, "P1"},
		{"R2", 0.045, "P3"},
		{"R9", 20, "P1"},
	} {
		_, err := f.recyclers.UpsertFacility(ctx, r.id, FacilityInput{
			Location: &model.GeoPoint{Lat: r.lat, Lng: 0},
			Address:  r.id + " street",
		})
		require.NoError(t, err)
		_, err = f.recyclers.PutInventoryItem(ctx, r.id, model.InventoryItem{ProductID: r.pid, Name: r.pid + " item", Points: 5})
		require.NoError(t, err)
	}
	// A facility without a location is never matched.
	_, err := f.recyclers.UpsertFacility(ctx, "R0", FacilityInput{Address: "nowhere"})
	require.NoError(t, err)

	f.seedInstance(t, "m", "P1", "s1", "k1")
	f.seedInstance(t, "m", "P2", "s2", "k2")
	require.NoError(t, f.register("alice", "m", "P1", "s1", "k1"))
	require.NoError(t, f.register("alice", "m", "P2", "s2", "k2"))
}

func TestFindNearbyMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMatching(t, f)
	require.NoError(t, repository.PutOrganization(ctx, f.store, &model.Organization{RecyclerID: "R1", Name: "GreenCycle"}))

	m := NewMatcher(f.store, repository.NewDocOrganizationRepository(f.store), 100)
	matches, err := m.FindNearbyMatches(ctx, model.GeoPoint{}, "alice", MatchOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	require.Equal(t, "R1", matches[0].Facility.RecyclerID)
	require.Equal(t, "GreenCycle", matches[0].OrganizationName)
	require.InDelta(t, 1.0, matches[0].DistanceKm, 0.01)
	require.Len(t, matches[0].MatchedProducts, 1)
	require.Equal(t, "P1", matches[0].MatchedProducts[0].ProductID)

	require.Equal(t, "R2", matches[1].Facility.RecyclerID)
	require.Equal(t, UnknownRecyclerName, matches[1].OrganizationName)
	require.NotNil(t, matches[1].MatchedProducts)
	require.Empty(t, matches[1].MatchedProducts)

	only, err := m.FindNearbyMatches(ctx, model.GeoPoint{}, "alice", MatchOptions{OnlyMatched: true})
	require.NoError(t, err)
	require.Len(t, only, 1)
	require.Equal(t, "R1", only[0].Facility.RecyclerID)

	wide, err := m.FindNearbyMatches(ctx, model.GeoPoint{}, "alice", MatchOptions{MaxDistanceKm: 5000})
	require.NoError(t, err)
	require.Len(t, wide, 3)
	require.Equal(t, "R9", wide[2].Facility.RecyclerID)
}

func TestFindNearbyMatches_SkipsProductsBeingRecycled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMatching(t, f)

	rec, err := repository.GetScan(ctx, f.store, "alice", "s1")
	require.NoError(t, err)
	rec.RecycleStatus = model.RecycleStarted
	require.NoError(t, repository.PutScan(ctx, f.store, rec))

	m := NewMatcher(f.store, nil, 0)
	matches, err := m.FindNearbyMatches(ctx, model.GeoPoint{}, "alice", MatchOptions{OnlyMatched: true})
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFindNearbyMatches_OrganizationLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMatching(t, f)

	orgs := &mockOrganizations{}
	orgs.On("GetOrganizationName", mock.Anything, "R1").Return("", errors.New("db down"))
	orgs.On("GetOrganizationName", mock.Anything, "R2").Return("EcoHub", nil)

	m := NewMatcher(f.store, orgs, 100)
	matches, err := m.FindNearbyMatches(ctx, model.GeoPoint{}, "alice", MatchOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, UnknownRecyclerName, matches[0].OrganizationName)
	require.Equal(t, "EcoHub", matches[1].OrganizationName)
	orgs.AssertExpectations(t)
}

func TestFindNearbyMatches_Validation(t *testing.T) {
	f := newFixture(t)
	m := NewMatcher(f.store, nil, 0)

	_, err := m.FindNearbyMatches(context.Background(), model.GeoPoint{}, "", MatchOptions{})
	requireKind(t, model.KindUnauthenticated, err)

	_, err = m.FindNearbyMatches(context.Background(), model.GeoPoint{Lat: 91}, "alice", MatchOptions{})
	requireKind(t, model.KindInvalidArgument, err)

	_, err = m.FindNearbyMatches(context.Background(), model.GeoPoint{Lat: math.NaN()}, "alice", MatchOptions{})
	requireKind(t, model.KindInvalidArgument, err)

	for _, d := range []float64{math.NaN(), math.Inf(1)} {
		_, err = m.FindNearbyMatches(context.Background(), model.GeoPoint{}, "alice", MatchOptions{MaxDistanceKm: d})
		requireKind(t, model.KindInvalidArgument, err)
	}
}

func TestCachedOrganizationDirectory(t *testing.T) {
	ctx := context.Background()
	orgs := &mockOrganizations{}
	orgs.On("GetOrganizationName", mock.Anything, "R1").Return("GreenCycle", nil).Once()
	orgs.On("GetOrganizationName", mock.Anything, "R2").Return("", errors.New("timeout")).Twice()

	d := NewCachedOrganizationDirectory(orgs, cache.NewMemoryCache(time.Minute), time.Minute)

	for i := 0; i < 3; i++ {
		name, err := d.GetOrganizationName(ctx, "R1")
		require.NoError(t, err)
		require.Equal(t, "GreenCycle", name)
	}
	for i := 0; i < 2; i++ {
		_, err := d.GetOrganizationName(ctx, "R2")
		require.Error(t, err)
	}
	orgs.AssertExpectations(t)

	orgs.On("GetOrganizationName", mock.Anything, "R1").Return("GreenCycle GmbH", nil).Once()
	require.NoError(t, d.Invalidate(ctx, "R1"))
	name, err := d.GetOrganizationName(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, "GreenCycle GmbH", name)
}
