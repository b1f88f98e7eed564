package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
)

func TestRegister_EndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "mfgA", "modelX", "SN001", "K3y")
	f.seedInstance(t, "mfgA", "modelX", "SN002", "K3y2")

	res, err := f.reg.RegisterPayload(ctx, "alice", "mfgA|modelX|SN001", "modelX", "K3y")
	require.NoError(t, err)
	require.True(t, res.Success)

	// Same consumer, same productId, different serial.
	_, err = f.reg.RegisterPayload(ctx, "alice", "mfgA|modelX|SN002", "modelX", "K3y2")
	requireKind(t, model.KindAlreadyRegisteredByCaller, err)

	// Different consumer, correct secret, already bound instance.
	_, err = f.reg.RegisterPayload(ctx, "bob", "mfgA|modelX|SN001", "modelX", "K3y")
	requireKind(t, model.KindAlreadyRegisteredByOther, err)

	inst := f.instance(t, "mfgA", "modelX", "SN001")
	require.True(t, inst.Registered)
	require.Equal(t, "alice", *inst.RegisteredBy)
	require.Equal(t, []string{"alice"}, inst.RegisteredUsers)
	requireCounterInvariant(t, inst)
}

func TestRegister_PreconditionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "m", "p", "s1", "secret")

	// Unauthenticated wins over everything, even a malformed payload.
	_, err := f.reg.RegisterPayload(ctx, "", "garbage", "", "")
	requireKind(t, model.KindUnauthenticated, err)

	_, err = f.reg.RegisterPayload(ctx, "alice", "only|two", "", "secret")
	requireKind(t, model.KindInvalidArgument, err)

	err = f.register("alice", "m", "p", "", "secret")
	requireKind(t, model.KindInvalidArgument, err)

	err = f.register("alice", "m", "p", "missing", "secret")
	requireKind(t, model.KindNotFound, err)

	err = f.register("alice", "m", "p", "s1", "wrong")
	requireKind(t, model.KindPermissionDenied, err)

	// Corruption is reported before a secret mismatch.
	require.NoError(t, f.store.Update(ctx, repository.InstancePath("m", "p", "s1"), docstore.Document{"userCount": 3}))
	err = f.register("alice", "m", "p", "s1", "wrong")
	requireKind(t, model.KindDataCorruption, err)
}

func TestRegister_FailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "m", "p", "s1", "secret")

	before, err := f.store.Get(ctx, repository.InstancePath("m", "p", "s1"))
	require.NoError(t, err)

	err = f.register("alice", "m", "p", "s1", "nope")
	requireKind(t, model.KindPermissionDenied, err)

	after, err := f.store.Get(ctx, repository.InstancePath("m", "p", "s1"))
	require.NoError(t, err)
	require.Equal(t, before, after)

	scan, err := f.store.Get(ctx, repository.ScanPath("alice", "s1"))
	require.NoError(t, err)
	require.Nil(t, scan)
	claim, err := f.store.Get(ctx, repository.ClaimPath("alice", "p"))
	require.NoError(t, err)
	require.Nil(t, claim)
}

func TestRegister_MutualExclusionUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.seedInstance(t, "m", "p", "s1", "secret")

	const consumers = 16
	var wg sync.WaitGroup
	errs := make([]error, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.register(string(rune('a'+i)), "m", "p", "s1", "secret")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, model.KindAlreadyRegisteredByOther, model.KindOf(err))
	}
	require.Equal(t, 1, wins)

	inst := f.instance(t, "m", "p", "s1")
	require.Equal(t, 1, inst.UserCount)
	requireCounterInvariant(t, inst)
}

func TestDeleteScan_ReleasesInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "m", "p", "s1", "secret")

	require.NoError(t, f.register("alice", "m", "p", "s1", "secret"))
	require.NoError(t, f.reg.DeleteScan(ctx, "alice", "s1"))

	inst := f.instance(t, "m", "p", "s1")
	require.False(t, inst.Registered)
	require.Nil(t, inst.RegisteredBy)
	require.Empty(t, inst.RegisteredUsers)
	requireCounterInvariant(t, inst)

	// Claim is gone, so the consumer may register again.
	require.NoError(t, f.register("alice", "m", "p", "s1", "secret"))

	err := f.reg.DeleteScan(ctx, "alice", "missing")
	requireKind(t, model.KindNotFound, err)
	err = f.reg.DeleteScan(ctx, "", "s1")
	requireKind(t, model.KindUnauthenticated, err)
}

func TestUnbind_IdempotentAndToleratesMissingInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "m", "p", "s1", "secret")
	require.NoError(t, f.register("alice", "m", "p", "s1", "secret"))

	require.NoError(t, f.reg.Unbind(ctx, "alice", "m", "p", "s1"))
	require.NoError(t, f.reg.Unbind(ctx, "alice", "m", "p", "s1"))
	requireCounterInvariant(t, f.instance(t, "m", "p", "s1"))

	// Unbinding someone who never registered changes nothing.
	require.NoError(t, f.reg.Unbind(ctx, "mallory", "m", "p", "s1"))
	require.Equal(t, 0, f.instance(t, "m", "p", "s1").UserCount)

	require.NoError(t, f.reg.Unbind(ctx, "alice", "m", "p", "gone"))
}

func TestDeleteScan_AfterInstanceDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "m", "p", "s1", "secret")
	require.NoError(t, f.register("alice", "m", "p", "s1", "secret"))

	_, err := f.registry.DeleteInstance(ctx, "m", "p", "s1")
	require.NoError(t, err)

	require.NoError(t, f.reg.DeleteScan(ctx, "alice", "s1"))
}

func TestVerifyScans_RemovesOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "m", "p1", "s1", "k1")
	f.seedInstance(t, "m", "p2", "s2", "k2")
	require.NoError(t, f.register("alice", "m", "p1", "s1", "k1"))
	require.NoError(t, f.register("alice", "m", "p2", "s2", "k2"))

	require.NoError(t, f.store.Delete(ctx, repository.InstancePath("m", "p1", "s1")))

	removed, err := f.reg.VerifyScans(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	recs, err := f.registry.ListConsumerProducts(ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "s2", recs[0].SerialNumber)

	claim, err := repository.GetClaim(ctx, f.store, "alice", "p1")
	require.NoError(t, err)
	require.Nil(t, claim)

	removed, err = f.reg.VerifyScans(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestSweepAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "m", "p1", "s1", "k1")
	f.seedInstance(t, "m", "p2", "s2", "k2")
	require.NoError(t, f.register("alice", "m", "p1", "s1", "k1"))
	require.NoError(t, f.register("bob", "m", "p2", "s2", "k2"))

	require.NoError(t, f.store.Delete(ctx, repository.InstancePath("m", "p1", "s1")))
	require.NoError(t, f.store.Delete(ctx, repository.InstancePath("m", "p2", "s2")))

	report, err := f.reg.SweepAll(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Consumers: 2, Removed: 2}, report)
}

// Any interleaving of registrations and scan deletions keeps every instance
// internally consistent and every claim backed by a scan.
func TestRegistration_CounterInvariant_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := docstore.NewMemoryStore()
		reg := NewRegistration(store)
		ctx := context.Background()

		serials := []string{"s1", "s2", "s3"}
		for i, s := range serials {
			productID := []string{"p1", "p1", "p2"}[i]
			if err := repository.PutInstance(ctx, store, &model.ProductInstance{
				ManufacturerID:  "m",
				ProductID:       productID,
				SerialNumber:    s,
				SecretKey:       "k",
				RegisteredUsers: []string{},
				RecycleStatus:   model.RecycleUninitiated,
			}); err != nil {
				rt.Fatalf("seed: %v", err)
			}
		}
		productOf := map[string]string{"s1": "p1", "s2": "p1", "s3": "p2"}

		consumers := []string{"alice", "bob", "carol"}
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			c := rapid.SampledFrom(consumers).Draw(rt, "consumer")
			s := rapid.SampledFrom(serials).Draw(rt, "serial")
			if rapid.Bool().Draw(rt, "register") {
				_, err := reg.Register(ctx, c, RegistrationInput{ManufacturerID: "m", ProductID: productOf[s], SerialNumber: s, SecretKey: "k"})
				if err != nil && !model.IsAlreadyExists(err) {
					rt.Fatalf("register %s %s: %v", c, s, err)
				}
			} else {
				err := reg.DeleteScan(ctx, c, s)
				if err != nil && model.KindOf(err) != model.KindNotFound {
					rt.Fatalf("delete %s %s: %v", c, s, err)
				}
			}

			for _, s := range serials {
				inst, err := repository.GetInstance(ctx, store, "m", productOf[s], s)
				if err != nil {
					rt.Fatalf("instance %s: %v", s, err)
				}
				if inst.UserCount != len(inst.RegisteredUsers) {
					rt.Fatalf("instance %s: userCount %d, users %v", s, inst.UserCount, inst.RegisteredUsers)
				}
				if inst.RegisteredBy != nil && !containsString(inst.RegisteredUsers, *inst.RegisteredBy) {
					rt.Fatalf("instance %s: registeredBy %s not in %v", s, *inst.RegisteredBy, inst.RegisteredUsers)
				}
				if inst.UserCount > 1 {
					rt.Fatalf("instance %s bound to %d users", s, inst.UserCount)
				}
			}
			for _, c := range consumers {
				for _, p := range []string{"p1", "p2"} {
					claim, err := repository.GetClaim(ctx, store, c, p)
					if err != nil {
						rt.Fatalf("claim: %v", err)
					}
					if claim == nil {
						continue
					}
					scan, err := store.Get(ctx, repository.ScanPath(c, claim.SerialNumber))
					if err != nil || scan == nil {
						rt.Fatalf("claim %s/%s has no scan record", c, p)
					}
				}
			}
		}
	})
}
