package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
)

type fixture struct {
	store     *docstore.MemoryStore
	registry  *Registry
	reg       *Registration
	recyclers *RecyclerService
	recycling *RecyclingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return &fixture{
		store:     store,
		registry:  NewRegistry(store, "https://ecotrace.test/scan"),
		reg:       NewRegistration(store),
		recyclers: NewRecyclerService(store, nil),
		recycling: NewRecyclingService(store, nil),
	}
}

// seedInstance writes a model and an instance with a known secret, bypassing
// secret generation.
func (f *fixture) seedInstance(t *testing.T, manufacturerID, productID, serial, secret string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, repository.ModelPath(manufacturerID, productID), docstore.Document{
		"manufacturerId": manufacturerID,
		"productId":      productID,
		"name":           productID,
		"category":       "Electronics",
	}, docstore.Merge()))
	require.NoError(t, f.store.Update(ctx, repository.ModelPath(manufacturerID, productID), docstore.Document{
		"instanceCount": docstore.Increment(1),
	}))
	require.NoError(t, repository.PutInstance(ctx, f.store, &model.ProductInstance{
		ManufacturerID:  manufacturerID,
		ProductID:       productID,
		SerialNumber:    serial,
		SecretKey:       secret,
		RegisteredUsers: []string{},
		RecycleStatus:   model.RecycleUninitiated,
	}))
}

func (f *fixture) instance(t *testing.T, manufacturerID, productID, serial string) *model.ProductInstance {
	t.Helper()
	inst, err := repository.GetInstance(context.Background(), f.store, manufacturerID, productID, serial)
	require.NoError(t, err)
	return inst
}

func (f *fixture) register(consumerID, manufacturerID, productID, serial, secret string) error {
	_, err := f.reg.Register(context.Background(), consumerID, RegistrationInput{
		ManufacturerID: manufacturerID,
		ProductID:      productID,
		SerialNumber:   serial,
		ModelNumber:    productID,
		SecretKey:      secret,
	})
	return err
}

func requireKind(t *testing.T, kind model.ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, model.KindOf(err), "unexpected error: %v", err)
}

func requireCounterInvariant(t *testing.T, inst *model.ProductInstance) {
	t.Helper()
	require.NoError(t, inst.Validate())
	require.Equal(t, len(inst.RegisteredUsers), inst.UserCount)
	if inst.RegisteredBy != nil {
		require.Contains(t, inst.RegisteredUsers, *inst.RegisteredBy)
	}
}
