package repository

import (
	"context"
	"fmt"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
)

// ModelIndexEntry maps a (name, category) pair to its productId.
type ModelIndexEntry struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Category  string `json:"category"`
}

// GetModel loads a product model. Returns nil, nil when absent.
func GetModel(ctx context.Context, r docstore.Reader, manufacturerID, productID string) (*model.ProductModel, error) {
	m, err := get[model.ProductModel](ctx, r, ModelPath(manufacturerID, productID))
	if err != nil || m == nil {
		return m, err
	}
	m.ManufacturerID, m.ProductID = manufacturerID, productID
	return m, nil
}

// GetModelIndex loads the index entry for (name, category). Returns nil, nil when absent.
func GetModelIndex(ctx context.Context, r docstore.Reader, manufacturerID, name, category string) (*ModelIndexEntry, error) {
	return get[ModelIndexEntry](ctx, r, ModelIndexPath(manufacturerID, name, category))
}

// DecodeInstance decodes a raw instance document and checks its invariants.
func DecodeInstance(manufacturerID, productID, serialNumber string, doc docstore.Document) (*model.ProductInstance, error) {
	path := InstancePath(manufacturerID, productID, serialNumber)
	var inst model.ProductInstance
	if err := docstore.Decode(path, doc, &inst); err != nil {
		return nil, err
	}
	inst.ManufacturerID, inst.ProductID, inst.SerialNumber = manufacturerID, productID, serialNumber
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetInstance loads and validates a product instance. Returns nil, nil when absent.
func GetInstance(ctx context.Context, r docstore.Reader, manufacturerID, productID, serialNumber string) (*model.ProductInstance, error) {
	path := InstancePath(manufacturerID, productID, serialNumber)
	doc, err := r.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	if doc == nil {
		return nil, nil
	}
	return DecodeInstance(manufacturerID, productID, serialNumber, doc)
}

// PutInstance writes a full product instance.
func PutInstance(ctx context.Context, w docstore.Writer, inst *model.ProductInstance) error {
	return put(ctx, w, InstancePath(inst.ManufacturerID, inst.ProductID, inst.SerialNumber), inst)
}

// GetPublicSummary loads the secret-free projection. Returns nil, nil when absent.
func GetPublicSummary(ctx context.Context, r docstore.Reader, manufacturerID, serialNumber string) (*model.PublicProductSummary, error) {
	return get[model.PublicProductSummary](ctx, r, PublicSummaryPath(manufacturerID, serialNumber))
}

// PutPublicSummary writes the secret-free projection.
func PutPublicSummary(ctx context.Context, w docstore.Writer, s *model.PublicProductSummary) error {
	return put(ctx, w, PublicSummaryPath(s.ManufacturerID, s.SerialNumber), s)
}

// PutModelIndex writes the (name, category) index entry.
func PutModelIndex(ctx context.Context, w docstore.Writer, manufacturerID string, e *ModelIndexEntry) error {
	return put(ctx, w, ModelIndexPath(manufacturerID, e.Name, e.Category), e)
}
