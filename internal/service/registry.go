package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
	"ecotrace-api/pkg/logger"
	"ecotrace-api/pkg/uid"

	"github.com/rs/zerolog"
)

// ProductSpec describes one unit a manufacturer wants to issue.
type ProductSpec struct {
	Name              string   `json:"name"`
	Category          string   `json:"category"`
	SerialNumber      string   `json:"serialNumber"`
	Recyclability     string   `json:"recyclability,omitempty"`
	RecoverableMetals []string `json:"recoverableMetals,omitempty"`
}

// IssuedProduct is returned to the manufacturer once an instance exists.
type IssuedProduct struct {
	ManufacturerID string `json:"manufacturerId"`
	ProductID      string `json:"productId"`
	SerialNumber   string `json:"serialNumber"`
	SecretKey      string `json:"secretKey"`
	QRPayload      string `json:"qrPayload"`
	QRURL          string `json:"qrUrl"`
}

// Registry creates and deduplicates product models and instances.
type Registry struct {
	store         docstore.Store
	publicBaseURL string
	log           zerolog.Logger
	now           func() time.Time
}

// NewRegistry creates a product registry. publicBaseURL prefixes QR URLs.
func NewRegistry(store docstore.Store, publicBaseURL string) *Registry {
	return &Registry{
		store:         store,
		publicBaseURL: publicBaseURL,
		log:           logger.Component("Registry"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ResolveOrCreateModel returns the productId for (name, category), creating
// the model on first use. Descriptive attributes are merged on every call.
func (r *Registry) ResolveOrCreateModel(ctx context.Context, manufacturerID, name, category string, attrs model.ModelAttributes) (string, error) {
	if err := docstore.ValidateSegment("manufacturerId", manufacturerID); err != nil {
		return "", err
	}
	name, category = strings.TrimSpace(name), strings.TrimSpace(category)
	if name == "" || category == "" {
		return "", model.Errorf(model.KindInvalidArgument, "name and category are required")
	}

	var productID string
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := r.now()

		entry, err := repository.GetModelIndex(ctx, tx, manufacturerID, name, category)
		if err != nil {
			return err
		}

		fields := docstore.Document{
			"manufacturerId": manufacturerID,
			"name":           name,
			"category":       category,
			"updatedAt":      now,
		}
		if attrs.Recyclability != "" {
			fields["recyclability"] = attrs.Recyclability
		}
		if len(attrs.RecoverableMetals) > 0 {
			fields["recoverableMetals"] = attrs.RecoverableMetals
		}

		if entry != nil && entry.ProductID != "" {
			productID = entry.ProductID
			existing, err := tx.Get(ctx, repository.ModelPath(manufacturerID, productID))
			if err != nil {
				return err
			}
			if existing == nil {
				fields["instanceCount"] = 0
			}
			fields["productId"] = productID
			return tx.Set(ctx, repository.ModelPath(manufacturerID, productID), fields, docstore.Merge())
		}

		productID = uid.New()
		fields["productId"] = productID
		fields["instanceCount"] = 0
		if err := tx.Set(ctx, repository.ModelPath(manufacturerID, productID), fields); err != nil {
			return err
		}
		return repository.PutModelIndex(ctx, tx, manufacturerID, &repository.ModelIndexEntry{
			ProductID: productID,
			Name:      name,
			Category:  category,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve product model: %w", err)
	}
	return productID, nil
}

// CreateInstance creates a product instance and returns its shared secret.
// The public summary is written after the instance commits; a failed summary
// write is logged and reconciled on the next preview.
func (r *Registry) CreateInstance(ctx context.Context, manufacturerID, productID, serialNumber string) (string, error) {
	if err := validateInstanceKey(manufacturerID, productID, serialNumber); err != nil {
		return "", err
	}

	secret, err := GenerateSecretKey()
	if err != nil {
		return "", model.Wrap(model.KindInternal, err, "failed to generate secret key")
	}

	var pm *model.ProductModel
	err = r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := r.now()

		m, err := repository.GetModel(ctx, tx, manufacturerID, productID)
		if err != nil {
			return err
		}
		if m == nil {
			return model.Errorf(model.KindNotFound, "product model %s not found", productID)
		}
		pm = m

		existing, err := tx.Get(ctx, repository.InstancePath(manufacturerID, productID, serialNumber))
		if err != nil {
			return err
		}
		if existing != nil {
			return model.Errorf(model.KindAlreadyExists, "product instance %s already exists", serialNumber)
		}

		inst := &model.ProductInstance{
			ManufacturerID:  manufacturerID,
			ProductID:       productID,
			SerialNumber:    serialNumber,
			SecretKey:       secret,
			Registered:      false,
			RegisteredUsers: []string{},
			UserCount:       0,
			RecycleStatus:   model.RecycleUninitiated,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repository.PutInstance(ctx, tx, inst); err != nil {
			return err
		}
		return tx.Update(ctx, repository.ModelPath(manufacturerID, productID), docstore.Document{
			"instanceCount": docstore.Increment(1),
			"updatedAt":     now,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to create product instance: %w", err)
	}

	summary := r.summaryFor(pm, serialNumber)
	if err := repository.PutPublicSummary(ctx, r.store, summary); err != nil {
		r.log.Warn().Err(err).Str("manufacturer_id", manufacturerID).Str("serial", serialNumber).Msg("public summary write failed")
	}

	r.log.Info().Str("manufacturer_id", manufacturerID).Str("product_id", productID).Str("serial", serialNumber).Msg("instance created")
	return secret, nil
}

// IssueProduct resolves the model for spec and creates the instance in one call.
func (r *Registry) IssueProduct(ctx context.Context, manufacturerID string, spec ProductSpec) (*IssuedProduct, error) {
	productID, err := r.ResolveOrCreateModel(ctx, manufacturerID, spec.Name, spec.Category, model.ModelAttributes{
		Recyclability:     spec.Recyclability,
		RecoverableMetals: spec.RecoverableMetals,
	})
	if err != nil {
		return nil, err
	}

	secret, err := r.CreateInstance(ctx, manufacturerID, productID, spec.SerialNumber)
	if err != nil {
		return nil, err
	}

	payload := model.QRPayload{ManufacturerID: manufacturerID, ProductID: productID, SerialNumber: spec.SerialNumber}
	return &IssuedProduct{
		ManufacturerID: manufacturerID,
		ProductID:      productID,
		SerialNumber:   spec.SerialNumber,
		SecretKey:      secret,
		QRPayload:      payload.String(),
		QRURL:          payload.URL(r.publicBaseURL),
	}, nil
}

// DeleteInstance removes an instance and its public summary. The model and its
// index entry go with the last instance.
func (r *Registry) DeleteInstance(ctx context.Context, manufacturerID, productID, serialNumber string) (modelDeleted bool, err error) {
	if err := validateInstanceKey(manufacturerID, productID, serialNumber); err != nil {
		return false, err
	}

	err = r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		modelDeleted = false

		instPath := repository.InstancePath(manufacturerID, productID, serialNumber)
		existing, err := tx.Get(ctx, instPath)
		if err != nil {
			return err
		}
		if existing == nil {
			return model.Errorf(model.KindNotFound, "product instance %s not found", serialNumber)
		}

		m, err := repository.GetModel(ctx, tx, manufacturerID, productID)
		if err != nil {
			return err
		}

		if err := tx.Delete(ctx, instPath); err != nil {
			return err
		}
		summary, err := repository.GetPublicSummary(ctx, tx, manufacturerID, serialNumber)
		if err != nil {
			return err
		}
		if summary != nil && summary.ProductID == productID {
			if err := tx.Delete(ctx, repository.PublicSummaryPath(manufacturerID, serialNumber)); err != nil {
				return err
			}
		}

		if m == nil {
			return nil
		}
		if m.InstanceCount <= 1 {
			modelDeleted = true
			if err := tx.Delete(ctx, repository.ModelPath(manufacturerID, productID)); err != nil {
				return err
			}
			return tx.Delete(ctx, repository.ModelIndexPath(manufacturerID, m.Name, m.Category))
		}
		return tx.Update(ctx, repository.ModelPath(manufacturerID, productID), docstore.Document{
			"instanceCount": docstore.Increment(-1),
			"updatedAt":     r.now(),
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete product instance: %w", err)
	}

	r.log.Info().Str("manufacturer_id", manufacturerID).Str("product_id", productID).Str("serial", serialNumber).
		Bool("model_deleted", modelDeleted).Msg("instance deleted")
	return modelDeleted, nil
}

// GetPublicSummary returns the secret-free projection of an instance,
// rebuilding it when the advisory copy is missing.
func (r *Registry) GetPublicSummary(ctx context.Context, manufacturerID, productID, serialNumber string) (*model.PublicProductSummary, error) {
	if err := validateInstanceKey(manufacturerID, productID, serialNumber); err != nil {
		return nil, err
	}

	summary, err := repository.GetPublicSummary(ctx, r.store, manufacturerID, serialNumber)
	if err != nil {
		return nil, err
	}
	if summary != nil && summary.ProductID == productID {
		return summary, nil
	}

	inst, err := r.store.Get(ctx, repository.InstancePath(manufacturerID, productID, serialNumber))
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, model.Errorf(model.KindNotFound, "product %s not found", serialNumber)
	}
	pm, err := repository.GetModel(ctx, r.store, manufacturerID, productID)
	if err != nil {
		return nil, err
	}
	if pm == nil {
		return nil, model.Errorf(model.KindNotFound, "product model %s not found", productID)
	}

	summary = r.summaryFor(pm, serialNumber)
	if err := repository.PutPublicSummary(ctx, r.store, summary); err != nil {
		r.log.Warn().Err(err).Str("serial", serialNumber).Msg("public summary reconcile failed")
	}
	return summary, nil
}

// PreviewPayload decodes a scanned code and returns its public summary.
func (r *Registry) PreviewPayload(ctx context.Context, raw string) (*model.PublicProductSummary, error) {
	p, err := model.ParseQRPayload(raw)
	if err != nil {
		return nil, err
	}
	return r.GetPublicSummary(ctx, p.ManufacturerID, p.ProductID, p.SerialNumber)
}

// ListConsumerProducts returns a consumer's registered products. With
// activeOnly, products whose recycling has started or finished are omitted.
func (r *Registry) ListConsumerProducts(ctx context.Context, consumerID string, activeOnly bool) ([]model.ConsumerScanRecord, error) {
	if consumerID == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "authentication required")
	}

	recs, bad, err := repository.ListScans(ctx, r.store, consumerID)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		r.log.Warn().Err(b.Err).Str("path", b.Path).Msg("skipping malformed scan record")
	}

	if !activeOnly {
		return recs, nil
	}
	out := make([]model.ConsumerScanRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Active() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *Registry) summaryFor(pm *model.ProductModel, serialNumber string) *model.PublicProductSummary {
	payload := model.QRPayload{ManufacturerID: pm.ManufacturerID, ProductID: pm.ProductID, SerialNumber: serialNumber}
	return &model.PublicProductSummary{
		Name:           pm.Name,
		Category:       pm.Category,
		SerialNumber:   serialNumber,
		ManufacturerID: pm.ManufacturerID,
		ProductID:      pm.ProductID,
		QRPayload:      payload.String(),
	}
}

func validateInstanceKey(manufacturerID, productID, serialNumber string) error {
	if err := docstore.ValidateSegment("manufacturerId", manufacturerID); err != nil {
		return err
	}
	if err := docstore.ValidateSegment("productId", productID); err != nil {
		return err
	}
	return docstore.ValidateSegment("serialNumber", serialNumber)
}
