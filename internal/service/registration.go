package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
	"ecotrace-api/pkg/logger"

	"github.com/rs/zerolog"
)

// RegistrationInput is what a consumer submits to claim a product.
type RegistrationInput struct {
	ManufacturerID string `json:"manufacturerId"`
	ProductID      string `json:"productId"`
	SerialNumber   string `json:"serialNumber"`
	ModelNumber    string `json:"modelNumber"`
	SecretKey      string `json:"secretKey"`
}

// RegistrationResult is the outcome of a successful registration.
type RegistrationResult struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message,omitempty"`
	Record  *model.ConsumerScanRecord `json:"record,omitempty"`
}

// SweepReport summarises one verification sweep.
type SweepReport struct {
	Consumers int `json:"consumers"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// Registration binds product instances to consumers and reverses the binding.
type Registration struct {
	store docstore.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewRegistration creates the registration protocol over store.
func NewRegistration(store docstore.Store) *Registration {
	return &Registration{
		store: store,
		log:   logger.Component("Registration"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Register atomically binds the instance to consumerID. Preconditions are
// checked in a fixed order and any failure leaves no trace in the store.
func (s *Registration) Register(ctx context.Context, consumerID string, in RegistrationInput) (*RegistrationResult, error) {
	if consumerID == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "authentication required")
	}
	if err := docstore.ValidateSegment("consumerId", consumerID); err != nil {
		return nil, err
	}
	if err := validateInstanceKey(in.ManufacturerID, in.ProductID, in.SerialNumber); err != nil {
		return nil, err
	}
	if in.SecretKey == "" {
		return nil, model.Errorf(model.KindInvalidArgument, "secretKey is required")
	}

	var rec *model.ConsumerScanRecord
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := s.now()
		instPath := repository.InstancePath(in.ManufacturerID, in.ProductID, in.SerialNumber)

		doc, err := tx.Get(ctx, instPath)
		if err != nil {
			return err
		}
		if doc == nil {
			return model.Errorf(model.KindNotFound, "product %s not found", in.SerialNumber)
		}

		claim, err := repository.GetClaim(ctx, tx, consumerID, in.ProductID)
		if err != nil {
			return err
		}
		if claim != nil {
			return model.Errorf(model.KindAlreadyRegisteredByCaller, "you have already registered this product")
		}

		if holder, ok := doc["registeredBy"].(string); ok && holder != "" {
			if holder == consumerID {
				return model.Errorf(model.KindAlreadyRegisteredByCaller, "you have already registered this product")
			}
			return model.Errorf(model.KindAlreadyRegisteredByOther, "product is already registered by another user")
		}

		inst, err := repository.DecodeInstance(in.ManufacturerID, in.ProductID, in.SerialNumber, doc)
		if err != nil {
			return err
		}

		if subtle.ConstantTimeCompare([]byte(in.SecretKey), []byte(inst.SecretKey)) != 1 {
			return model.Errorf(model.KindPermissionDenied, "secret key does not match")
		}

		rec = &model.ConsumerScanRecord{
			ConsumerID:     consumerID,
			SerialNumber:   in.SerialNumber,
			ProductID:      in.ProductID,
			ManufacturerID: in.ManufacturerID,
			ModelNumber:    in.ModelNumber,
			RecycleStatus:  inst.RecycleStatus.Normalize(),
			RegisteredAt:   now,
		}
		if err := repository.PutScan(ctx, tx, rec); err != nil {
			return err
		}
		if err := repository.PutClaim(ctx, tx, consumerID, &model.ScanClaim{
			ProductID:      in.ProductID,
			ManufacturerID: in.ManufacturerID,
			SerialNumber:   in.SerialNumber,
			ClaimedAt:      now,
		}); err != nil {
			return err
		}
		if err := repository.TouchConsumer(ctx, tx, consumerID); err != nil {
			return err
		}

		fields := docstore.Document{
			"registeredBy": consumerID,
			"registered":   true,
			"updatedAt":    now,
		}
		if !containsString(inst.RegisteredUsers, consumerID) {
			fields["registeredUsers"] = docstore.ArrayUnion(consumerID)
			fields["userCount"] = docstore.Increment(1)
		}
		return tx.Update(ctx, instPath, fields)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register product: %w", err)
	}

	s.log.Info().Str("consumer_id", consumerID).Str("product_id", in.ProductID).Str("serial", in.SerialNumber).Msg("product registered")
	return &RegistrationResult{Success: true, Message: "Product registered successfully", Record: rec}, nil
}

// RegisterPayload decodes a scanned code and registers the instance it names.
func (s *Registration) RegisterPayload(ctx context.Context, consumerID, payload, modelNumber, secretKey string) (*RegistrationResult, error) {
	if consumerID == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "authentication required")
	}
	p, err := model.ParseQRPayload(payload)
	if err != nil {
		return nil, err
	}
	return s.Register(ctx, consumerID, RegistrationInput{
		ManufacturerID: p.ManufacturerID,
		ProductID:      p.ProductID,
		SerialNumber:   p.SerialNumber,
		ModelNumber:    modelNumber,
		SecretKey:      secretKey,
	})
}

// DeleteScan removes a consumer's scan record and claim, then releases the
// instance. The scan deletion is authoritative; a failed release is logged.
func (s *Registration) DeleteScan(ctx context.Context, consumerID, serialNumber string) error {
	if consumerID == "" {
		return model.Errorf(model.KindUnauthenticated, "authentication required")
	}
	if err := docstore.ValidateSegment("serialNumber", serialNumber); err != nil {
		return err
	}

	var rec *model.ConsumerScanRecord
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		rec = nil
		scanPath := repository.ScanPath(consumerID, serialNumber)

		doc, err := tx.Get(ctx, scanPath)
		if err != nil {
			return err
		}
		if doc == nil {
			return model.Errorf(model.KindNotFound, "scan record %s not found", serialNumber)
		}

		r, err := repository.GetScan(ctx, tx, consumerID, serialNumber)
		if err != nil {
			if model.KindOf(err) != model.KindDataCorruption {
				return err
			}
			s.log.Warn().Err(err).Str("path", scanPath).Msg("deleting malformed scan record without release")
			return tx.Delete(ctx, scanPath)
		}
		rec = r

		if err := tx.Delete(ctx, scanPath); err != nil {
			return err
		}
		return s.deleteClaimFor(ctx, tx, consumerID, rec.ProductID, serialNumber)
	})
	if err != nil {
		return fmt.Errorf("failed to delete scan record: %w", err)
	}

	if rec != nil {
		if err := s.Unbind(ctx, consumerID, rec.ManufacturerID, rec.ProductID, rec.SerialNumber); err != nil {
			s.log.Error().Err(err).Str("consumer_id", consumerID).Str("serial", serialNumber).Msg("unbind failed after scan deletion")
		}
	}
	return nil
}

// Unbind releases consumerID's hold on an instance. It is idempotent and a
// missing instance is not an error.
func (s *Registration) Unbind(ctx context.Context, consumerID, manufacturerID, productID, serialNumber string) error {
	if err := validateInstanceKey(manufacturerID, productID, serialNumber); err != nil {
		return err
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		instPath := repository.InstancePath(manufacturerID, productID, serialNumber)
		doc, err := tx.Get(ctx, instPath)
		if err != nil {
			return err
		}
		if doc == nil {
			s.log.Info().Str("path", instPath).Msg("instance already gone, nothing to unbind")
			return nil
		}

		inst, err := repository.DecodeInstance(manufacturerID, productID, serialNumber, doc)
		if err != nil {
			return err
		}

		fields := docstore.Document{}
		if containsString(inst.RegisteredUsers, consumerID) {
			fields["registeredUsers"] = docstore.ArrayRemove(consumerID)
			fields["userCount"] = docstore.Increment(-1)
		}
		if inst.RegisteredBy != nil && *inst.RegisteredBy == consumerID {
			fields["registeredBy"] = nil
			fields["registered"] = false
		}
		if len(fields) == 0 {
			return nil
		}
		fields["updatedAt"] = s.now()
		return tx.Update(ctx, instPath, fields)
	})
	if err != nil {
		return fmt.Errorf("failed to unbind product: %w", err)
	}
	return nil
}

// VerifyScans deletes consumerID's scan records whose instance no longer
// exists and returns how many were removed.
func (s *Registration) VerifyScans(ctx context.Context, consumerID string) (int, error) {
	if consumerID == "" {
		return 0, model.Errorf(model.KindUnauthenticated, "authentication required")
	}

	recs, bad, err := repository.ListScans(ctx, s.store, consumerID)
	if err != nil {
		return 0, err
	}
	for _, b := range bad {
		s.log.Warn().Err(b.Err).Str("path", b.Path).Msg("skipping malformed scan record")
	}

	removed := 0
	for _, rec := range recs {
		gone := false
		err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			gone = false
			inst, err := tx.Get(ctx, repository.InstancePath(rec.ManufacturerID, rec.ProductID, rec.SerialNumber))
			if err != nil || inst != nil {
				return err
			}
			current, err := tx.Get(ctx, repository.ScanPath(consumerID, rec.SerialNumber))
			if err != nil || current == nil {
				return err
			}
			gone = true
			if err := tx.Delete(ctx, repository.ScanPath(consumerID, rec.SerialNumber)); err != nil {
				return err
			}
			return s.deleteClaimFor(ctx, tx, consumerID, rec.ProductID, rec.SerialNumber)
		})
		if err != nil {
			return removed, fmt.Errorf("failed to verify scan %s: %w", rec.SerialNumber, err)
		}
		if gone {
			removed++
			s.log.Info().Str("consumer_id", consumerID).Str("serial", rec.SerialNumber).Msg("removed orphaned scan record")
		}
	}
	return removed, nil
}

// SweepAll runs VerifyScans for every known consumer. Per-consumer failures
// are counted and logged, never fatal.
func (s *Registration) SweepAll(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	ids, err := repository.ListConsumerIDs(ctx, s.store)
	if err != nil {
		return report, err
	}

	removed, failures := Gather(ctx, ids, s.VerifyScans)
	report.Consumers = len(ids)
	for _, n := range removed {
		report.Removed += n
	}
	report.Failed = len(failures)
	for _, f := range failures {
		s.log.Error().Err(f.Err).Str("consumer_id", f.Key).Msg("scan verification failed")
	}
	return report, nil
}

// deleteClaimFor removes the (consumer, productId) claim if it points at serialNumber.
func (s *Registration) deleteClaimFor(ctx context.Context, tx docstore.Tx, consumerID, productID, serialNumber string) error {
	claim, err := repository.GetClaim(ctx, tx, consumerID, productID)
	if err != nil {
		return err
	}
	if claim == nil || claim.SerialNumber != serialNumber {
		return nil
	}
	return tx.Delete(ctx, repository.ClaimPath(consumerID, productID))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
