package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
	"ecotrace-api/pkg/logger"
	"ecotrace-api/pkg/uid"

	"github.com/rs/zerolog"
)

// RejectionNotifier delivers rejection notices out of band.
type RejectionNotifier interface {
	SendRejectionEmail(ctx context.Context, notice model.RejectionNotice) error
}

// OpenRequestInput is what a consumer submits to ask a recycler for pickup.
type OpenRequestInput struct {
	SerialNumber  string `json:"serialNumber"`
	RecyclerID    string `json:"recyclerId"`
	ConsumerName  string `json:"consumerName,omitempty"`
	ConsumerEmail string `json:"consumerEmail,omitempty"`
	ConsumerPhone string `json:"consumerPhone,omitempty"`
}

// RejectOutcome reports a rejection and whether its notice went out. The
// rejection stands even when the notice failed.
type RejectOutcome struct {
	Request           *model.RecyclingRequest `json:"request"`
	Notified          bool                    `json:"notified"`
	NotificationError string                  `json:"notificationError,omitempty"`
}

// RecyclingService drives recycling requests through their two lifecycles.
type RecyclingService struct {
	store         docstore.Store
	notifier      RejectionNotifier
	notifyTimeout time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

// NewRecyclingService creates the request state machine. notifier may be nil.
func NewRecyclingService(store docstore.Store, notifier RejectionNotifier) *RecyclingService {
	return &RecyclingService{
		store:         store,
		notifier:      notifier,
		notifyTimeout: 15 * time.Second,
		log:           logger.Component("RecyclingService"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Open creates a pending request for one of the consumer's active products.
func (s *RecyclingService) Open(ctx context.Context, consumerID string, in OpenRequestInput) (*model.RecyclingRequest, error) {
	if consumerID == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "authentication required")
	}
	if err := docstore.ValidateSegment("serialNumber", in.SerialNumber); err != nil {
		return nil, err
	}
	if err := docstore.ValidateSegment("recyclerId", in.RecyclerID); err != nil {
		return nil, err
	}

	var req *model.RecyclingRequest
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := s.now()

		rec, err := repository.GetScan(ctx, tx, consumerID, in.SerialNumber)
		if err != nil {
			return err
		}
		if rec == nil {
			return model.Errorf(model.KindNotFound, "scan record %s not found", in.SerialNumber)
		}
		if !rec.Active() {
			return model.Errorf(model.KindFailedPrecondition, "recycling of %s has already %s", in.SerialNumber, rec.RecycleStatus)
		}
		if rec.Request.Open() {
			return model.Errorf(model.KindAlreadyExists, "a recycling request for %s is already %s", in.SerialNumber, rec.Request.Status)
		}

		facility, err := tx.Get(ctx, repository.RecyclerPath(in.RecyclerID))
		if err != nil {
			return err
		}
		if facility == nil {
			return model.Errorf(model.KindNotFound, "recycler %s not found", in.RecyclerID)
		}

		productName := rec.ModelNumber
		if pm, err := repository.GetModel(ctx, tx, rec.ManufacturerID, rec.ProductID); err == nil && pm != nil && pm.Name != "" {
			productName = pm.Name
		}

		req = &model.RecyclingRequest{
			QueryID:        uid.New(),
			Status:         model.RequestPending,
			RecycleStatus:  model.RecycleUninitiated,
			ConsumerID:     consumerID,
			ConsumerName:   strings.TrimSpace(in.ConsumerName),
			ConsumerEmail:  strings.TrimSpace(in.ConsumerEmail),
			ConsumerPhone:  strings.TrimSpace(in.ConsumerPhone),
			RecyclerID:     in.RecyclerID,
			ManufacturerID: rec.ManufacturerID,
			ProductID:      rec.ProductID,
			SerialNumber:   rec.SerialNumber,
			ProductName:    productName,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repository.PutRequest(ctx, tx, req); err != nil {
			return err
		}
		return tx.Update(ctx, repository.ScanPath(consumerID, in.SerialNumber), docstore.Document{
			"request": req.Ref(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open recycling request: %w", err)
	}

	s.log.Info().Str("query_id", req.QueryID).Str("consumer_id", consumerID).Str("recycler_id", in.RecyclerID).Msg("request opened")
	return req, nil
}

// Accept moves a pending request to accepted.
func (s *RecyclingService) Accept(ctx context.Context, queryID string) (*model.RecyclingRequest, error) {
	req, err := s.decide(ctx, queryID, model.RequestAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to accept recycling request: %w", err)
	}
	return req, nil
}

// Reject moves a pending request to rejected and then tries to notify the
// consumer. A failed notice is reported in the outcome, never rolled back.
func (s *RecyclingService) Reject(ctx context.Context, queryID, reason string) (*RejectOutcome, error) {
	req, err := s.decide(ctx, queryID, model.RequestRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to reject recycling request: %w", err)
	}

	out := &RejectOutcome{Request: req}
	switch {
	case s.notifier == nil:
		out.NotificationError = "notifications are not configured"
	case req.ConsumerEmail == "":
		out.NotificationError = "request has no contact email"
	default:
		nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		err := s.notifier.SendRejectionEmail(nctx, model.RejectionNotice{
			Recipient:   req.ConsumerEmail,
			ProductName: req.ProductName,
			Reason:      strings.TrimSpace(reason),
		})
		if err != nil {
			s.log.Error().Err(err).Str("query_id", queryID).Msg("rejection email failed")
			out.NotificationError = err.Error()
		} else {
			out.Notified = true
		}
	}
	return out, nil
}

// decide applies an approval transition. Only pending requests can be decided.
func (s *RecyclingService) decide(ctx context.Context, queryID string, to model.RequestStatus) (*model.RecyclingRequest, error) {
	if err := docstore.ValidateSegment("queryId", queryID); err != nil {
		return nil, err
	}

	var req *model.RecyclingRequest
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		r, err := repository.GetRequest(ctx, tx, queryID)
		if err != nil {
			return err
		}
		if r == nil {
			return model.Errorf(model.KindNotFound, "recycling request %s not found", queryID)
		}
		if r.Status != model.RequestPending {
			return model.Errorf(model.KindFailedPrecondition, "recycling request %s is already %s", queryID, r.Status)
		}

		r.Status = to
		r.UpdatedAt = s.now()
		if err := repository.PutRequest(ctx, tx, r); err != nil {
			return err
		}
		req = r
		return s.syncScan(ctx, tx, r, nil)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("query_id", queryID).Str("status", string(to)).Msg("request decided")
	return req, nil
}

// AdvanceRecycleStatus moves an accepted request's physical recycling state
// forward and mirrors it onto the product instance and the scan record.
func (s *RecyclingService) AdvanceRecycleStatus(ctx context.Context, queryID string, to model.RecycleStatus) (*model.RecyclingRequest, error) {
	if err := docstore.ValidateSegment("queryId", queryID); err != nil {
		return nil, err
	}
	if to == "" || !to.Valid() {
		return nil, model.Errorf(model.KindInvalidArgument, "unknown recycle status %q", to)
	}

	var req *model.RecyclingRequest
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		now := s.now()

		r, err := repository.GetRequest(ctx, tx, queryID)
		if err != nil {
			return err
		}
		if r == nil {
			return model.Errorf(model.KindNotFound, "recycling request %s not found", queryID)
		}
		if r.Status != model.RequestAccepted {
			return model.Errorf(model.KindFailedPrecondition, "recycling request %s is %s, not accepted", queryID, r.Status)
		}
		if !r.RecycleStatus.CanAdvanceTo(to) {
			return model.Errorf(model.KindFailedPrecondition, "cannot move recycle status from %s to %s", r.RecycleStatus.Normalize(), to)
		}

		r.RecycleStatus = to
		r.UpdatedAt = now
		if to == model.RecycleFinished {
			r.FinishedAt = &now
		}
		if err := repository.PutRequest(ctx, tx, r); err != nil {
			return err
		}
		req = r

		instPath := repository.InstancePath(r.ManufacturerID, r.ProductID, r.SerialNumber)
		inst, err := tx.Get(ctx, instPath)
		if err != nil {
			return err
		}
		if inst != nil {
			if err := tx.Update(ctx, instPath, docstore.Document{"recycleStatus": to, "updatedAt": now}); err != nil {
				return err
			}
		}
		return s.syncScan(ctx, tx, r, docstore.Document{"recycleStatus": to})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance recycle status: %w", err)
	}

	s.log.Info().Str("query_id", queryID).Str("recycle_status", string(to)).Msg("recycle status advanced")
	return req, nil
}

// DeleteLog removes a request and clears its copy from the scan record.
func (s *RecyclingService) DeleteLog(ctx context.Context, queryID string) error {
	if err := docstore.ValidateSegment("queryId", queryID); err != nil {
		return err
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		r, err := repository.GetRequest(ctx, tx, queryID)
		if err != nil {
			return err
		}
		if r == nil {
			return model.Errorf(model.KindNotFound, "recycling request %s not found", queryID)
		}
		if err := tx.Delete(ctx, repository.RequestPath(queryID)); err != nil {
			return err
		}

		rec, err := repository.GetScan(ctx, tx, r.ConsumerID, r.SerialNumber)
		if err != nil {
			if model.KindOf(err) == model.KindDataCorruption {
				s.log.Warn().Err(err).Str("query_id", queryID).Msg("scan record unreadable, request ref left in place")
				return nil
			}
			return err
		}
		if rec == nil || rec.Request == nil || rec.Request.QueryID != queryID {
			return nil
		}
		return tx.Update(ctx, repository.ScanPath(r.ConsumerID, r.SerialNumber), docstore.Document{
			"request": docstore.DeleteField(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to delete recycling request: %w", err)
	}
	return nil
}

// Get returns one request.
func (s *RecyclingService) Get(ctx context.Context, queryID string) (*model.RecyclingRequest, error) {
	if err := docstore.ValidateSegment("queryId", queryID); err != nil {
		return nil, err
	}
	req, err := repository.GetRequest(ctx, s.store, queryID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, model.Errorf(model.KindNotFound, "recycling request %s not found", queryID)
	}
	return req, nil
}

// ListForRecycler returns the requests addressed to recyclerID, newest first.
func (s *RecyclingService) ListForRecycler(ctx context.Context, recyclerID string) ([]model.RecyclingRequest, error) {
	return s.list(ctx, func(r *model.RecyclingRequest) bool { return r.RecyclerID == recyclerID })
}

// ListForConsumer returns the requests opened by consumerID, newest first.
func (s *RecyclingService) ListForConsumer(ctx context.Context, consumerID string) ([]model.RecyclingRequest, error) {
	if consumerID == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "authentication required")
	}
	return s.list(ctx, func(r *model.RecyclingRequest) bool { return r.ConsumerID == consumerID })
}

func (s *RecyclingService) list(ctx context.Context, keep func(*model.RecyclingRequest) bool) ([]model.RecyclingRequest, error) {
	reqs, bad, err := repository.ListRequests(ctx, s.store, keep)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		s.log.Warn().Err(b.Err).Str("path", b.Path).Msg("skipping malformed recycling request")
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

// syncScan writes extra into the consumer's scan record, and refreshes the
// embedded request copy when the record still refers to this request.
func (s *RecyclingService) syncScan(ctx context.Context, tx docstore.Tx, r *model.RecyclingRequest, extra docstore.Document) error {
	rec, err := repository.GetScan(ctx, tx, r.ConsumerID, r.SerialNumber)
	if err != nil {
		if model.KindOf(err) == model.KindDataCorruption {
			s.log.Warn().Err(err).Str("query_id", r.QueryID).Msg("scan record malformed, request copy not updated")
			return nil
		}
		return err
	}
	if rec == nil {
		return nil
	}

	fields := docstore.Document{}
	for k, v := range extra {
		fields[k] = v
	}
	if rec.Request != nil && rec.Request.QueryID == r.QueryID {
		fields["request"] = r.Ref()
	}
	if len(fields) == 0 {
		return nil
	}
	return tx.Update(ctx, repository.ScanPath(r.ConsumerID, r.SerialNumber), fields)
}
