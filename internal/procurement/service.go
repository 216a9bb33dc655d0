package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id int64) (PODetail, error)
	ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
}

// Service tracks purchase orders and the ordered counters on MTO lines.
type Service struct {
	repo     RepositoryPort
	resolver mto.StatusResolver
	retry    mto.RetryScheduler
	audit    shared.AuditPort
	notifier shared.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, resolver mto.StatusResolver, retry mto.RetryScheduler, audit shared.AuditPort, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		retry:    retry,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var maxQuantityOrdered = decimal.NewFromInt(math.MaxInt64)

// UpdateQuantityOrdered overwrites the manual ordered counter of a line.
// Fractional values are truncated toward zero.
func (s *Service) UpdateQuantityOrdered(ctx context.Context, lineID int64, value decimal.Decimal, actorID int64) (QuantityOrderedResult, error) {
	if value.IsNegative() {
		return QuantityOrderedResult{}, shared.InvalidQuantityf("quantity_ordered must not be negative")
	}
	whole := value.Truncate(0)
	if whole.GreaterThan(maxQuantityOrdered) {
		return QuantityOrderedResult{}, shared.InvalidQuantityf("quantity_ordered %s is too large", value)
	}
	qty := whole.IntPart()
	now := s.now()
	var line LineRef
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		line, err = tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if line.Deleted {
			return shared.ConflictingStatef("mto line %d is deleted", lineID)
		}
		return tx.SetQuantityOrdered(ctx, lineID, qty, now)
	})
	if err != nil {
		return QuantityOrderedResult{}, err
	}

	result := QuantityOrderedResult{LineID: lineID, MTOID: line.MTOID, QuantityOrdered: qty}
	result.Status, result.StatusChanged = mto.ResolveAfterCommit(ctx, s.resolver, s.retry, s.logger, line.MTOID, &result.Warnings)
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:     actorID,
		EntityType:  "mto_line",
		EntityID:    strconv.FormatInt(lineID, 10),
		Action:      "mto_line:quantity_ordered",
		Description: fmt.Sprintf("quantity_ordered %d -> %d", line.QuantityOrdered, qty),
	}, &result.Warnings)
	s.logWarnings("update quantity ordered", result.Warnings)
	return result, nil
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.NewString()[:8]))
}

// CreatePurchaseOrder records a draft purchase order against MTO lines.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PODetail, shared.Warnings, error) {
	if input.SupplierID <= 0 {
		return PODetail{}, nil, shared.NotFoundf("supplier %d", input.SupplierID)
	}
	if len(input.Items) == 0 {
		return PODetail{}, nil, shared.InvalidQuantityf("purchase order needs at least one item")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return PODetail{}, nil, shared.InvalidQuantityf("quantity for line %d must be positive", item.MTOLineID)
		}
	}
	number := strings.TrimSpace(input.Number)
	if number == "" {
		number = generateNumber("PO")
	}
	now := s.now()
	var detail PODetail
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.InsertPO(ctx, PurchaseOrder{
			Number:     number,
			SupplierID: input.SupplierID,
			Status:     POStatusDraft,
			Notes:      input.Notes,
			CreatedBy:  input.ActorID,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		detail.PurchaseOrder = po
		for _, in := range input.Items {
			line, err := tx.GetLineForUpdate(ctx, in.MTOLineID)
			if err != nil {
				return err
			}
			if line.Deleted {
				return shared.ConflictingStatef("mto line %d is deleted", line.ID)
			}
			item, err := tx.InsertOrderedItem(ctx, OrderedItem{PurchaseOrderID: po.ID, MTOLineID: line.ID, Quantity: in.Quantity})
			if err != nil {
				return err
			}
			detail.Items = append(detail.Items, item)
		}
		return nil
	})
	if err != nil {
		return PODetail{}, nil, err
	}
	var warnings shared.Warnings
	s.record(ctx, input.ActorID, detail.PurchaseOrder, "purchase_order:create", &warnings)
	s.logger.Info("purchase order created",
		slog.Int64("purchase_order_id", detail.ID),
		slog.String("number", detail.Number),
		slog.Int("items", len(detail.Items)))
	return detail, warnings, nil
}

// MarkOrdered moves a draft purchase order to ORDERED.
func (s *Service) MarkOrdered(ctx context.Context, id, actorID int64) (PurchaseOrder, shared.Warnings, error) {
	return s.transition(ctx, id, actorID, POStatusOrdered, func(po PurchaseOrder) error {
		if po.Status != POStatusDraft {
			return shared.ConflictingStatef("purchase order %d is %s", po.ID, po.Status)
		}
		return nil
	})
}

// Cancel cancels an open purchase order. Cancelled orders never count as coverage.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (PurchaseOrder, shared.Warnings, error) {
	return s.transition(ctx, id, actorID, POStatusCancelled, func(po PurchaseOrder) error {
		if !po.Status.Open() {
			return shared.ConflictingStatef("purchase order %d is %s", po.ID, po.Status)
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id, actorID int64, to POStatus, guard func(PurchaseOrder) error) (PurchaseOrder, shared.Warnings, error) {
	now := s.now()
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := guard(po); err != nil {
			return err
		}
		if err := tx.UpdatePOStatus(ctx, id, to, now); err != nil {
			return err
		}
		po.Status = to
		if to == POStatusOrdered {
			po.OrderedAt = &now
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	var warnings shared.Warnings
	s.record(ctx, actorID, po, "purchase_order:"+strings.ToLower(string(to)), &warnings)
	s.logWarnings("purchase order "+strings.ToLower(string(to)), warnings)
	return po, warnings, nil
}

// Receive marks an open purchase order as received. Each item's quantity is
// added to its line's PO-ordered counter exactly once, then the status of every
// affected MTO is recomputed.
func (s *Service) Receive(ctx context.Context, id, actorID int64) (ReceiptResult, error) {
	now := s.now()
	var (
		detail PODetail
		mtoIDs = make(map[int64]struct{})
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !po.Status.Open() {
			return shared.ConflictingStatef("purchase order %d is %s", po.ID, po.Status)
		}
		items, err := tx.ListOrderedItems(ctx, po.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			line, err := tx.GetLineForUpdate(ctx, item.MTOLineID)
			if err != nil {
				return err
			}
			if err := tx.AddQuantityOrderedPO(ctx, line.ID, item.Quantity, now); err != nil {
				return err
			}
			mtoIDs[line.MTOID] = struct{}{}
		}
		if err := tx.UpdatePOStatus(ctx, po.ID, POStatusReceived, now); err != nil {
			return err
		}
		po.Status = POStatusReceived
		po.ReceivedAt = &now
		detail = PODetail{PurchaseOrder: po, Items: items}
		return nil
	})
	if err != nil {
		return ReceiptResult{}, err
	}

	result := ReceiptResult{PurchaseOrder: detail}
	ids := make([]int64, 0, len(mtoIDs))
	for mtoID := range mtoIDs {
		ids = append(ids, mtoID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, mtoID := range ids {
		st := MTOStatus{MTOID: mtoID}
		st.Status, st.Changed = mto.ResolveAfterCommit(ctx, s.resolver, s.retry, s.logger, mtoID, &result.Warnings)
		result.MTOs = append(result.MTOs, st)
	}
	s.record(ctx, actorID, detail.PurchaseOrder, "purchase_order:receive", &result.Warnings)
	shared.SendNotification(ctx, s.notifier, shared.Notification{
		Kind:       shared.NotifyPurchaseReceived,
		EntityType: "purchase_order",
		EntityID:   detail.ID,
		ActorID:    actorID,
		Message:    fmt.Sprintf("purchase order %s received (%d items)", detail.Number, len(detail.Items)),
		At:         now,
	}, &result.Warnings)
	s.logWarnings("receive purchase order", result.Warnings)
	s.logger.Info("purchase order received",
		slog.Int64("purchase_order_id", detail.ID),
		slog.Int("mtos", len(ids)))
	return result, nil
}

// Get returns a purchase order with its items.
func (s *Service) Get(ctx context.Context, id int64) (PODetail, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// List returns purchase orders matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	return s.repo.ListPurchaseOrders(ctx, filter)
}

func (s *Service) record(ctx context.Context, actorID int64, po PurchaseOrder, action string, warnings *shared.Warnings) {
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:     actorID,
		EntityType:  "purchase_order",
		EntityID:    strconv.FormatInt(po.ID, 10),
		Action:      action,
		Description: fmt.Sprintf("%s status %s", po.Number, po.Status),
	}, warnings)
}

func (s *Service) logWarnings(op string, warnings shared.Warnings) {
	for _, w := range warnings {
		s.logger.Warn(op+" post-commit warning", slog.String("code", w.Code), slog.String("message", w.Message))
	}
}
