package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cabinetworks/mto/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	ListTransactions(ctx context.Context, itemID int64, limit int) ([]StockTransaction, error)
}

// MetricsPort receives per-entry tally outcomes.
type MetricsPort interface {
	ObserveTallyItem(outcome string)
}

// Service coordinates ledger operations.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditPort
	notifier shared.Notifier
	metrics  MetricsPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, notifier shared.Notifier, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Apply changes an item's quantity and appends the matching stock transaction
// using tx. The caller owns the transaction.
func Apply(ctx context.Context, tx TxRepository, input DeltaInput, now time.Time) (DeltaResult, error) {
	if err := validateDelta(input); err != nil {
		return DeltaResult{}, err
	}
	item, err := tx.GetItemForUpdate(ctx, input.ItemID)
	if err != nil {
		return DeltaResult{}, err
	}
	return applyLocked(ctx, tx, item, input, now)
}

func validateDelta(input DeltaInput) error {
	if input.ItemID <= 0 {
		return shared.NotFoundf("item %d", input.ItemID)
	}
	if input.Quantity.IsZero() {
		return shared.InvalidQuantityf("delta must be non-zero")
	}
	if !input.Type.Valid() {
		return shared.InvalidQuantityf("unknown transaction type %q", input.Type)
	}
	if input.Type.Inbound() && input.Quantity.IsNegative() {
		return shared.InvalidQuantityf("%s requires a positive delta", input.Type)
	}
	if !input.Type.Inbound() && input.Quantity.IsPositive() {
		return shared.InvalidQuantityf("%s requires a negative delta", input.Type)
	}
	return nil
}

// applyLocked expects item to have been read FOR UPDATE in tx.
func applyLocked(ctx context.Context, tx TxRepository, item Item, input DeltaInput, now time.Time) (DeltaResult, error) {
	newQty := item.Quantity.Add(input.Quantity)
	if newQty.IsNegative() {
		return DeltaResult{}, shared.InvalidQuantityf("item %d would drop to %s", item.ID, newQty.String())
	}
	if err := tx.UpdateItemQuantity(ctx, item.ID, newQty, now); err != nil {
		return DeltaResult{}, err
	}
	txn, err := tx.InsertStockTransaction(ctx, StockTransaction{
		ItemID:    item.ID,
		Quantity:  input.Quantity.Abs(),
		Type:      input.Type,
		Notes:     input.Notes,
		CreatedBy: input.ActorID,
		CreatedAt: now,
	})
	if err != nil {
		return DeltaResult{}, err
	}
	return DeltaResult{ItemID: item.ID, OldQuantity: item.Quantity, NewQuantity: newQty, Transaction: txn}, nil
}

// ApplyDelta applies a signed quantity change in its own transaction.
func (s *Service) ApplyDelta(ctx context.Context, input DeltaInput) (DeltaResult, shared.Warnings, error) {
	if err := validateDelta(input); err != nil {
		return DeltaResult{}, nil, err
	}
	var result DeltaResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = Apply(ctx, tx, input, s.now())
		return err
	})
	if err != nil {
		return DeltaResult{}, nil, err
	}
	var warnings shared.Warnings
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:     input.ActorID,
		EntityType:  "item",
		EntityID:    fmt.Sprintf("%d", input.ItemID),
		Action:      "ledger:" + string(input.Type),
		Description: fmt.Sprintf("%s %s (%s -> %s) %s", input.Type, result.Transaction.Quantity, result.OldQuantity, result.NewQuantity, input.Notes),
	}, &warnings)
	s.logWarnings("apply delta", warnings)
	return result, warnings, nil
}

// ReconcileTally applies a batch of physical counts. Each entry runs in its
// own transaction; a failing entry is reported and the rest continue.
func (s *Service) ReconcileTally(ctx context.Context, input TallyInput) (TallyReport, error) {
	if len(input.Entries) == 0 {
		return TallyReport{}, shared.InvalidQuantityf("tally batch is empty")
	}
	report := TallyReport{
		BatchID: uuid.NewString(),
		Results: make([]TallyResult, 0, len(input.Entries)),
	}
	notes := input.Notes
	if notes == "" {
		notes = "stock tally " + report.BatchID
	}
	for _, entry := range input.Entries {
		result := s.reconcileEntry(ctx, entry, notes, input.ActorID)
		switch result.Outcome {
		case TallyUpdated:
			report.Updated++
		case TallyUnchanged:
			report.Unchanged++
		default:
			report.Failed++
			s.logger.Warn("stock tally entry failed",
				slog.String("batch_id", report.BatchID),
				slog.Int64("item_id", entry.ItemID),
				slog.Any("error", result.err))
		}
		if s.metrics != nil {
			s.metrics.ObserveTallyItem(result.Outcome)
		}
		report.Results = append(report.Results, result)
	}

	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:     input.ActorID,
		EntityType:  "stock_tally",
		EntityID:    report.BatchID,
		Action:      "ledger:tally",
		Description: fmt.Sprintf("updated %d, unchanged %d, failed %d", report.Updated, report.Unchanged, report.Failed),
	}, &report.Warnings)
	if report.Updated > 0 {
		shared.SendNotification(ctx, s.notifier, shared.Notification{
			Kind:       shared.NotifyStockTallied,
			EntityType: "stock_tally",
			ActorID:    input.ActorID,
			Message:    fmt.Sprintf("stock tally %s updated %d items", report.BatchID, report.Updated),
			At:         s.now(),
		}, &report.Warnings)
	}
	s.logWarnings("stock tally", report.Warnings)
	s.logger.Info("stock tally reconciled",
		slog.String("batch_id", report.BatchID),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", report.Failed))
	return report, nil
}

func (s *Service) reconcileEntry(ctx context.Context, entry TallyEntry, notes string, actorID int64) TallyResult {
	result := TallyResult{ItemID: entry.ItemID}
	if entry.ItemID <= 0 {
		return failed(result, shared.InvalidQuantityf("item id is required"))
	}
	if entry.NewQuantity.IsNegative() {
		return failed(result, shared.InvalidQuantityf("counted quantity %s is negative", entry.NewQuantity))
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, entry.ItemID)
		if err != nil {
			return err
		}
		old := item.Quantity
		result.OldQuantity = &old
		diff := entry.NewQuantity.Sub(old)
		if diff.IsZero() {
			result.Outcome = TallyUnchanged
			result.NewQuantity = &old
			return nil
		}
		typ := TransactionAdded
		if diff.IsNegative() {
			typ = TransactionWasted
		}
		applied, err := applyLocked(ctx, tx, item, DeltaInput{
			ItemID:   item.ID,
			Quantity: diff,
			Type:     typ,
			Notes:    notes,
			ActorID:  actorID,
		}, s.now())
		if err != nil {
			return err
		}
		magnitude := applied.Transaction.Quantity
		result.Outcome = TallyUpdated
		result.Type = typ
		result.NewQuantity = &applied.NewQuantity
		result.Magnitude = &magnitude
		return nil
	})
	if err != nil {
		result.OldQuantity = nil
		result.NewQuantity = nil
		result.Type = ""
		result.Magnitude = nil
		return failed(result, err)
	}
	return result
}

func failed(result TallyResult, err error) TallyResult {
	result.Outcome = TallyFailed
	result.ErrorCode = errorCode(err)
	result.Error = shared.UserSafeMessage(err)
	result.err = err
	return result
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, shared.ErrConflictingState):
		return "conflicting_state"
	default:
		return "internal"
	}
}

// GetItem returns a single item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems lists items.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	return s.repo.ListItems(ctx, filter)
}

// ListTransactions lists the stock transactions of an item.
func (s *Service) ListTransactions(ctx context.Context, itemID int64, limit int) ([]StockTransaction, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, itemID, limit)
}

func (s *Service) logWarnings(op string, warnings shared.Warnings) {
	for _, w := range warnings {
		s.logger.Warn(op+" post-commit warning", slog.String("code", w.Code), slog.String("message", w.Message))
	}
}
