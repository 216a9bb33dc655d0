package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cabinetworks/mto/internal/ledger"
	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListByLine(ctx context.Context, lineID int64) ([]Reservation, error)
	ListByItem(ctx context.Context, itemID int64) ([]Reservation, error)
}

// IdempotencyPort guards replays of the same reservation request.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// MetricsPort receives reservation outcomes.
type MetricsPort interface {
	ObserveReservation(outcome string)
}

const idempotencyModule = "reservation"

// Service coordinates stock reservations.
type Service struct {
	repo        RepositoryPort
	resolver    mto.StatusResolver
	retry       mto.RetryScheduler
	audit       shared.AuditPort
	notifier    shared.Notifier
	idempotency IdempotencyPort
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// Deps groups the collaborators of Service. Only Repo is required.
type Deps struct {
	Repo        RepositoryPort
	Resolver    mto.StatusResolver
	Retry       mto.RetryScheduler
	Audit       shared.AuditPort
	Notifier    shared.Notifier
	Idempotency IdempotencyPort
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		resolver:    deps.Resolver,
		retry:       deps.Retry,
		audit:       deps.Audit,
		notifier:    deps.Notifier,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reserve moves quantity from an item's on-hand stock into a reservation for
// an MTO line. The availability check, the ledger decrement and the
// reservation insert commit together or not at all. The owning MTO's status is
// recomputed after commit on a best-effort basis.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (ReserveResult, error) {
	result, err := s.reserve(ctx, input)
	s.observe(err)
	return result, err
}

func (s *Service) reserve(ctx context.Context, input ReserveInput) (ReserveResult, error) {
	if !input.Quantity.IsPositive() {
		return ReserveResult{}, shared.InvalidQuantityf("reservation quantity must be positive")
	}
	if input.ItemID <= 0 {
		return ReserveResult{}, shared.NotFoundf("item %d", input.ItemID)
	}
	if input.MTOLineID <= 0 {
		return ReserveResult{}, shared.NotFoundf("mto line %d", input.MTOLineID)
	}
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return ReserveResult{}, err
		}
	}

	now := s.now()
	var (
		res  Reservation
		line LineRef
		left ledger.DeltaResult
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		line, err = tx.GetLine(ctx, input.MTOLineID)
		if err != nil {
			return err
		}
		if line.Deleted || line.MTODeleted {
			return shared.ConflictingStatef("mto line %d is deleted", line.ID)
		}
		item, err := tx.GetItemForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if item.Quantity.LessThan(input.Quantity) {
			return shared.NewInsufficientStock(item.ID, item.Quantity, input.Quantity)
		}
		left, err = ledger.Apply(ctx, tx, ledger.DeltaInput{
			ItemID:   item.ID,
			Quantity: input.Quantity.Neg(),
			Type:     ledger.TransactionReserved,
			Notes:    fmt.Sprintf("reserved for MTO %d line %d", line.MTOID, line.ID),
			ActorID:  input.ActorID,
		}, now)
		if err != nil {
			return err
		}
		res, err = tx.InsertReservation(ctx, Reservation{
			ItemID:    item.ID,
			MTOLineID: line.ID,
			Quantity:  input.Quantity,
			Notes:     input.Notes,
			CreatedBy: input.ActorID,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, input.IdempotencyKey, idempotencyModule); derr != nil {
				s.logger.Error("release idempotency key", slog.Any("error", derr))
			}
		}
		return ReserveResult{}, err
	}

	result := ReserveResult{Reservation: res, ItemQuantity: left.NewQuantity, MTOID: line.MTOID}
	result.Status, result.StatusChanged = mto.ResolveAfterCommit(ctx, s.resolver, s.retry, s.logger, line.MTOID, &result.Warnings)
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:     input.ActorID,
		EntityType:  "reservation",
		EntityID:    strconv.FormatInt(res.ID, 10),
		Action:      "reservation:create",
		Description: fmt.Sprintf("reserved %s of item %d for line %d", res.Quantity, res.ItemID, res.MTOLineID),
	}, &result.Warnings)
	shared.SendNotification(ctx, s.notifier, shared.Notification{
		Kind:       shared.NotifyStockReserved,
		EntityType: "mto",
		EntityID:   line.MTOID,
		ActorID:    input.ActorID,
		Message:    fmt.Sprintf("%s of item %d reserved for line %d", res.Quantity, res.ItemID, res.MTOLineID),
		At:         now,
	}, &result.Warnings)
	for _, w := range result.Warnings {
		s.logger.Warn("reservation post-commit warning",
			slog.Int64("reservation_id", res.ID),
			slog.String("code", w.Code),
			slog.String("message", w.Message))
	}
	s.logger.Info("stock reserved",
		slog.Int64("reservation_id", res.ID),
		slog.Int64("item_id", res.ItemID),
		slog.Int64("mto_line_id", res.MTOLineID),
		slog.String("quantity", res.Quantity.String()))
	return result, nil
}

func (s *Service) observe(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ObserveReservation(OutcomeReserved)
	case errors.Is(err, shared.ErrInsufficientStock):
		s.metrics.ObserveReservation(OutcomeInsufficientStock)
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrInvalidQuantity), errors.Is(err, shared.ErrConflictingState):
		s.metrics.ObserveReservation(OutcomeRejected)
	default:
		s.metrics.ObserveReservation(OutcomeError)
	}
}

// ListByLine lists the reservations of a line.
func (s *Service) ListByLine(ctx context.Context, lineID int64) ([]Reservation, error) {
	return s.repo.ListByLine(ctx, lineID)
}

// ListByItem lists the reservations drawn from an item.
func (s *Service) ListByItem(ctx context.Context, itemID int64) ([]Reservation, error) {
	return s.repo.ListByItem(ctx, itemID)
}
