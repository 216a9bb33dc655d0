package mto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cabinetworks/mto/internal/shared"
)

// IsCovered reports whether a line counts as satisfied. The manual
// quantity_ordered counter is accepted as evidence alongside reservations and
// received purchase orders.
func IsCovered(c LineCoverage) bool {
	return c.QuantityOrdered > 0 || c.QuantityOrderedPO.IsPositive() || c.ReservationCount > 0
}

// ResolveStatus derives the aggregate status from the live lines of an MTO.
// An MTO without lines is DRAFT.
func ResolveStatus(lines []LineCoverage) Status {
	covered := 0
	for _, line := range lines {
		if IsCovered(line) {
			covered++
		}
	}
	switch {
	case len(lines) > 0 && covered == len(lines):
		return StatusFullyOrdered
	case covered > 0:
		return StatusPartiallyOrdered
	default:
		return StatusDraft
	}
}

// StatusMetrics receives status transitions.
type StatusMetrics interface {
	ObserveStatusTransition(status string)
}

// Resolver recomputes and persists MTO statuses.
type Resolver struct {
	repo     RepositoryPort
	metrics  StatusMetrics
	notifier shared.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver constructs Resolver. metrics and notifier may be nil.
func NewResolver(repo RepositoryPort, metrics StatusMetrics, notifier shared.Notifier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, metrics: metrics, notifier: notifier, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Resolve recomputes the status of one MTO from its current lines and writes
// it when it differs. Running it again on unchanged lines is a no-op.
func (r *Resolver) Resolve(ctx context.Context, mtoID int64) (Status, bool, error) {
	var (
		status  Status
		changed bool
	)
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetMTOForUpdate(ctx, mtoID)
		if err != nil {
			return err
		}
		lines, err := tx.ListLineCoverage(ctx, mtoID)
		if err != nil {
			return err
		}
		status = ResolveStatus(lines)
		if status == current.Status {
			return nil
		}
		changed = true
		return tx.UpdateStatus(ctx, mtoID, status, r.now())
	})
	if err != nil {
		return "", false, fmt.Errorf("resolve mto %d: %w", mtoID, err)
	}
	if changed {
		r.logger.Info("mto status changed", slog.Int64("mto_id", mtoID), slog.String("status", string(status)))
		if r.metrics != nil {
			r.metrics.ObserveStatusTransition(string(status))
		}
		if r.notifier != nil {
			err := r.notifier.Notify(ctx, shared.Notification{
				Kind:       shared.NotifyMTOStatusChanged,
				EntityType: "mto",
				EntityID:   mtoID,
				Message:    fmt.Sprintf("MTO %d is now %s", mtoID, status),
				At:         r.now(),
			})
			if err != nil {
				r.logger.Warn("status change notification", slog.Int64("mto_id", mtoID), slog.Any("error", err))
			}
		}
	}
	return status, changed, nil
}

// ResolveSummary reports a resolver sweep.
type ResolveSummary struct {
	Checked int
	Changed int
	Failed  int
}

// ResolveAll re-resolves every non-deleted MTO. Individual failures are
// logged and counted and the sweep continues.
func (r *Resolver) ResolveAll(ctx context.Context) (ResolveSummary, error) {
	ids, err := r.repo.ListActiveMTOIDs(ctx)
	if err != nil {
		return ResolveSummary{}, err
	}
	var summary ResolveSummary
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		_, changed, err := r.Resolve(ctx, id)
		if err != nil {
			summary.Failed++
			r.logger.Warn("resolve sweep", slog.Int64("mto_id", id), slog.Any("error", err))
			continue
		}
		if changed {
			summary.Changed++
		}
	}
	return summary, nil
}

// StatusResolver is the resolver contract consumed by other modules.
type StatusResolver interface {
	Resolve(ctx context.Context, mtoID int64) (Status, bool, error)
}

// RetryScheduler defers a failed resolution to the background worker.
type RetryScheduler interface {
	EnqueueResolveStatus(ctx context.Context, mtoID int64) error
}

// ResolveAfterCommit runs the resolver once a line-affecting transaction has
// committed. A failure never undoes the committed change: it is logged, added
// to warnings and handed to retry when one is configured.
func ResolveAfterCommit(ctx context.Context, resolver StatusResolver, retry RetryScheduler, logger *slog.Logger, mtoID int64, warnings *shared.Warnings) (Status, bool) {
	if resolver == nil {
		return "", false
	}
	status, changed, err := resolver.Resolve(ctx, mtoID)
	if err == nil {
		return status, changed
	}
	if logger != nil {
		logger.Warn("status resolution deferred", slog.Int64("mto_id", mtoID), slog.Any("error", err))
	}
	warnings.Add(shared.WarnStatusNotResolved, err)
	if retry != nil {
		if rerr := retry.EnqueueResolveStatus(ctx, mtoID); rerr != nil && logger != nil {
			logger.Error("enqueue status retry", slog.Int64("mto_id", mtoID), slog.Any("error", rerr))
		}
	}
	return "", false
}
