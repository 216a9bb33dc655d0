package mto

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cabinetworks/mto/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMTO(ctx context.Context, id int64) (MTO, error)
	ListLines(ctx context.Context, mtoID int64, includeDeleted bool) ([]LineDetail, error)
	List(ctx context.Context, filter ListFilter) ([]MTO, error)
	ListActiveMTOIDs(ctx context.Context) ([]int64, error)
}

// Service coordinates MTO and line operations.
type Service struct {
	repo     RepositoryPort
	resolver StatusResolver
	retry    RetryScheduler
	audit    shared.AuditPort
	notifier shared.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, resolver StatusResolver, retry RetryScheduler, audit shared.AuditPort, notifier shared.Notifier, logger *slog.Logger) *Service {
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

func validateLines(lines []LineInput) error {
	for i, line := range lines {
		if line.ItemID <= 0 {
			return shared.NotFoundf("line %d: item %d", i+1, line.ItemID)
		}
		if !line.Quantity.IsPositive() {
			return shared.InvalidQuantityf("line %d: quantity must be positive", i+1)
		}
	}
	return nil
}

// Create stores a DRAFT MTO with its lines in one transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Detail, shared.Warnings, error) {
	if err := validateLines(input.Lines); err != nil {
		return Detail{}, nil, err
	}
	now := s.now()
	var created MTO
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertMTO(ctx, MTO{
			ProjectID: input.ProjectID,
			Status:    StatusDraft,
			Notes:     input.Notes,
			CreatedBy: input.ActorID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLotLinks(ctx, created.ID, input.LotIDs); err != nil {
			return err
		}
		for _, in := range input.Lines {
			if err := insertLine(ctx, tx, created.ID, in, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Detail{}, nil, err
	}

	var warnings shared.Warnings
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:     input.ActorID,
		EntityType:  "mto",
		EntityID:    strconv.FormatInt(created.ID, 10),
		Action:      "mto:create",
		Description: fmt.Sprintf("created with %d lines", len(input.Lines)),
	}, &warnings)
	shared.SendNotification(ctx, s.notifier, shared.Notification{
		Kind:       shared.NotifyMTOCreated,
		EntityType: "mto",
		EntityID:   created.ID,
		ActorID:    input.ActorID,
		Message:    fmt.Sprintf("MTO %d created with %d lines", created.ID, len(input.Lines)),
		At:         now,
	}, &warnings)
	s.logWarnings("create mto", created.ID, warnings)

	detail, err := s.Get(ctx, created.ID, false)
	if err != nil {
		return Detail{}, warnings, err
	}
	return detail, warnings, nil
}

func insertLine(ctx context.Context, tx TxRepository, mtoID int64, in LineInput, now time.Time) error {
	ok, err := tx.ItemExists(ctx, in.ItemID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFoundf("item %d", in.ItemID)
	}
	_, err = tx.InsertLine(ctx, Line{MTOID: mtoID, ItemID: in.ItemID, Quantity: in.Quantity, Notes: in.Notes, CreatedAt: now})
	return err
}

// AddLine appends a line to an MTO that is neither deleted nor fully ordered.
func (s *Service) AddLine(ctx context.Context, mtoID int64, in LineInput, actorID int64) (LineChange, shared.Warnings, error) {
	if err := validateLines([]LineInput{in}); err != nil {
		return LineChange{}, nil, err
	}
	now := s.now()
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMTOForUpdate(ctx, mtoID)
		if err != nil {
			return err
		}
		if m.Deleted() {
			return shared.ConflictingStatef("mto %d is deleted", mtoID)
		}
		if m.Status == StatusFullyOrdered {
			return shared.ConflictingStatef("mto %d is fully ordered", mtoID)
		}
		ok, err := tx.ItemExists(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFoundf("item %d", in.ItemID)
		}
		line, err = tx.InsertLine(ctx, Line{MTOID: mtoID, ItemID: in.ItemID, Quantity: in.Quantity, Notes: in.Notes, CreatedAt: now})
		return err
	})
	if err != nil {
		return LineChange{}, nil, err
	}
	return s.afterLineChange(ctx, line, "mto_line:add", actorID)
}

// Get returns an MTO with its lines.
func (s *Service) Get(ctx context.Context, id int64, includeDeletedLines bool) (Detail, error) {
	m, err := s.repo.GetMTO(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	lines, err := s.repo.ListLines(ctx, id, includeDeletedLines)
	if err != nil {
		return Detail{}, err
	}
	return Detail{MTO: m, Lines: lines}, nil
}

// List lists MTOs.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]MTO, error) {
	return s.repo.List(ctx, filter)
}

// SoftDelete hides an MTO from listings. Fulfilment facts are untouched.
func (s *Service) SoftDelete(ctx context.Context, id, actorID int64) (MTO, shared.Warnings, error) {
	return s.setMTODeleted(ctx, id, actorID, true)
}

// Recover restores a soft-deleted MTO.
func (s *Service) Recover(ctx context.Context, id, actorID int64) (MTO, shared.Warnings, error) {
	return s.setMTODeleted(ctx, id, actorID, false)
}

func (s *Service) setMTODeleted(ctx context.Context, id, actorID int64, deleted bool) (MTO, shared.Warnings, error) {
	now := s.now()
	var m MTO
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		m, err = tx.GetMTOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if deleted && m.Deleted() {
			return shared.ConflictingStatef("mto %d is already deleted", id)
		}
		if !deleted && !m.Deleted() {
			return shared.ConflictingStatef("mto %d is not deleted", id)
		}
		var at *time.Time
		if deleted {
			at = &now
		}
		m.DeletedAt = at
		m.UpdatedAt = now
		return tx.SetMTODeleted(ctx, id, at, now)
	})
	if err != nil {
		return MTO{}, nil, err
	}
	action := "mto:recover"
	if deleted {
		action = "mto:delete"
	}
	var warnings shared.Warnings
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:    actorID,
		EntityType: "mto",
		EntityID:   strconv.FormatInt(id, 10),
		Action:     action,
	}, &warnings)
	s.logWarnings(action, id, warnings)
	return m, warnings, nil
}

// SoftDeleteLine hides a line and re-resolves the owning MTO.
func (s *Service) SoftDeleteLine(ctx context.Context, lineID, actorID int64) (LineChange, shared.Warnings, error) {
	return s.setLineDeleted(ctx, lineID, actorID, true)
}

// RecoverLine restores a soft-deleted line and re-resolves the owning MTO.
func (s *Service) RecoverLine(ctx context.Context, lineID, actorID int64) (LineChange, shared.Warnings, error) {
	return s.setLineDeleted(ctx, lineID, actorID, false)
}

func (s *Service) setLineDeleted(ctx context.Context, lineID, actorID int64, deleted bool) (LineChange, shared.Warnings, error) {
	now := s.now()
	var line Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		line, err = tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		m, err := tx.GetMTOForUpdate(ctx, line.MTOID)
		if err != nil {
			return err
		}
		if m.Status == StatusFullyOrdered {
			return shared.ConflictingStatef("mto %d is fully ordered", m.ID)
		}
		if deleted && line.Deleted() {
			return shared.ConflictingStatef("mto line %d is already deleted", lineID)
		}
		if !deleted && !line.Deleted() {
			return shared.ConflictingStatef("mto line %d is not deleted", lineID)
		}
		var at *time.Time
		if deleted {
			at = &now
		}
		line.DeletedAt = at
		return tx.SetLineDeleted(ctx, lineID, at, now)
	})
	if err != nil {
		return LineChange{}, nil, err
	}
	action := "mto_line:recover"
	if deleted {
		action = "mto_line:delete"
	}
	return s.afterLineChange(ctx, line, action, actorID)
}

func (s *Service) afterLineChange(ctx context.Context, line Line, action string, actorID int64) (LineChange, shared.Warnings, error) {
	var warnings shared.Warnings
	change := LineChange{Line: line}
	change.Status, change.StatusChanged = ResolveAfterCommit(ctx, s.resolver, s.retry, s.logger, line.MTOID, &warnings)
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		ActorID:     actorID,
		EntityType:  "mto_line",
		EntityID:    strconv.FormatInt(line.ID, 10),
		Action:      action,
		Description: fmt.Sprintf("mto %d item %d quantity %s", line.MTOID, line.ItemID, line.Quantity),
	}, &warnings)
	shared.SendNotification(ctx, s.notifier, shared.Notification{
		Kind:       shared.NotifyMTOLineChanged,
		EntityType: "mto",
		EntityID:   line.MTOID,
		ActorID:    actorID,
		Message:    fmt.Sprintf("%s line %d", action, line.ID),
		At:         s.now(),
	}, &warnings)
	s.logWarnings(action, line.MTOID, warnings)
	return change, warnings, nil
}

func (s *Service) logWarnings(op string, mtoID int64, warnings shared.Warnings) {
	for _, w := range warnings {
		s.logger.Warn(op+" post-commit warning", slog.Int64("mto_id", mtoID), slog.String("code", w.Code), slog.String("message", w.Message))
	}
}

// Resolve recomputes the status of an MTO on demand.
func (s *Service) Resolve(ctx context.Context, id int64) (Status, bool, error) {
	if s.resolver == nil {
		return "", false, fmt.Errorf("mto: resolver not configured")
	}
	return s.resolver.Resolve(ctx, id)
}
