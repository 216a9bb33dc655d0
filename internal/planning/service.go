package planning

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cabinetworks/mto/internal/mto"
)

// RepositoryPort abstracts the snapshot reads.
type RepositoryPort interface {
	DemandLines(ctx context.Context, statuses ...mto.Status) ([]DemandLine, error)
	Snapshots(ctx context.Context, status mto.Status) ([]MTOSnapshot, error)
}

// Service builds the read-only planning views. Identical requests in flight
// share one computation; nothing is kept once it returns.
type Service struct {
	repo   RepositoryPort
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("planning view shared", slog.String("view", key))
		}
		return res.Val, res.Err
	}
}

// Cumulative returns outstanding demand of DRAFT and PARTIALLY_ORDERED MTOs.
func (s *Service) Cumulative(ctx context.Context) ([]SupplierDemand, error) {
	val, err := s.do(ctx, "cumulative", func(ctx context.Context) (any, error) {
		lines, err := s.repo.DemandLines(ctx, mto.StatusDraft, mto.StatusPartiallyOrdered)
		if err != nil {
			return nil, err
		}
		return BuildCumulative(lines), nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]SupplierDemand), nil
}

// UsedMaterials classifies FULLY_ORDERED MTOs.
func (s *Service) UsedMaterials(ctx context.Context) (UsedMaterials, error) {
	val, err := s.do(ctx, "used-materials", func(ctx context.Context) (any, error) {
		snaps, err := s.repo.Snapshots(ctx, mto.StatusFullyOrdered)
		if err != nil {
			return nil, err
		}
		return Classify(snaps), nil
	})
	if err != nil {
		return UsedMaterials{}, err
	}
	return val.(UsedMaterials), nil
}

// Overview loads both views concurrently.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var out Overview
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		demand, err := s.Cumulative(ctx)
		if err != nil {
			return err
		}
		out.Cumulative = demand
		return nil
	})
	g.Go(func() error {
		used, err := s.UsedMaterials(ctx)
		if err != nil {
			return err
		}
		out.UsedMaterials = used
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}
