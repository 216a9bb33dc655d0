package planning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cabinetworks/mto/internal/mto"
)

type memoryRepo struct {
	mu        sync.Mutex
	lines     []DemandLine
	snapshots []MTOSnapshot
	calls     int
	err       error
}

func (r *memoryRepo) DemandLines(_ context.Context, statuses ...mto.Status) ([]DemandLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	var out []DemandLine
	for _, l := range r.lines {
		for _, s := range statuses {
			if l.MTOStatus == s {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (r *memoryRepo) Snapshots(_ context.Context, status mto.Status) ([]MTOSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	var out []MTOSnapshot
	for _, s := range r.snapshots {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestCumulativeRecomputesEveryRequest(t *testing.T) {
	repo := &memoryRepo{lines: []DemandLine{
		{MTOID: 1, MTOStatus: mto.StatusDraft, LineID: 11, ItemID: 100, ItemName: "Hinge", Quantity: dec("4")},
	}}
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.Cumulative(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	repo.mu.Lock()
	repo.lines[0].ReservationCount = 1
	repo.mu.Unlock()

	second, err := svc.Cumulative(ctx)
	require.NoError(t, err)
	require.Empty(t, second)
	require.Equal(t, 2, repo.calls)
}

func TestOverviewLoadsBothViews(t *testing.T) {
	repo := &memoryRepo{
		lines: []DemandLine{{MTOID: 1, MTOStatus: mto.StatusPartiallyOrdered, LineID: 11, ItemID: 100, ItemName: "Hinge", Quantity: dec("4")}},
		snapshots: []MTOSnapshot{{MTOID: 2, Status: mto.StatusFullyOrdered, Lines: []SnapshotLine{
			{LineID: 21, Quantity: dec("1"), ReceivedPOItems: 1},
		}}},
	}
	svc := NewService(repo, nil)

	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, overview.Cumulative, 1)
	require.Len(t, overview.UsedMaterials.ReadyToUse, 1)
	require.Empty(t, overview.UsedMaterials.Upcoming)
}

func TestUsedMaterialsPropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(&memoryRepo{err: boom}, nil)

	_, err := svc.UsedMaterials(context.Background())
	require.ErrorIs(t, err, boom)
}
