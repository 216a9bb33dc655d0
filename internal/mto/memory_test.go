package mto

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/shared"
)

// memoryRepo keeps state in maps; WithTx holds the mutex for the callback and
// restores a snapshot when the callback fails.
type memoryRepo struct {
	mu           sync.Mutex
	mtos         map[int64]MTO
	lines        map[int64]Line
	reservations map[int64]int
	items        map[int64]bool
	nextID       int64
	statusWrites int
	failTx       error
}

func newMemoryRepo(itemIDs ...int64) *memoryRepo {
	r := &memoryRepo{
		mtos:         make(map[int64]MTO),
		lines:        make(map[int64]Line),
		reservations: make(map[int64]int),
		items:        make(map[int64]bool),
	}
	for _, id := range itemIDs {
		r.items[id] = true
	}
	return r
}

type memoryTx struct{ r *memoryRepo }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTx != nil {
		return r.failTx
	}
	mtos := make(map[int64]MTO, len(r.mtos))
	for k, v := range r.mtos {
		mtos[k] = v
	}
	lines := make(map[int64]Line, len(r.lines))
	for k, v := range r.lines {
		lines[k] = v
	}
	nextID, writes := r.nextID, r.statusWrites
	if err := fn(ctx, &memoryTx{r: r}); err != nil {
		r.mtos, r.lines, r.nextID, r.statusWrites = mtos, lines, nextID, writes
		return err
	}
	return nil
}

func (r *memoryRepo) GetMTO(_ context.Context, id int64) (MTO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mtos[id]
	if !ok {
		return MTO{}, shared.NotFoundf("mto %d", id)
	}
	return m, nil
}

func (r *memoryRepo) ListLines(_ context.Context, mtoID int64, includeDeleted bool) ([]LineDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LineDetail
	for _, l := range r.lines {
		if l.MTOID != mtoID || (!includeDeleted && l.Deleted()) {
			continue
		}
		d := LineDetail{Line: l, ReservationCount: r.reservations[l.ID]}
		d.Covered = IsCovered(d.Coverage())
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]MTO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MTO
	for _, m := range r.mtos {
		if (!filter.IncludeDeleted && m.Deleted()) || (filter.Status != "" && m.Status != filter.Status) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListActiveMTOIDs(_ context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, m := range r.mtos {
		if !m.Deleted() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRepo) status(id int64) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mtos[id].Status
}

func (r *memoryRepo) addReservation(lineID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservations[lineID]++
}

func (r *memoryRepo) setOrdered(lineID int64, manual int64, po decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.lines[lineID]
	l.QuantityOrdered = manual
	l.QuantityOrderedPO = po
	r.lines[lineID] = l
}

func (r *memoryRepo) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusWrites
}

func (t *memoryTx) GetMTOForUpdate(_ context.Context, id int64) (MTO, error) {
	m, ok := t.r.mtos[id]
	if !ok {
		return MTO{}, shared.NotFoundf("mto %d", id)
	}
	return m, nil
}

func (t *memoryTx) ListLineCoverage(_ context.Context, mtoID int64) ([]LineCoverage, error) {
	var out []LineCoverage
	for _, l := range t.r.lines {
		if l.MTOID != mtoID || l.Deleted() {
			continue
		}
		out = append(out, LineCoverage{LineID: l.ID, QuantityOrdered: l.QuantityOrdered, QuantityOrderedPO: l.QuantityOrderedPO, ReservationCount: t.r.reservations[l.ID]})
	}
	return out, nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id int64, status Status, at time.Time) error {
	m := t.r.mtos[id]
	m.Status = status
	m.UpdatedAt = at
	t.r.mtos[id] = m
	t.r.statusWrites++
	return nil
}

func (t *memoryTx) InsertMTO(_ context.Context, m MTO) (MTO, error) {
	t.r.nextID++
	m.ID = t.r.nextID
	m.UpdatedAt = m.CreatedAt
	t.r.mtos[m.ID] = m
	return m, nil
}

func (t *memoryTx) InsertLotLinks(_ context.Context, mtoID int64, lotIDs []int64) error {
	m := t.r.mtos[mtoID]
	m.LotIDs = append(m.LotIDs, lotIDs...)
	t.r.mtos[mtoID] = m
	return nil
}

func (t *memoryTx) InsertLine(_ context.Context, line Line) (Line, error) {
	t.r.nextID++
	line.ID = t.r.nextID
	line.QuantityOrderedPO = decimal.Zero
	t.r.lines[line.ID] = line
	return line, nil
}

func (t *memoryTx) ItemExists(_ context.Context, itemID int64) (bool, error) {
	return t.r.items[itemID], nil
}

func (t *memoryTx) GetLineForUpdate(_ context.Context, lineID int64) (Line, error) {
	l, ok := t.r.lines[lineID]
	if !ok {
		return Line{}, shared.NotFoundf("mto line %d", lineID)
	}
	return l, nil
}

func (t *memoryTx) SetMTODeleted(_ context.Context, id int64, deletedAt *time.Time, at time.Time) error {
	m := t.r.mtos[id]
	m.DeletedAt = deletedAt
	m.UpdatedAt = at
	t.r.mtos[id] = m
	return nil
}

func (t *memoryTx) SetLineDeleted(_ context.Context, id int64, deletedAt *time.Time, _ time.Time) error {
	l := t.r.lines[id]
	l.DeletedAt = deletedAt
	t.r.lines[id] = l
	return nil
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, int64) (Status, bool, error) {
	return "", false, f.err
}

type recordingRetry struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingRetry) EnqueueResolveStatus(_ context.Context, mtoID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, mtoID)
	return nil
}

type transitionCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *transitionCounter) ObserveStatusTransition(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[status]++
}

var errBoom = errors.New("boom")
