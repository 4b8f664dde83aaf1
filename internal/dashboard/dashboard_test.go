package dashboard

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodalloc/internal/backend"
	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/notify"
	"github.com/dukerupert/foodalloc/internal/nutrient"
	"github.com/dukerupert/foodalloc/internal/realtime"
)

type fakeBackend struct {
	mu            sync.Mutex
	allocation    model.Allocation
	families      []model.AllocationFamily
	inventories   []model.AllocationInventory
	actionErr     error
	getCalls      int
	familyCalls   int
	inventoryCall int
	searchCalls   int
	actions       []string
	familyGate    chan struct{}
}

func (f *fakeBackend) AllocationCreatable(context.Context) (model.Creatable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.allocation
	allowed := a.Status == model.AllocationFailed || a.Status == model.AllocationCompleted
	if allowed {
		return model.Creatable{IsAllowed: true}, nil
	}
	return model.Creatable{IsAllowed: false, CurrentAllocation: &a}, nil
}

func (f *fakeBackend) SearchAllocations(_ context.Context, q model.PageQuery) (model.Page[model.Allocation], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return model.Page[model.Allocation]{Items: []model.Allocation{f.allocation}, Total: 1, Page: q.Page, PerPage: q.PerPage}, nil
}

func (f *fakeBackend) GetAllocation(context.Context, int64) (*model.Allocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	a := f.allocation
	return &a, nil
}

func (f *fakeBackend) SearchAllocationFamilies(_ context.Context, _ int64, q model.PageQuery) (model.Page[model.AllocationFamily], error) {
	f.mu.Lock()
	f.familyCalls++
	items := append([]model.AllocationFamily(nil), f.families...)
	gate := f.familyGate
	f.familyGate = nil
	f.mu.Unlock()

	// A gated call signals once it holds its snapshot, then waits to be released.
	if gate != nil {
		gate <- struct{}{}
		<-gate
	}
	return model.Page[model.AllocationFamily]{Items: items, Total: len(items), Page: q.Page, PerPage: q.PerPage}, nil
}

func (f *fakeBackend) SearchAllocationInventories(_ context.Context, _ int64, q model.PageQuery) (model.Page[model.AllocationInventory], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inventoryCall++
	items := append([]model.AllocationInventory(nil), f.inventories...)
	return model.Page[model.AllocationInventory]{Items: items, Total: len(items), Page: q.Page, PerPage: q.PerPage}, nil
}

func (f *fakeBackend) setFamilyStatus(id int64, verb string, to model.FamilyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, verb)
	if f.actionErr != nil {
		return f.actionErr
	}
	for i := range f.families {
		if f.families[i].ID == id {
			f.families[i].Status = to
		}
	}
	return nil
}

func (f *fakeBackend) AcceptAllocationFamily(_ context.Context, id int64) error {
	return f.setFamilyStatus(id, "accept", model.FamilyAccepted)
}

func (f *fakeBackend) RejectAllocationFamily(_ context.Context, id int64) error {
	return f.setFamilyStatus(id, "reject", model.FamilyRejected)
}

func (f *fakeBackend) counts() (get, families, searches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.familyCalls, f.searchCalls
}

func figures(needed, allocated int64) model.NutrientFigures {
	var nf model.NutrientFigures
	for _, n := range model.AllNutrients {
		nf.SetPair(n, decimal.NewFromInt(needed), decimal.NewFromInt(allocated))
	}
	return nf
}

func newFake(status model.AllocationStatus) *fakeBackend {
	return &fakeBackend{
		allocation: model.Allocation{ID: 1, Number: "ALC-20260314-0001", Status: status},
		families: []model.AllocationFamily{
			{ID: 11, AllocationID: 1, FamilyName: "Okafor", Status: model.FamilyServed, NutrientFigures: figures(100, 80)},
			{ID: 12, AllocationID: 1, FamilyName: "Nguyen", Status: model.FamilyNotServed, NutrientFigures: figures(100, 0)},
		},
		inventories: []model.AllocationInventory{{ID: 21, AllocationID: 1, ProductName: "Rice", Quantity: 6, MaxQuantityPerFamily: 3}},
	}
}

func newDetail(t *testing.T, api *fakeBackend) (*DetailView, *notify.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := &notify.Memory{}
	v := NewDetailView(1, api, notify.NewCenter(logger, mem), time.Minute, logger)
	require.NoError(t, v.Refresh(context.Background()))
	return v, mem
}

func TestDetailRowsScoreAndGating(t *testing.T) {
	v, _ := newDetail(t, newFake(model.AllocationSuccess))

	rows, total := v.Families()
	require.Equal(t, 2, total)
	assert.InDelta(t, 80.0, rows[0].Score, 1e-9)
	assert.Equal(t, nutrient.TierGreen, rows[0].Tier)
	assert.Len(t, rows[0].Breakdown, len(model.AllNutrients))
	assert.True(t, rows[0].CanAct)

	assert.InDelta(t, 0.0, rows[1].Score, 1e-9)
	assert.Equal(t, nutrient.TierRed, rows[1].Tier)
	assert.False(t, rows[1].CanAct)

	assert.Len(t, v.Inventories().Items, 1)
	assert.True(t, v.Watching())
}

func TestAcceptDisabledOutsideSuccess(t *testing.T) {
	for _, status := range []model.AllocationStatus{
		model.AllocationCreated, model.AllocationOngoing, model.AllocationFailed, model.AllocationCompleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			api := newFake(status)
			v, _ := newDetail(t, api)

			assert.ErrorIs(t, v.Accept(context.Background(), 11), ErrActionDisabled)
			assert.ErrorIs(t, v.Reject(context.Background(), 11), ErrActionDisabled)
			assert.Empty(t, api.actions)
		})
	}
}

func TestAcceptDisabledForNotServedFamily(t *testing.T) {
	api := newFake(model.AllocationSuccess)
	v, _ := newDetail(t, api)

	assert.ErrorIs(t, v.Accept(context.Background(), 12), ErrActionDisabled)
	assert.ErrorIs(t, v.Accept(context.Background(), 99), ErrUnknownFamily)
	assert.Empty(t, api.actions)
}

func TestAcceptRefetchesAfterConfirmation(t *testing.T) {
	api := newFake(model.AllocationSuccess)
	v, mem := newDetail(t, api)
	_, familiesBefore, _ := api.counts()

	require.NoError(t, v.Accept(context.Background(), 11))

	assert.Equal(t, []string{"accept"}, api.actions)
	_, familiesAfter, _ := api.counts()
	assert.Equal(t, familiesBefore+1, familiesAfter)

	rows, _ := v.Families()
	assert.Equal(t, model.FamilyAccepted, rows[0].Status)
	assert.False(t, rows[0].CanAct)
	assert.Equal(t, []string{"Family Okafor accepted"}, mem.Texts(notify.LevelSuccess))
}

func TestRejectFailureKeepsState(t *testing.T) {
	api := newFake(model.AllocationSuccess)
	api.actionErr = &backend.Error{Kind: backend.KindState, Status: 409, Messages: []string{"allocation is no longer SUCCESS"}}
	v, mem := newDetail(t, api)
	_, familiesBefore, _ := api.counts()

	err := v.Reject(context.Background(), 11)
	assert.Equal(t, backend.KindState, backend.KindOf(err))

	_, familiesAfter, _ := api.counts()
	assert.Equal(t, familiesBefore, familiesAfter)
	assert.Equal(t, []string{"allocation is no longer SUCCESS"}, mem.Texts(notify.LevelError))
	rows, _ := v.Families()
	assert.Equal(t, model.FamilyServed, rows[0].Status)
}

func TestPagesAreCachedUntilRefresh(t *testing.T) {
	api := newFake(model.AllocationSuccess)
	v, _ := newDetail(t, api)
	ctx := context.Background()

	require.NoError(t, v.SearchFamilies(ctx, model.PageQuery{Page: 2}))
	require.NoError(t, v.SearchFamilies(ctx, model.PageQuery{Page: 1}))
	_, families, _ := api.counts()
	assert.Equal(t, 2, families)

	require.NoError(t, v.Refresh(ctx))
	_, families, _ = api.counts()
	assert.Equal(t, 3, families)
}

func TestSlowLoadDoesNotRefillCacheAfterRefresh(t *testing.T) {
	api := newFake(model.AllocationSuccess)
	v, _ := newDetail(t, api)
	ctx := context.Background()

	gate := make(chan struct{})
	api.mu.Lock()
	api.familyGate = gate
	api.mu.Unlock()

	slow := make(chan error, 1)
	go func() { slow <- v.Refresh(ctx) }()
	<-gate // the slow load now holds a SERVED snapshot

	require.NoError(t, api.setFamilyStatus(11, "accept", model.FamilyAccepted))
	require.NoError(t, v.Refresh(ctx))
	rows, _ := v.Families()
	require.Equal(t, model.FamilyAccepted, rows[0].Status)

	gate <- struct{}{}
	assert.ErrorIs(t, <-slow, ErrStale)

	require.NoError(t, v.SearchFamilies(ctx, model.PageQuery{}))
	rows, _ = v.Families()
	assert.Equal(t, model.FamilyAccepted, rows[0].Status)
	assert.False(t, rows[0].CanAct)
}

func TestInconsistentEndTimeIsLogged(t *testing.T) {
	api := newFake(model.AllocationOngoing)
	ended := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	api.allocation.EndTime = &ended

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	v := NewDetailView(1, api, notify.NewCenter(logger), time.Minute, logger)
	require.NoError(t, v.Refresh(context.Background()))

	assert.Contains(t, buf.String(), "end time while still processing")
	assert.Equal(t, model.AllocationOngoing, v.Allocation().Status)
}

func TestListViewRefresh(t *testing.T) {
	api := newFake(model.AllocationOngoing)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := NewListView(api, notify.NewCenter(logger), logger)

	require.NoError(t, v.Search(context.Background(), model.PageQuery{Filters: map[string]string{"status": "ONGOING"}}))

	assert.Equal(t, 1, v.Page().Total)
	assert.False(t, v.Creatable().IsAllowed)
	require.NotNil(t, v.Creatable().CurrentAllocation)
	assert.Equal(t, "ONGOING", v.Query().Filters["status"])
}

func TestWatchRefreshesIdempotently(t *testing.T) {
	api := newFake(model.AllocationSuccess)
	v, _ := newDetail(t, api)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	list := NewListView(api, notify.NewCenter(logger), logger)

	bus := realtime.NewBus(logger)
	sub := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, sub, logger, v, list) }()

	rowsBefore, _ := v.Families()
	getBefore, _, _ := api.counts()

	bus.Publish(realtime.AcceptRejectFamily())
	bus.Publish(realtime.AcceptRejectFamily())

	require.Eventually(t, func() bool {
		get, _, searches := api.counts()
		return get == getBefore+2 && searches == 2
	}, 2*time.Second, 10*time.Millisecond)

	rowsAfter, _ := v.Families()
	assert.Equal(t, rowsBefore, rowsAfter)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchStopsWhenSubscriptionCloses(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := realtime.NewBus(logger)
	sub := bus.Subscribe(realtime.TopicAllocationProcess)
	sub.Close()

	assert.NoError(t, Watch(context.Background(), sub, logger))
}
