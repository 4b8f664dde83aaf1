package dashboard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/foodalloc/internal/model"
)

// ListView shows a page of allocations and whether a new one may be created.
type ListView struct {
	api    Backend
	notes  Notifier
	logger *slog.Logger

	mu        sync.Mutex
	gen       uint64
	query     model.PageQuery
	page      model.Page[model.Allocation]
	creatable model.Creatable
}

func NewListView(api Backend, notes Notifier, logger *slog.Logger) *ListView {
	return &ListView{
		api:    api,
		notes:  notes,
		logger: logger,
		query:  model.PageQuery{}.Normalize(),
	}
}

// Search replaces the query and refreshes.
func (v *ListView) Search(ctx context.Context, q model.PageQuery) error {
	v.mu.Lock()
	v.query = q.Normalize()
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// Refresh re-queries the current page and the creatable check. When a
// newer refresh was started meanwhile, the results are dropped and
// ErrStale is returned.
func (v *ListView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	q := v.query
	v.mu.Unlock()

	page, err := v.api.SearchAllocations(ctx, q)
	if err != nil {
		return v.fail(ctx, gen, err)
	}
	creatable, err := v.api.AllocationCreatable(ctx)
	if err != nil {
		return v.fail(ctx, gen, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return ErrStale
	}
	v.page = page
	v.creatable = creatable
	return nil
}

func (v *ListView) fail(ctx context.Context, gen uint64, err error) error {
	v.mu.Lock()
	stale := gen != v.gen
	v.mu.Unlock()
	if stale {
		return ErrStale
	}
	v.notes.Failure(ctx, err)
	return err
}

func (v *ListView) Query() model.PageQuery {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

func (v *ListView) Page() model.Page[model.Allocation] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

func (v *ListView) Creatable() model.Creatable {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.creatable
}
