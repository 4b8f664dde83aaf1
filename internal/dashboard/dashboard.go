// Package dashboard holds the allocation list and detail views. Views never
// patch their state from realtime events; every event triggers a re-fetch.
package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/realtime"
)

var (
	// ErrActionDisabled is returned when accept or reject is attempted
	// outside a SUCCESS allocation with a SERVED family.
	ErrActionDisabled = errors.New("action disabled in current state")
	ErrBusy           = errors.New("request already in flight")
	ErrUnknownFamily  = errors.New("family is not on the visible page")
	ErrStale          = errors.New("refresh superseded by a newer one")
)

// Backend is the part of the backend client the views call.
type Backend interface {
	AllocationCreatable(ctx context.Context) (model.Creatable, error)
	SearchAllocations(ctx context.Context, q model.PageQuery) (model.Page[model.Allocation], error)
	GetAllocation(ctx context.Context, id int64) (*model.Allocation, error)
	SearchAllocationFamilies(ctx context.Context, allocationID int64, q model.PageQuery) (model.Page[model.AllocationFamily], error)
	SearchAllocationInventories(ctx context.Context, allocationID int64, q model.PageQuery) (model.Page[model.AllocationInventory], error)
	AcceptAllocationFamily(ctx context.Context, id int64) error
	RejectAllocationFamily(ctx context.Context, id int64) error
}

type Notifier interface {
	Success(ctx context.Context, text string)
	Failure(ctx context.Context, err error)
}

// Refresher is a view that can re-query everything it shows.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Watch refreshes every view once per event received on sub until ctx is
// done or the subscription is closed. Refresh failures are logged and
// watching continues.
func Watch(ctx context.Context, sub *realtime.Subscription, logger *slog.Logger, views ...Refresher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			logger.Debug("realtime event, refreshing views", "topic", ev.Topic, "views", len(views))
			for _, v := range views {
				if err := v.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
					logger.Warn("refresh after realtime event failed", "topic", ev.Topic, "error", err)
				}
			}
		}
	}
}
