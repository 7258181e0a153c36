package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	obs "github.com/forgesync/ticketbridge/internal/adapter/otel"
	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/port/database"
	"github.com/forgesync/ticketbridge/internal/port/remote"
)

// Reconciler periodically removes mapping rows whose remote item no longer
// exists: orphans from partial failures and remote deletes whose webhook
// was never delivered.
type Reconciler struct {
	store       database.Store
	newClient   remote.Factory
	metrics     *obs.Metrics
	maxParallel int
}

// NewReconciler creates the sweep. maxParallel bounds concurrent per-link
// sweeps.
func NewReconciler(store database.Store, factory remote.Factory, metrics *obs.Metrics, maxParallel int) *Reconciler {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Reconciler{
		store:       store,
		newClient:   factory,
		metrics:     metrics,
		maxParallel: maxParallel,
	}
}

// Run sweeps once at startup and then on every tick until the context is
// canceled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if err := r.Sweep(ctx); err != nil {
		slog.Error("reconciliation sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				slog.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep checks every mapping of every link against the remote tracker and
// deletes the orphans.
func (r *Reconciler) Sweep(ctx context.Context) error {
	links, err := r.store.ListLinks(ctx)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)

	for idx := range links {
		l := links[idx]
		g.Go(func() error {
			removed, err := r.sweepLink(ctx, l.RemoteBaseURL, l.RemoteAuthToken, l.RemoteProjectID)
			if err != nil {
				// One unreachable remote must not abort the other links.
				slog.Error("link sweep failed",
					"remote_project_id", l.RemoteProjectID, "error", err)
				return nil
			}
			if removed > 0 {
				r.metrics.RecordOrphans(ctx, removed)
				slog.Info("orphaned mappings removed",
					"remote_project_id", l.RemoteProjectID, "count", removed)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) sweepLink(ctx context.Context, baseURL, token string, remoteProjectID int64) (int64, error) {
	mappings, err := r.store.ListMappings(ctx, remoteProjectID)
	if err != nil {
		return 0, fmt.Errorf("list mappings: %w", err)
	}

	client := r.newClient(baseURL, token)
	var removed int64
	for _, m := range mappings {
		_, err := client.GetItemByRef(ctx, remoteProjectID, m.TicketKind, m.RemoteTicketRef)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if err := r.store.DeleteMapping(ctx, m.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return removed, fmt.Errorf("delete mapping %d: %w", m.ID, err)
			}
			removed++
		case err != nil:
			return removed, fmt.Errorf("check remote ref %d: %w", m.RemoteTicketRef, err)
		}
	}
	return removed, nil
}
