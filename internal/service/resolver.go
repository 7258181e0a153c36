package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/domain/link"
	"github.com/forgesync/ticketbridge/internal/port/database"
)

// ResolveOutcome tags the result of a resolve-or-create operation.
type ResolveOutcome int

const (
	// ResolveExisting means a mapping already existed.
	ResolveExisting ResolveOutcome = iota
	// ResolveCreated means creation replay ran and produced the mapping.
	ResolveCreated
	// ResolveFailed means no mapping existed and creation did not produce
	// one either.
	ResolveFailed
)

// Resolver answers "does this ticket already exist on the other side". It
// wraps the store's mapping lookups with optional semantics: not-found is a
// nil result, not an error.
type Resolver struct {
	store database.Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store database.Store) *Resolver {
	return &Resolver{store: store}
}

// FindByLocal looks up a mapping by the local ticket id. Returns nil when
// no mapping exists.
func (r *Resolver) FindByLocal(ctx context.Context, remoteProjectID, localTicketID int64, kind link.TicketKind) (*link.TicketMapping, error) {
	m, err := r.store.FindMappingByLocal(ctx, remoteProjectID, localTicketID, kind)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// FindByRemote looks up a mapping by the remote ticket ref. Returns nil
// when no mapping exists.
func (r *Resolver) FindByRemote(ctx context.Context, remoteProjectID, remoteRef int64, kind link.TicketKind) (*link.TicketMapping, error) {
	m, err := r.store.FindMappingByRemote(ctx, remoteProjectID, remoteRef, kind)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// LinkByLocalProject looks up the project link for a local project. Returns
// nil when the project has sync disabled.
func (r *Resolver) LinkByLocalProject(ctx context.Context, localProjectID int64) (*link.ProjectLink, error) {
	l, err := r.store.GetLink(ctx, localProjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return l, err
}

// LinkByRemoteProject looks up the project link for a remote project.
// Returns nil when no local project is linked to it.
func (r *Resolver) LinkByRemoteProject(ctx context.Context, remoteProjectID int64) (*link.ProjectLink, error) {
	l, err := r.store.GetLinkByRemoteProject(ctx, remoteProjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return l, err
}

// ResolveLocalTicket resolves the mapping for a remote ticket, running the
// supplied creation replay first when no mapping exists yet. This makes
// every change-style inbound handler an implicit create-if-missing handler,
// so a comment arriving before its create event is observed is safe.
func (r *Resolver) ResolveLocalTicket(ctx context.Context, remoteProjectID, remoteRef int64, kind link.TicketKind, create func(context.Context) error) (*link.TicketMapping, ResolveOutcome, error) {
	m, err := r.FindByRemote(ctx, remoteProjectID, remoteRef, kind)
	if err != nil {
		return nil, ResolveFailed, err
	}
	if m != nil {
		return m, ResolveExisting, nil
	}

	if err := create(ctx); err != nil {
		return nil, ResolveFailed, fmt.Errorf("creation replay: %w", err)
	}

	m, err = r.FindByRemote(ctx, remoteProjectID, remoteRef, kind)
	if err != nil {
		return nil, ResolveFailed, err
	}
	if m == nil {
		return nil, ResolveFailed, nil
	}
	return m, ResolveCreated, nil
}
