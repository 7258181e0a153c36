package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgesync/ticketbridge/internal/domain"
	"github.com/forgesync/ticketbridge/internal/domain/link"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- Project links ---

const linkColumns = `id, local_project_id, remote_base_url, remote_auth_token,
	remote_project_slug, remote_project_kind, remote_project_id, created_at, updated_at`

func scanLink(row pgx.Row) (link.ProjectLink, error) {
	var l link.ProjectLink
	err := row.Scan(
		&l.ID, &l.LocalProjectID, &l.RemoteBaseURL, &l.RemoteAuthToken,
		&l.RemoteProjectSlug, &l.RemoteProjectKind, &l.RemoteProjectID,
		&l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

func (s *Store) GetLink(ctx context.Context, localProjectID int64) (*link.ProjectLink, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM project_links WHERE local_project_id = $1`, localProjectID)

	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get link for project %d: %w", localProjectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get link for project %d: %w", localProjectID, err)
	}
	return &l, nil
}

func (s *Store) GetLinkByRemoteProject(ctx context.Context, remoteProjectID int64) (*link.ProjectLink, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM project_links WHERE remote_project_id = $1`, remoteProjectID)

	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get link for remote project %d: %w", remoteProjectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get link for remote project %d: %w", remoteProjectID, err)
	}
	return &l, nil
}

func (s *Store) ListLinks(ctx context.Context) ([]link.ProjectLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM project_links ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []link.ProjectLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// UpsertLink creates the link for a local project or replaces its remote
// coordinates. The settings workflow is the only caller.
func (s *Store) UpsertLink(ctx context.Context, req link.UpsertRequest) (*link.ProjectLink, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO project_links
			(local_project_id, remote_base_url, remote_auth_token, remote_project_slug, remote_project_kind, remote_project_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (local_project_id) DO UPDATE SET
			remote_base_url = EXCLUDED.remote_base_url,
			remote_auth_token = EXCLUDED.remote_auth_token,
			remote_project_slug = EXCLUDED.remote_project_slug,
			remote_project_kind = EXCLUDED.remote_project_kind,
			remote_project_id = EXCLUDED.remote_project_id,
			updated_at = now()
		 RETURNING `+linkColumns,
		req.LocalProjectID, req.RemoteBaseURL, req.RemoteAuthToken,
		req.RemoteProjectSlug, req.RemoteProjectKind, req.RemoteProjectID,
	)

	l, err := scanLink(row)
	if err != nil {
		if isUniqueViolation(err) {
			// remote_project_id or (base_url, slug) already claimed by
			// another local project.
			return nil, fmt.Errorf("upsert link for project %d: %w", req.LocalProjectID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("upsert link for project %d: %w", req.LocalProjectID, err)
	}
	return &l, nil
}

func (s *Store) DeleteLink(ctx context.Context, localProjectID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM project_links WHERE local_project_id = $1`, localProjectID)
	if err != nil {
		return fmt.Errorf("delete link for project %d: %w", localProjectID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete link for project %d: %w", localProjectID, domain.ErrNotFound)
	}
	return nil
}

// --- Ticket mappings ---

const mappingColumns = `id, remote_project_id, remote_ticket_ref, local_ticket_id, ticket_kind, created_at`

func scanMapping(row pgx.Row) (link.TicketMapping, error) {
	var m link.TicketMapping
	err := row.Scan(&m.ID, &m.RemoteProjectID, &m.RemoteTicketRef, &m.LocalTicketID, &m.TicketKind, &m.CreatedAt)
	return m, err
}

func (s *Store) FindMappingByLocal(ctx context.Context, remoteProjectID, localTicketID int64, kind link.TicketKind) (*link.TicketMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM ticket_mappings
		 WHERE remote_project_id = $1 AND local_ticket_id = $2 AND ticket_kind = $3`,
		remoteProjectID, localTicketID, kind)

	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mapping for local ticket %d: %w", localTicketID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("mapping for local ticket %d: %w", localTicketID, err)
	}
	return &m, nil
}

func (s *Store) FindMappingByRemote(ctx context.Context, remoteProjectID, remoteRef int64, kind link.TicketKind) (*link.TicketMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM ticket_mappings
		 WHERE remote_project_id = $1 AND remote_ticket_ref = $2 AND ticket_kind = $3`,
		remoteProjectID, remoteRef, kind)

	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mapping for remote ref %d: %w", remoteRef, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("mapping for remote ref %d: %w", remoteRef, err)
	}
	return &m, nil
}

func (s *Store) ListMappings(ctx context.Context, remoteProjectID int64) ([]link.TicketMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mappingColumns+` FROM ticket_mappings
		 WHERE remote_project_id = $1 ORDER BY id ASC`, remoteProjectID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []link.TicketMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// CreateMapping inserts a mapping row. A unique violation means another
// unit of work already synchronized this ticket and is reported as
// domain.ErrConflict, the caller's cue to treat the ticket as done.
func (s *Store) CreateMapping(ctx context.Context, m *link.TicketMapping) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO ticket_mappings (remote_project_id, remote_ticket_ref, local_ticket_id, ticket_kind)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		m.RemoteProjectID, m.RemoteTicketRef, m.LocalTicketID, m.TicketKind)

	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create mapping (remote %d ref %d local %d): %w",
				m.RemoteProjectID, m.RemoteTicketRef, m.LocalTicketID, domain.ErrConflict)
		}
		return fmt.Errorf("create mapping (remote %d ref %d local %d): %w",
			m.RemoteProjectID, m.RemoteTicketRef, m.LocalTicketID, err)
	}
	return nil
}

func (s *Store) DeleteMapping(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ticket_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mapping %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete mapping %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
