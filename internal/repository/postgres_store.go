package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/resource-queue/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps resource and notification documents in JSONB columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Repositories returns auto-committing repositories over the pool.
func (s *PostgresStore) Repositories() Repositories {
	return postgresRepositories(s.pool, false)
}

// WithTransaction runs fn inside a single database transaction. Resource rows
// read inside the transaction are locked until it ends.
func (s *PostgresStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, postgresRepositories(tx, true))
	})
	return translatePgError(err)
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func postgresRepositories(q querier, locking bool) Repositories {
	return Repositories{
		Resources:     &pgResourceRepository{q: q, locking: locking},
		Notifications: &pgNotificationRepository{q: q},
		Users:         &pgUserRepository{q: q},
	}
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return errors.Join(ErrConflict, err)
		}
	}
	return err
}

type pgResourceRepository struct {
	q       querier
	locking bool
}

func (r *pgResourceRepository) Create(ctx context.Context, resource *domain.Resource) error {
	doc, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO resources (id, created_by_id, creation_date, last_modification_date, document)
        VALUES ($1, $2, $3, $4, $5)`
	_, err = r.q.Exec(ctx, query, resource.ID, resource.CreatedBy.UserID, resource.CreationDate, resource.LastModificationDate, doc)
	return translatePgError(err)
}

func (r *pgResourceRepository) GetByID(ctx context.Context, id string) (*domain.Resource, error) {
	query := `SELECT document FROM resources WHERE id=$1`
	if r.locking {
		query += ` FOR UPDATE`
	}
	var doc []byte
	if err := r.q.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		return nil, translatePgError(err)
	}
	var resource domain.Resource
	if err := json.Unmarshal(doc, &resource); err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *pgResourceRepository) Save(ctx context.Context, resource *domain.Resource) error {
	doc, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	const query = `UPDATE resources SET last_modification_date=$1, document=$2 WHERE id=$3`
	cmd, err := r.q.Exec(ctx, query, resource.LastModificationDate, doc, resource.ID)
	if err != nil {
		return translatePgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgResourceRepository) ListByUser(ctx context.Context, userID string) ([]domain.Resource, error) {
	const query = `
        SELECT document FROM resources
        WHERE document->'tickets' @> jsonb_build_array(jsonb_build_object('user', jsonb_build_object('id', $1::text)))
        ORDER BY creation_date ASC, id ASC`
	return r.list(ctx, query, userID)
}

func (r *pgResourceRepository) ListCreatedBy(ctx context.Context, userID string) ([]domain.Resource, error) {
	const query = `SELECT document FROM resources WHERE created_by_id=$1 ORDER BY creation_date ASC, id ASC`
	return r.list(ctx, query, userID)
}

func (r *pgResourceRepository) ListAwaitingConfirmation(ctx context.Context) ([]domain.Resource, error) {
	const query = `
        SELECT document FROM resources
        WHERE document->'tickets' @> '[{"statuses":[{"statusCode":"AWAITING_CONFIRMATION"}]}]'::jsonb
        ORDER BY creation_date ASC, id ASC`
	return r.list(ctx, query)
}

func (r *pgResourceRepository) list(ctx context.Context, query string, args ...any) ([]domain.Resource, error) {
	if r.locking {
		query += ` FOR UPDATE`
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var result []domain.Resource
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var resource domain.Resource
		if err := json.Unmarshal(doc, &resource); err != nil {
			return nil, err
		}
		result = append(result, resource)
	}
	return result, translatePgError(rows.Err())
}

func (r *pgResourceRepository) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := r.q.Exec(ctx, `DELETE FROM resources WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, translatePgError(err)
	}
	return cmd.RowsAffected(), nil
}

type pgNotificationRepository struct {
	q querier
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	doc, err := json.Marshal(n)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO notifications (id, resource_id, user_id, timestamp, document)
        VALUES ($1, $2, $3, $4, $5)`
	_, err = r.q.Exec(ctx, query, n.ID, n.Resource.ID, n.User.ID, n.Timestamp, doc)
	return translatePgError(err)
}

func (r *pgNotificationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	rows, err := r.q.Query(ctx, `SELECT document FROM notifications WHERE user_id=$1 ORDER BY timestamp DESC`, userID)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var n domain.Notification
		if err := json.Unmarshal(doc, &n); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *pgNotificationRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	cmd, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, translatePgError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *pgNotificationRepository) DeleteByResourceAndUsers(ctx context.Context, resourceID string, userIDs []string) (int64, error) {
	return r.exec(ctx, `DELETE FROM notifications WHERE resource_id=$1 AND user_id = ANY($2)`, resourceID, userIDs)
}

func (r *pgNotificationRepository) DeleteByResources(ctx context.Context, resourceIDs []string) (int64, error) {
	if len(resourceIDs) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `DELETE FROM notifications WHERE resource_id = ANY($1)`, resourceIDs)
}

func (r *pgNotificationRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM notifications WHERE user_id=$1`, userID)
}
