package repository

import (
	"context"
	"encoding/json"

	"github.com/spec-kit/resource-queue/internal/domain"
)

type pgUserRepository struct {
	q querier
}

func (r *pgUserRepository) Create(ctx context.Context, user *domain.User) error {
	subs, err := json.Marshal(nonNilSubscriptions(user.WebPushSubscriptions))
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO users (id, username, name, surname, email, global_role, web_push_subscriptions, creation_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.q.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Name,
		user.Surname,
		user.Email,
		user.GlobalRole,
		subs,
		user.CreationDate,
	)
	return translatePgError(err)
}

func (r *pgUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, username, name, surname, email, global_role, web_push_subscriptions, creation_date
        FROM users WHERE id=$1`
	var (
		user domain.User
		subs []byte
	)
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Surname,
		&user.Email,
		&user.GlobalRole,
		&subs,
		&user.CreationDate,
	); err != nil {
		return nil, translatePgError(err)
	}
	if err := json.Unmarshal(subs, &user.WebPushSubscriptions); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *pgUserRepository) Search(ctx context.Context, query string, limit int) ([]domain.PublicUser, error) {
	const sql = `
        SELECT id, username, name, surname FROM users
        WHERE to_tsvector('simple', username || ' ' || name || ' ' || surname) @@ plainto_tsquery('simple', $1)
        ORDER BY name ASC
        LIMIT $2`
	rows, err := r.q.Query(ctx, sql, query, searchLimit(limit))
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var result []domain.PublicUser
	for rows.Next() {
		var u domain.PublicUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.Surname); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *pgUserRepository) AddSubscription(ctx context.Context, userID string, sub domain.WebPushSubscription) error {
	doc, err := json.Marshal([]domain.WebPushSubscription{sub})
	if err != nil {
		return err
	}
	const query = `
        UPDATE users SET web_push_subscriptions = web_push_subscriptions || $1::jsonb
        WHERE id=$2 AND NOT web_push_subscriptions @> jsonb_build_array(jsonb_build_object('endpoint', $3::text))`
	cmd, err := r.q.Exec(ctx, query, doc, userID, sub.Endpoint)
	if err != nil {
		return translatePgError(err)
	}
	if cmd.RowsAffected() == 0 {
		// either unknown user or already subscribed
		if _, err := r.GetByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r *pgUserRepository) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	const query = `
        UPDATE users SET web_push_subscriptions = COALESCE((
            SELECT jsonb_agg(sub) FROM jsonb_array_elements(web_push_subscriptions) sub
            WHERE sub->>'endpoint' <> $1
        ), '[]'::jsonb)
        WHERE id=$2`
	cmd, err := r.q.Exec(ctx, query, endpoint, userID)
	if err != nil {
		return translatePgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgUserRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.q.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return translatePgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNilSubscriptions(subs []domain.WebPushSubscription) []domain.WebPushSubscription {
	if subs == nil {
		return []domain.WebPushSubscription{}
	}
	return subs
}
