package db

import (
	"context"

	"bits-gateway/internal/payment"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	getIdentityByUserIDSQL = `SELECT id, user_id, external_id, response FROM bits_identities WHERE user_id = $1`

	upsertIdentitySQL = `INSERT INTO bits_identities (user_id, external_id, response) VALUES ($1, $2, $3)
	ON CONFLICT (user_id) DO UPDATE SET external_id = EXCLUDED.external_id, response = EXCLUDED.response,
	updated_at = NOW()
	RETURNING id`
)

type IdentityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) GetIdentityByUserID(ctx context.Context, userID int64) (*payment.ExternalIdentity, error) {
	var identity payment.ExternalIdentity
	err := r.pool.QueryRow(ctx, getIdentityByUserIDSQL, userID).
		Scan(&identity.ID, &identity.UserID, &identity.ExternalID, &identity.Response)
	if err != nil {
		return nil, notFound(err)
	}
	return &identity, nil
}

// UpsertIdentity stores the external id for the user, replacing any previous
// link.
func (r *IdentityRepository) UpsertIdentity(ctx context.Context, identity *payment.ExternalIdentity) (*payment.ExternalIdentity, error) {
	err := r.pool.QueryRow(ctx, upsertIdentitySQL, identity.UserID, identity.ExternalID, jsonObject(identity.Response)).
		Scan(&identity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "upsert identity")
	}
	return identity, nil
}
