package db

import (
	"context"

	"bits-gateway/internal/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	getMetadataSQL = `SELECT key, value FROM catalog_metadata WHERE owner_type = $1 AND owner_id = $2`

	setMetadataSQL = `INSERT INTO catalog_metadata (owner_type, owner_id, key, value) VALUES ($1, $2, $3, $4)
	ON CONFLICT (owner_type, owner_id, key) DO UPDATE SET value = EXCLUDED.value`

	getContentTokenSQL = `SELECT token FROM digital_content_tokens WHERE line_id = $1`

	createContentTokenSQL = `INSERT INTO digital_content_tokens (line_id, token) VALUES ($1, $2)
	ON CONFLICT (line_id) DO UPDATE SET line_id = EXCLUDED.line_id
	RETURNING token`
)

// CatalogRepository reads product metadata and digital content tokens.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetMetadata(ctx context.Context, owner payment.MetadataOwner, ownerID int64) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, getMetadataSQL, string(owner), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}
	return metadata, rows.Err()
}

func (r *CatalogRepository) SetMetadata(ctx context.Context, owner payment.MetadataOwner, ownerID int64, key, value string) error {
	if _, err := r.pool.Exec(ctx, setMetadataSQL, string(owner), ownerID, key, value); err != nil {
		return errors.Wrap(err, "set metadata")
	}
	return nil
}

func (r *CatalogRepository) GetContentToken(ctx context.Context, lineID int64) (uuid.UUID, error) {
	var token uuid.UUID
	if err := r.pool.QueryRow(ctx, getContentTokenSQL, lineID).Scan(&token); err != nil {
		return uuid.Nil, notFound(err)
	}
	return token, nil
}

// CreateContentToken returns the line's token, creating one when the line has
// none yet.
func (r *CatalogRepository) CreateContentToken(ctx context.Context, lineID int64) (uuid.UUID, error) {
	var token uuid.UUID
	if err := r.pool.QueryRow(ctx, createContentTokenSQL, lineID, uuid.New()).Scan(&token); err != nil {
		return uuid.Nil, errors.Wrap(err, "create content token")
	}
	return token, nil
}
