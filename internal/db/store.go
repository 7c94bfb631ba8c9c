package db

import "github.com/jackc/pgx/v5/pgxpool"

// Store groups the repositories sharing one pool.
type Store struct {
	*PaymentRepository
	*OrderRepository
	*IdentityRepository
	*CatalogRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		PaymentRepository:  NewPaymentRepository(pool),
		OrderRepository:    NewOrderRepository(pool),
		IdentityRepository: NewIdentityRepository(pool),
		CatalogRepository:  NewCatalogRepository(pool),
	}
}
