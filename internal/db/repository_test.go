package db_test

import (
	"context"
	"log"
	"testing"
	"time"

	"bits-gateway/internal/db"
	"bits-gateway/internal/payment"
	"bits-gateway/internal/testhelpers"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	payments    *db.PaymentRepository
	orders      *db.OrderRepository
	identities  *db.IdentityRepository
	catalog     *db.CatalogRepository
	ctx         context.Context
}

func (s *RepositoryTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	if err := db.RunMigrations(pgContainer.ConnectionString, "../../migrations"); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(s.ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.payments = db.NewPaymentRepository(pool)
	s.orders = db.NewOrderRepository(pool)
	s.identities = db.NewIdentityRepository(pool)
	s.catalog = db.NewCatalogRepository(pool)
}

func (s *RepositoryTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *RepositoryTestSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE orders, order_lines, fulfillments, order_events, payments, transactions,
		catalog_metadata, bits_identities, digital_content_tokens RESTART IDENTITY CASCADE`)
	if err != nil {
		log.Fatalf("error truncating tables: %s", err)
	}
}

func (s *RepositoryTestSuite) createOrder(status payment.OrderStatus, createdAt time.Time) *payment.Order {
	userID := int64(1)
	order, err := s.orders.CreateOrder(s.ctx, &payment.Order{
		UserID:    &userID,
		UserEmail: "customer@example.com",
		Status:    status,
		CreatedAt: createdAt,
	})
	require.NoError(s.T(), err)
	return order
}

func (s *RepositoryTestSuite) createPayment(orderID *int64, status payment.ChargeStatus, active bool) *payment.Payment {
	userID := int64(1)
	p, err := s.payments.CreatePayment(s.ctx, &payment.Payment{
		OrderID:        orderID,
		UserID:         &userID,
		Gateway:        "bits",
		Token:          "txn_1",
		Total:          decimal.RequireFromString("42.50"),
		CapturedAmount: decimal.Zero,
		Currency:       "GBP",
		ChargeStatus:   status,
		IsActive:       active,
	})
	require.NoError(s.T(), err)
	return p
}

func (s *RepositoryTestSuite) TestPaymentRoundTrip() {
	t := s.T()

	order := s.createOrder(payment.OrderUnfulfilled, time.Now())
	created := s.createPayment(&order.ID, payment.StatusNotCharged, true)
	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created.SetCaptureDeadline(deadline)
	created.CapturedAmount = decimal.RequireFromString("10.25")
	created.ChargeStatus = payment.StatusPartiallyCharged
	created.ToConfirm = true

	require.NoError(t, s.payments.UpdatePayment(s.ctx, created))

	stored, err := s.payments.GetPayment(s.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, *stored.OrderID)
	assert.True(t, decimal.RequireFromString("42.50").Equal(stored.Total))
	assert.True(t, decimal.RequireFromString("10.25").Equal(stored.CapturedAmount))
	assert.Equal(t, payment.StatusPartiallyCharged, stored.ChargeStatus)
	assert.True(t, stored.ToConfirm)
	assert.True(t, deadline.Equal(stored.CaptureDeadline()))
}

func (s *RepositoryTestSuite) TestGetPaymentNotFound() {
	_, err := s.payments.GetPayment(s.ctx, 404)
	assert.ErrorIs(s.T(), err, payment.ErrNotFound)

	err = s.payments.UpdatePayment(s.ctx, &payment.Payment{ID: 404})
	assert.ErrorIs(s.T(), err, payment.ErrNotFound)
}

func (s *RepositoryTestSuite) TestListCapturablePayments() {
	t := s.T()

	order := s.createOrder(payment.OrderUnfulfilled, time.Now())
	capturable := s.createPayment(&order.ID, payment.StatusNotCharged, true)
	s.createPayment(&order.ID, payment.StatusFullyCharged, true)
	s.createPayment(&order.ID, payment.StatusNotCharged, false)
	s.createPayment(nil, payment.StatusNotCharged, true)

	payments, err := s.payments.ListCapturablePayments(s.ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, capturable.ID, payments[0].ID)
}

func (s *RepositoryTestSuite) TestTransactions() {
	t := s.T()

	p := s.createPayment(nil, payment.StatusNotCharged, true)

	_, err := s.payments.GetLastTransaction(s.ctx, p.ID, true)
	assert.ErrorIs(t, err, payment.ErrNotFound)

	auth, err := s.payments.CreateTransaction(s.ctx, &payment.Transaction{
		PaymentID:       p.ID,
		Token:           "txn_1",
		Kind:            payment.KindAuth,
		IsSuccess:       true,
		Amount:          decimal.RequireFromString("42.50"),
		Currency:        "GBP",
		GatewayResponse: map[string]any{"response": map[string]any{"id": "txn_1"}},
	})
	require.NoError(t, err)
	failed, err := s.payments.CreateTransaction(s.ctx, &payment.Transaction{
		PaymentID: p.ID,
		Token:     "txn_1",
		Kind:      payment.KindCapture,
		Amount:    decimal.RequireFromString("42.50"),
		Currency:  "GBP",
		Error:     "orderId mismatch",
	})
	require.NoError(t, err)

	last, err := s.payments.GetLastTransaction(s.ctx, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, failed.ID, last.ID)
	assert.Equal(t, "orderId mismatch", last.Error)

	lastSuccessful, err := s.payments.GetLastTransaction(s.ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, auth.ID, lastSuccessful.ID)
	assert.Equal(t, map[string]any{"id": "txn_1"}, lastSuccessful.GatewayResponse["response"])

	found, err := s.payments.FindTransaction(s.ctx, p.ID, "txn_1", payment.KindAuth, true, false)
	require.NoError(t, err)
	assert.Equal(t, auth.ID, found.ID)

	_, err = s.payments.FindTransaction(s.ctx, p.ID, "txn_1", payment.KindVoid, true, false)
	assert.ErrorIs(t, err, payment.ErrNotFound)

	_, err = s.payments.FindTransaction(s.ctx, p.ID, "txn_1", payment.KindAuth, true, true)
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func (s *RepositoryTestSuite) TestRecordTransaction() {
	t := s.T()

	p := s.createPayment(nil, payment.StatusNotCharged, true)
	p.CapturedAmount = p.Total
	p.ChargeStatus = payment.StatusFullyCharged

	txn, err := s.payments.RecordTransaction(s.ctx, &payment.Transaction{
		PaymentID: p.ID,
		Token:     "txn_1",
		Kind:      payment.KindCapture,
		IsSuccess: true,
		Amount:    p.Total,
		Currency:  "GBP",
	}, p)
	require.NoError(t, err)
	assert.NotZero(t, txn.ID)

	stored, err := s.payments.GetPayment(s.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFullyCharged, stored.ChargeStatus)

	_, err = s.payments.RecordTransaction(s.ctx, &payment.Transaction{
		PaymentID: p.ID,
		Token:     "txn_2",
		Kind:      payment.KindVoid,
		IsSuccess: true,
		Amount:    p.Total,
		Currency:  "GBP",
	}, &payment.Payment{ID: 404})
	assert.ErrorIs(t, err, payment.ErrNotFound)

	last, err := s.payments.GetLastTransaction(s.ctx, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, last.ID)
}

func (s *RepositoryTestSuite) TestGetLastPaymentForOrder() {
	t := s.T()

	order := s.createOrder(payment.OrderFulfilled, time.Now())
	s.createPayment(&order.ID, payment.StatusNotCharged, false)
	last := s.createPayment(&order.ID, payment.StatusNotCharged, true)

	found, err := s.payments.GetLastPaymentForOrder(s.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, last.ID, found.ID)

	_, err = s.payments.GetLastPaymentForOrder(s.ctx, order.ID+1)
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func (s *RepositoryTestSuite) TestOrdersCreatedBetween() {
	t := s.T()

	now := time.Now().Truncate(time.Second)
	from := now.Add(-24 * time.Hour)
	inside := s.createOrder(payment.OrderUnfulfilled, from)
	s.createOrder(payment.OrderUnfulfilled, from.Add(time.Hour))
	s.createOrder(payment.OrderUnfulfilled, from.Add(-time.Second))

	orders, err := s.orders.ListOrdersCreatedBetween(s.ctx, from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, inside.ID, orders[0].ID)
	assert.Equal(t, "customer@example.com", orders[0].UserEmail)
}

func (s *RepositoryTestSuite) TestOrderLinesFulfillmentsAndEvents() {
	t := s.T()

	order := s.createOrder(payment.OrderFulfilled, time.Now())
	productID := int64(3)
	line, err := s.orders.CreateOrderLine(s.ctx, &payment.OrderLine{
		OrderID:     order.ID,
		ProductID:   &productID,
		ProductName: "Album",
		ProductSKU:  "ALB-1",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("9.99"),
		IsDigital:   true,
	})
	require.NoError(t, err)

	lines, err := s.orders.GetOrderLines(s.ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, line.ID, lines[0].ID)
	assert.Equal(t, productID, *lines[0].ProductID)
	assert.Nil(t, lines[0].VariantID)
	assert.True(t, decimal.RequireFromString("9.99").Equal(lines[0].UnitPrice))
	assert.True(t, lines[0].IsDigital)

	_, err = s.orders.CreateFulfillment(s.ctx, order.ID)
	require.NoError(t, err)
	fulfillments, err := s.orders.GetFulfillments(s.ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, fulfillments, 1)

	require.NoError(t, s.orders.MarkOrderCaptured(s.ctx, order.ID, 7, decimal.RequireFromString("42.5")))
	events, err := s.orders.GetOrderEvents(s.ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, payment.EventPaymentCaptured, events[0].Type)
	assert.Equal(t, "42.5", events[0].Parameters["amount"])
}

func (s *RepositoryTestSuite) TestIdentityUpsert() {
	t := s.T()

	_, err := s.identities.GetIdentityByUserID(s.ctx, 1)
	assert.ErrorIs(t, err, payment.ErrNotFound)

	_, err = s.identities.UpsertIdentity(s.ctx, &payment.ExternalIdentity{UserID: 1, ExternalID: "ext_1"})
	require.NoError(t, err)
	_, err = s.identities.UpsertIdentity(s.ctx, &payment.ExternalIdentity{
		UserID:     1,
		ExternalID: "ext_2",
		Response:   map[string]any{"email": "customer@example.com"},
	})
	require.NoError(t, err)

	identity, err := s.identities.GetIdentityByUserID(s.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ext_2", identity.ExternalID)
	assert.Equal(t, "customer@example.com", identity.Response["email"])
}

func (s *RepositoryTestSuite) TestCatalogMetadataAndContentTokens() {
	t := s.T()

	require.NoError(t, s.catalog.SetMetadata(s.ctx, payment.OwnerProduct, 3, "artist", "Someone"))
	require.NoError(t, s.catalog.SetMetadata(s.ctx, payment.OwnerProduct, 3, "artist", "Someone Else"))

	metadata, err := s.catalog.GetMetadata(s.ctx, payment.OwnerProduct, 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"artist": "Someone Else"}, metadata)

	empty, err := s.catalog.GetMetadata(s.ctx, payment.OwnerVariant, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)

	order := s.createOrder(payment.OrderFulfilled, time.Now())
	line, err := s.orders.CreateOrderLine(s.ctx, &payment.OrderLine{
		OrderID: order.ID, ProductName: "Album", Quantity: 1, UnitPrice: decimal.RequireFromString("1"), IsDigital: true,
	})
	require.NoError(t, err)

	_, err = s.catalog.GetContentToken(s.ctx, line.ID)
	assert.ErrorIs(t, err, payment.ErrNotFound)

	token, err := s.catalog.CreateContentToken(s.ctx, line.ID)
	require.NoError(t, err)
	again, err := s.catalog.CreateContentToken(s.ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	stored, err := s.catalog.GetContentToken(s.ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
