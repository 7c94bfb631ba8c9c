package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bits-gateway/internal/bits"
	"bits-gateway/internal/gateway"
	"bits-gateway/internal/identity"
	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/metrics"
	"bits-gateway/internal/payment"
	"bits-gateway/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type PaymentProcessor interface {
	Authorize(ctx context.Context, paymentID int64) (*payment.Transaction, error)
	Capture(ctx context.Context, paymentID int64, amount decimal.Decimal) (*payment.Transaction, error)
	Confirm(ctx context.Context, paymentID int64) (*payment.Transaction, error)
	Void(ctx context.Context, paymentID int64) (*payment.Transaction, error)
	Refund(ctx context.Context, paymentID int64, amount decimal.Decimal) (*payment.Transaction, error)
	VerifyLast(ctx context.Context, paymentID int64) (*payment.Transaction, error)
}

type FulfillmentListener interface {
	OrderFulfilled(ctx context.Context, orderID int64)
}

type IdentityLinker interface {
	Link(ctx context.Context, userID int64, accessToken string) (*payment.ExternalIdentity, error)
}

type Server struct {
	processor   PaymentProcessor
	fulfillment FulfillmentListener
	identities  IdentityLinker
	logger      *slog.Logger
}

func New(processor PaymentProcessor, fulfillment FulfillmentListener, identities IdentityLinker, logger *slog.Logger) *Server {
	return &Server{processor: processor, fulfillment: fulfillment, identities: identities, logger: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", metrics.Handler())

	r.Route("/payments/{paymentID}", func(r chi.Router) {
		r.Post("/authorize", s.withPayment(func(ctx context.Context, id int64, _ decimal.Decimal) (*payment.Transaction, error) {
			return s.processor.Authorize(ctx, id)
		}))
		r.Post("/capture", s.withPayment(s.processor.Capture))
		r.Post("/confirm", s.withPayment(func(ctx context.Context, id int64, _ decimal.Decimal) (*payment.Transaction, error) {
			return s.processor.Confirm(ctx, id)
		}))
		r.Post("/void", s.withPayment(func(ctx context.Context, id int64, _ decimal.Decimal) (*payment.Transaction, error) {
			return s.processor.Void(ctx, id)
		}))
		r.Post("/refund", s.withPayment(s.processor.Refund))
		r.Post("/verify", s.withPayment(func(ctx context.Context, id int64, _ decimal.Decimal) (*payment.Transaction, error) {
			return s.processor.VerifyLast(ctx, id)
		}))
	})

	r.Post("/orders/{orderID}/fulfilled", s.handleOrderFulfilled)
	r.Post("/identities", s.handleLinkIdentity)

	return r
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transactionResponse struct {
	ID             int64  `json:"id"`
	Kind           string `json:"kind"`
	Success        bool   `json:"success"`
	ActionRequired bool   `json:"actionRequired"`
	ClientSecret   string `json:"clientSecret,omitempty"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Error          string `json:"error,omitempty"`
}

func newTransactionResponse(txn *payment.Transaction) transactionResponse {
	response := transactionResponse{
		ID:             txn.ID,
		Kind:           string(txn.Kind),
		Success:        txn.IsSuccess,
		ActionRequired: txn.ActionRequired,
		Amount:         txn.Amount.String(),
		Currency:       txn.Currency,
		Error:          txn.Error,
	}
	if data, ok := txn.GatewayResponse["action_required_data"].(map[string]any); ok {
		response.ClientSecret, _ = data["client_secret"].(string)
	}
	return response
}

type paymentAction func(ctx context.Context, paymentID int64, amount decimal.Decimal) (*payment.Transaction, error)

func (s *Server) withPayment(action paymentAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payment id")
			return
		}

		var body amountRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ctx := logcontext.AppendCtx(r.Context(), slog.Int64("paymentId", paymentID))
		txn, err := action(ctx, paymentID, body.Amount)
		if err != nil {
			s.writeFailure(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, newTransactionResponse(txn))
	}
}

func (s *Server) handleOrderFulfilled(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	s.fulfillment.OrderFulfilled(r.Context(), orderID)
	w.WriteHeader(http.StatusAccepted)
}

type linkIdentityRequest struct {
	UserID      int64  `json:"userId"`
	AccessToken string `json:"accessToken"`
}

type identityResponse struct {
	UserID     int64  `json:"userId"`
	ExternalID string `json:"externalId"`
}

func (s *Server) handleLinkIdentity(w http.ResponseWriter, r *http.Request) {
	var body linkIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	linked, err := s.identities.Link(r.Context(), body.UserID, body.AccessToken)
	if err != nil {
		s.writeFailure(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{UserID: linked.UserID, ExternalID: linked.ExternalID})
}

// writeFailure maps err to a status and a fixed message. Internal error text
// is logged, never returned.
func (s *Server) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "Request failed", "error", err)
	} else {
		s.logger.WarnContext(ctx, "Request rejected", "error", err)
	}
	writeError(w, status, message)
}

func statusFor(err error) (int, string) {
	var reqErr *bits.RequestError
	switch {
	case errors.Is(err, gateway.ErrRefundNotSupported):
		return http.StatusNotImplemented, "refunds are not supported"
	case errors.Is(err, gateway.ErrInactive):
		return http.StatusServiceUnavailable, "payment gateway is inactive"
	case errors.Is(err, gateway.ErrNotAuthorized):
		return http.StatusForbidden, "customer is not linked to a Bits account"
	case errors.Is(err, payment.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrPaymentInactive),
		errors.Is(err, service.ErrNoToken),
		errors.Is(err, service.ErrNoTransaction):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, identity.ErrNoMembership):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, bits.ErrConfiguration):
		return http.StatusBadRequest, "missing credentials"
	case errors.As(err, &reqErr):
		return http.StatusBadGateway, "provider request failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := logcontext.AppendCtx(r.Context(), slog.String("requestId", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.InfoContext(ctx, "Handled request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "durationMs", time.Since(startTime).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
