package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"bits-gateway/internal/bits"
	"bits-gateway/internal/config"
	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/payment"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

const Name = "bits"

const (
	opAuthorize = "authorize"
	opCapture   = "capture"
	opVoid      = "void"
	opVerify    = "verify"
)

var (
	ErrInactive           = errors.New("gateway: plugin is inactive")
	ErrNotAuthorized      = errors.New("gateway: not authorized to make Bits API request")
	ErrRefundNotSupported = bits.ErrRefundNotSupported
)

// Gateway is the lifecycle every payment operation goes through.
type Gateway interface {
	Authorize(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error)
	Capture(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error)
	Confirm(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error)
	Void(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error)
	Refund(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error)
	Verify(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error)
}

type IdentityStore interface {
	GetIdentityByUserID(ctx context.Context, userID int64) (*payment.ExternalIdentity, error)
}

type OrderReader interface {
	GetOrderLines(ctx context.Context, orderID int64) ([]payment.OrderLine, error)
	GetLastPaymentForOrder(ctx context.Context, orderID int64) (*payment.Payment, error)
}

type CatalogReader interface {
	GetMetadata(ctx context.Context, owner payment.MetadataOwner, ownerID int64) (map[string]string, error)
}

type LinkIssuer interface {
	DownloadURL(ctx context.Context, lineID int64) (string, bool, error)
}

type VerificationEnqueuer interface {
	EnqueueVerification(ctx context.Context, paymentID int64) error
}

type Dependencies struct {
	Identities IdentityStore
	Orders     OrderReader
	Catalog    CatalogReader
	Links      LinkIssuer
	Enqueuer   VerificationEnqueuer
}

type Plugin struct {
	cfg        config.Gateway
	currencies map[string]struct{}
	deps       Dependencies
	logger     *slog.Logger
}

var _ Gateway = (*Plugin)(nil)

func NewPlugin(cfg config.Gateway, deps Dependencies, logger *slog.Logger) *Plugin {
	currencies := make(map[string]struct{})
	for _, c := range cfg.Currencies() {
		currencies[c] = struct{}{}
	}

	return &Plugin{
		cfg:        cfg,
		currencies: currencies,
		deps:       deps,
		logger:     logger,
	}
}

func (p *Plugin) Active() bool {
	return p.cfg.Active
}

func (p *Plugin) SupportsCurrency(currency string) bool {
	_, ok := p.currencies[strings.ToUpper(currency)]
	return ok
}

func (p *Plugin) Process(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error) {
	return p.Authorize(ctx, data)
}

func (p *Plugin) Authorize(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error) {
	if !p.Active() {
		return nil, ErrInactive
	}
	if !p.SupportsCurrency(data.Currency) {
		return failedResponse(payment.KindAuth, data, fmt.Sprintf("currency %s is not supported", data.Currency)), nil
	}

	return p.execute(ctx, opAuthorize, payment.KindAuth, data, func(ctx context.Context, client *bits.Client, extra map[string]any) (*payment.GatewayResponse, error) {
		order, err := client.CreateOrderPayment(ctx, data.Amount.InexactFloat64(), strconv.FormatInt(data.PaymentID, 10), extra)
		if err != nil {
			return nil, err
		}
		return actionResponse(payment.KindAuth, data, order), nil
	})
}

func (p *Plugin) Capture(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error) {
	return p.execute(ctx, opCapture, payment.KindCapture, data, func(ctx context.Context, client *bits.Client, extra map[string]any) (*payment.GatewayResponse, error) {
		order, err := client.CaptureOrderPayment(ctx, data.Token, orderIDString(data.OrderID), extra)
		if err != nil {
			return nil, err
		}

		transactionID := order.ID
		if transactionID == "" {
			transactionID = data.Token
		}
		response := successResponse(payment.KindCapture, data, transactionID)
		response.RawResponse = map[string]any{"response": order.Raw}
		return response, nil
	})
}

// Confirm is a capture; Bits has no separate confirmation step.
func (p *Plugin) Confirm(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error) {
	return p.Capture(ctx, data)
}

func (p *Plugin) Void(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error) {
	return p.execute(ctx, opVoid, payment.KindVoid, data, func(ctx context.Context, client *bits.Client, extra map[string]any) (*payment.GatewayResponse, error) {
		if err := client.CancelOrderPayment(ctx, data.Token, extra); err != nil {
			return nil, err
		}
		return successResponse(payment.KindVoid, data, data.Token), nil
	})
}

func (p *Plugin) Refund(_ context.Context, _ payment.PaymentData) (*payment.GatewayResponse, error) {
	if !p.Active() {
		return nil, ErrInactive
	}
	return nil, ErrRefundNotSupported
}

func (p *Plugin) Verify(ctx context.Context, data payment.PaymentData) (*payment.GatewayResponse, error) {
	return p.execute(ctx, opVerify, payment.KindAuth, data, func(ctx context.Context, client *bits.Client, extra map[string]any) (*payment.GatewayResponse, error) {
		order, err := client.VerifyOrderPayment(ctx, data.Token, extra)
		if err != nil {
			return nil, err
		}
		response := actionResponse(payment.KindAuth, data, order)
		response.TransactionAlreadyProcessed = true
		return response, nil
	})
}

// OrderFulfilled schedules verification of the order's last payment. Failures
// are logged and never reach the caller.
func (p *Plugin) OrderFulfilled(ctx context.Context, orderID int64) {
	if !p.Active() || p.deps.Enqueuer == nil {
		return
	}
	ctx = logcontext.AppendCtx(ctx, slog.Int64("orderId", orderID))

	last, err := p.deps.Orders.GetLastPaymentForOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			p.logger.WarnContext(ctx, "No payment found for fulfilled order")
			return
		}
		p.logger.ErrorContext(ctx, "Error fetching last payment for order", "error", err)
		return
	}

	if err := p.deps.Enqueuer.EnqueueVerification(ctx, last.ID); err != nil {
		p.logger.ErrorContext(ctx, "Error scheduling payment verification", "paymentId", last.ID, "error", err)
		return
	}
	p.logger.InfoContext(ctx, "Scheduled payment verification", "paymentId", last.ID)
}

type operation func(ctx context.Context, client *bits.Client, extra map[string]any) (*payment.GatewayResponse, error)

// execute runs op and turns any provider failure into a response of the
// intended kind. Only configuration and lookup errors are returned.
func (p *Plugin) execute(ctx context.Context, name string, kind payment.TransactionKind, data payment.PaymentData, op operation) (*payment.GatewayResponse, error) {
	if !p.Active() {
		return nil, ErrInactive
	}

	ctx = logcontext.AppendCtx(ctx, slog.Int64("paymentId", data.PaymentID))
	startTime := time.Now()
	defer func() {
		requestDuration(name).Update(float64(time.Since(startTime).Milliseconds()))
	}()

	client, err := p.clientFor(ctx, data)
	if err != nil {
		requestCounter(name, "client_error").Inc()
		return nil, err
	}

	response, err := op(ctx, client, p.orderContext(ctx, data))
	if err == nil {
		requestCounter(name, "success").Inc()
		return response, nil
	}

	var reqErr *bits.RequestError
	if !errors.As(err, &reqErr) {
		requestCounter(name, "client_error").Inc()
		return nil, errors.Wrapf(err, "bits %s", name)
	}

	response = responseFromError(kind, data, reqErr)
	if response.IsSuccess {
		requestCounter(name, "cancelled").Inc()
		p.logger.WarnContext(ctx, "Provider reported payment cancelled", "operation", name, "message", response.Error)
	} else {
		requestCounter(name, "failed").Inc()
		p.logger.ErrorContext(ctx, "Provider request failed", "operation", name, "status", reqErr.StatusCode, "error", reqErr)
	}
	return response, nil
}

func (p *Plugin) clientFor(ctx context.Context, data payment.PaymentData) (*bits.Client, error) {
	if data.UserID == nil {
		return nil, ErrNotAuthorized
	}

	identity, err := p.deps.Identities.GetIdentityByUserID(ctx, *data.UserID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, errors.Wrap(err, "get external identity")
	}

	return bits.NewClient(p.cfg, bits.Credentials{ExternalID: identity.ExternalID})
}

func actionResponse(kind payment.TransactionKind, data payment.PaymentData, order *bits.OrderPayment) *payment.GatewayResponse {
	response := successResponse(kind, data, order.ID)
	response.RawResponse = map[string]any{"response": order.Raw}

	if order.RequireAction {
		actionData := map[string]any{"client_secret": order.RequireActionSecret}
		response.ActionRequired = true
		response.ActionRequiredData = actionData
		response.RawResponse["action_required_data"] = actionData
	}
	return response
}

func successResponse(kind payment.TransactionKind, data payment.PaymentData, transactionID string) *payment.GatewayResponse {
	return &payment.GatewayResponse{
		Kind:          kind,
		IsSuccess:     true,
		TransactionID: transactionID,
		Amount:        data.Amount,
		Currency:      data.Currency,
		CustomerID:    data.CustomerID,
	}
}

func failedResponse(kind payment.TransactionKind, data payment.PaymentData, message string) *payment.GatewayResponse {
	return &payment.GatewayResponse{
		Kind:          kind,
		IsSuccess:     false,
		TransactionID: data.Token,
		Amount:        data.Amount,
		Currency:      data.Currency,
		CustomerID:    data.CustomerID,
		Error:         message,
	}
}

func orderIDString(orderID *int64) string {
	if orderID == nil {
		return ""
	}
	return strconv.FormatInt(*orderID, 10)
}

func requestCounter(operation, result string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`bits_gateway_requests_total{operation=%q,result=%q}`, operation, result))
}

func requestDuration(operation string) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(fmt.Sprintf(`bits_gateway_request_duration_milliseconds{operation=%q}`, operation))
}
