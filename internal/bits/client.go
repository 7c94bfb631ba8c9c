package bits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bits-gateway/internal/config"
	"github.com/pkg/errors"
)

const (
	orderTypeStore = "storeOrder"

	headerImpersonate = "Impersonate-Id"
	contentTypeJSON   = "application/json"
)

var (
	// ErrConfiguration is the parent of every client construction error.
	ErrConfiguration        = errors.New("bits: invalid client configuration")
	ErrMissingCredentials   = fmt.Errorf("%w: access token or external id required", ErrConfiguration)
	ErrAmbiguousCredentials = fmt.Errorf("%w: access token and external id are mutually exclusive", ErrConfiguration)
	ErrMissingAPIKey        = fmt.Errorf("%w: api key required to impersonate an external id", ErrConfiguration)
	ErrMissingBaseURL       = fmt.Errorf("%w: base url required", ErrConfiguration)

	// ErrRefundNotSupported is returned for refunds, which Bits does not offer.
	ErrRefundNotSupported = errors.New("bits: refunds are not supported by the provider")
)

// Credentials selects how requests are authenticated: with a user's own
// access token, or with the shared API key acting as ExternalID.
type Credentials struct {
	AccessToken string
	ExternalID  string
}

type Client struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	accessToken string
	externalID  string
}

func NewClient(cfg config.Gateway, creds Credentials) (*Client, error) {
	switch {
	case creds.AccessToken == "" && creds.ExternalID == "":
		return nil, ErrMissingCredentials
	case creds.AccessToken != "" && creds.ExternalID != "":
		return nil, ErrAmbiguousCredentials
	case creds.ExternalID != "" && cfg.APIKey == "":
		return nil, ErrMissingAPIKey
	case cfg.BaseURL == "":
		return nil, ErrMissingBaseURL
	}

	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = config.DefaultGatewayTimeoutMs
	}

	return &Client{
		http:        &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: creds.AccessToken,
		externalID:  creds.ExternalID,
	}, nil
}

func (c *Client) CreateOrderPayment(ctx context.Context, amount float64, paymentID string, extra map[string]any) (*OrderPayment, error) {
	body := createOrderRequest{
		Type:      orderTypeStore,
		Amount:    amount,
		PaymentID: paymentID,
		Extra:     extra,
	}

	var out OrderPayment
	if err := c.do(ctx, http.MethodPost, c.url("api", "v1", "orders"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CaptureOrderPayment(ctx context.Context, externalID, orderID string, extra map[string]any) (*OrderPayment, error) {
	body := captureRequest{OrderID: orderID, Extra: extra}

	var out OrderPayment
	if err := c.do(ctx, http.MethodPost, c.url("api", "v1", "orders", externalID, "capture"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelOrderPayment(ctx context.Context, externalID string, extra map[string]any) error {
	var body any
	if extra != nil {
		body = extraRequest{Extra: extra}
	}
	return c.do(ctx, http.MethodDelete, c.url("api", "v1", "orders", externalID), body, nil)
}

func (c *Client) VerifyOrderPayment(ctx context.Context, externalID string, extra map[string]any) (*OrderPayment, error) {
	var out OrderPayment
	err := c.do(ctx, http.MethodPost, c.url("api", "v1", "orders", externalID, "verify"), extraRequest{Extra: extra}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrderPayment(ctx context.Context, externalID string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, c.url("api", "v1", "orders", externalID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, c.url("api", "v1", "me"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefundOrderPayment(context.Context, string) error {
	return ErrRefundNotSupported
}

func (c *Client) url(segments ...string) string {
	return c.baseURL + "/" + strings.Join(segments, "/")
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	if c.accessToken != "" {
		req.Header.Set("Authorization", c.accessToken)
		return
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set(headerImpersonate, c.externalID)
}

// do sends one request. Every failure past request construction, including
// a 2xx body that does not decode into out, is returned as *RequestError.
func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Method: method, URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &RequestError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Err:        errors.Wrap(err, "decode response"),
		}
	}
	return nil
}
