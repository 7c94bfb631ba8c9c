package gateway

import (
	"fmt"

	"bits-gateway/internal/bits"
	"bits-gateway/internal/payment"
)

type classification struct {
	kind    payment.TransactionKind
	success bool
}

// providerCodes overrides the intended transaction kind for provider error
// codes that do not mean failure.
var providerCodes = map[int]classification{
	bits.CodePaymentCancelled: {kind: payment.KindVoid, success: true},
}

// responseFromError classifies a failed provider call. The response keeps the
// intended kind unless the error code is listed in providerCodes.
func responseFromError(kind payment.TransactionKind, data payment.PaymentData, reqErr *bits.RequestError) *payment.GatewayResponse {
	response := failedResponse(kind, data, errorMessage(reqErr))

	payload, ok := reqErr.Payload()
	if !ok {
		return response
	}
	response.RawResponse = payload.Raw

	if code, ok := payload.CodeValue(); ok {
		if c, found := providerCodes[code]; found {
			response.Kind = c.kind
			response.IsSuccess = c.success
			// The provider puts the customer-facing reason for these codes in
			// the top-level message.
			if message, ok := payload.MessageValue(); ok {
				response.Error = message
			}
		}
	}
	return response
}

// errorMessage picks the first available of detail.message, message and the
// raw body, then falls back to a description of the request. RequestError
// always carries the method and URL.
func errorMessage(reqErr *bits.RequestError) string {
	if payload, ok := reqErr.Payload(); ok {
		if message, ok := payload.DetailMessage(); ok {
			return message
		}
		if message, ok := payload.MessageValue(); ok {
			return message
		}
	}

	if len(reqErr.Body) > 0 {
		return string(reqErr.Body)
	}

	return fmt.Sprintf("request to %s %s failed", reqErr.Method, reqErr.URL)
}
