package service

import "bits-gateway/internal/payment"

// applyResponse moves pay to the state implied by a recorded gateway
// response and reports whether pay changed. Failed responses never change
// the payment.
func applyResponse(pay *payment.Payment, r *payment.GatewayResponse) bool {
	if !r.IsSuccess {
		return false
	}

	if r.ActionRequired {
		pay.ToConfirm = true
		if r.TransactionID != "" {
			pay.Token = r.TransactionID
		}
		return true
	}

	switch r.Kind {
	case payment.KindAuth:
		if r.TransactionID != "" {
			pay.Token = r.TransactionID
		}
		pay.ToConfirm = false
	case payment.KindCapture:
		pay.CapturedAmount = pay.CapturedAmount.Add(r.Amount)
		if pay.CapturedAmount.GreaterThanOrEqual(pay.Total) {
			pay.ChargeStatus = payment.StatusFullyCharged
		} else {
			pay.ChargeStatus = payment.StatusPartiallyCharged
		}
		pay.ToConfirm = false
	case payment.KindVoid:
		pay.ChargeStatus = payment.StatusCancelled
		pay.IsActive = false
		pay.ToConfirm = false
	default:
		return false
	}
	return true
}
