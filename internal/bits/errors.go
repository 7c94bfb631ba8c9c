package bits

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CodePaymentCancelled is the provider error code for an order cancelled by
// the user or the provider.
const CodePaymentCancelled = 302

// RequestError describes a failed provider call. StatusCode is zero when no
// response was received.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("bits: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("bits: %s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// HasResponse reports whether the provider answered at all.
func (e *RequestError) HasResponse() bool {
	return e.StatusCode != 0
}

// ErrorPayload is the best-effort shape of a provider error body. Fields are
// left untyped because the provider does not guarantee them.
type ErrorPayload struct {
	Code    any `json:"code"`
	Message any `json:"message"`
	Detail  any `json:"detail"`

	Raw map[string]any `json:"-"`
}

// Payload decodes the response body as a JSON object. ok is false when there
// is no body or it is not an object.
func (e *RequestError) Payload() (payload *ErrorPayload, ok bool) {
	if len(e.Body) == 0 {
		return nil, false
	}

	var raw map[string]any
	if err := json.Unmarshal(e.Body, &raw); err != nil || raw == nil {
		return nil, false
	}

	return &ErrorPayload{
		Code:    raw["code"],
		Message: raw["message"],
		Detail:  raw["detail"],
		Raw:     raw,
	}, true
}

// CodeValue returns the numeric error code. Only whole numbers and strings
// holding exactly an integer are accepted.
func (p *ErrorPayload) CodeValue() (int, bool) {
	switch v := p.Code.(type) {
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
			return int(v), true
		}
	case string:
		if code, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return code, true
		}
	}
	return 0, false
}

// MessageValue returns the top-level message when it is a non-empty string.
func (p *ErrorPayload) MessageValue() (string, bool) {
	s, ok := p.Message.(string)
	return s, ok && s != ""
}

// DetailMessage returns detail.message when it is a non-empty string.
func (p *ErrorPayload) DetailMessage() (string, bool) {
	detail, ok := p.Detail.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := detail["message"].(string)
	return s, ok && s != ""
}
