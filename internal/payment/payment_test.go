package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPayment_CaptureDeadline(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		extraData map[string]any
		expected  time.Time
	}{
		{
			name:     "Default grace period",
			expected: created.Add(164 * time.Hour),
		},
		{
			name:      "Stored deadline",
			extraData: map[string]any{CaptureDeadlineKey: "2024-03-02T00:00:00Z"},
			expected:  time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "Unparseable stored deadline falls back",
			extraData: map[string]any{CaptureDeadlineKey: "tomorrow"},
			expected:  created.Add(164 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{CreatedAt: created, ExtraData: tt.extraData}
			assert.True(t, tt.expected.Equal(p.CaptureDeadline()))
		})
	}
}

func TestPayment_SetCaptureDeadline(t *testing.T) {
	p := &Payment{CreatedAt: time.Now()}
	deadline := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p.SetCaptureDeadline(deadline)

	assert.True(t, deadline.Equal(p.CaptureDeadline()))
}

func TestPayment_ChargeAmount(t *testing.T) {
	p := &Payment{Total: decimal.RequireFromString("42.50"), CapturedAmount: decimal.RequireFromString("10")}
	assert.True(t, decimal.RequireFromString("32.50").Equal(p.ChargeAmount()))
}
