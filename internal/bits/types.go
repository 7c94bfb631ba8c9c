package bits

import "encoding/json"

type createOrderRequest struct {
	Type      string         `json:"type"`
	Amount    float64        `json:"amount"`
	PaymentID string         `json:"paymentId"`
	Extra     map[string]any `json:"extra,omitempty"`
}

type captureRequest struct {
	OrderID string         `json:"orderId"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type extraRequest struct {
	Extra map[string]any `json:"extra,omitempty"`
}

// OrderPayment is the provider's view of an order payment. Raw keeps the
// full decoded body for auditing.
type OrderPayment struct {
	ID                  string `json:"id"`
	RequireAction       bool   `json:"require_action"`
	RequireActionSecret string `json:"require_action_secret"`
	Success             *bool  `json:"success"`

	Raw map[string]any `json:"-"`
}

func (o *OrderPayment) UnmarshalJSON(data []byte) error {
	type plain OrderPayment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = OrderPayment(p)
	o.Raw = raw
	return nil
}

type User struct {
	Email            string `json:"email"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Address1         string `json:"address1"`
	Address2         string `json:"address2"`
	City             string `json:"city"`
	PostCode         string `json:"postCode"`
	MembershipNumber string `json:"membershipNumber"`
	PhoneNumber      string `json:"phoneNumber"`

	Raw map[string]any `json:"-"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(p)
	u.Raw = raw
	return nil
}
