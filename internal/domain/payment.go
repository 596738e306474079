package domain

import "github.com/google/uuid"

// Customer is the payment gateway's record of a requester.
type Customer struct {
	ID                   string
	DefaultPaymentMethod string
	// Deleted is set when the gateway reports the customer as removed upstream.
	Deleted bool
}

// PaymentMethod is a stored card attached to a gateway customer.
type PaymentMethod struct {
	ID    string `json:"id"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4,omitempty"`
}

// ChargeRequest asks the gateway to create and confirm an authorization.
// Reference tags the charge with the visit id so a retry can find it.
type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	Reference       string
	Description     string
}

// Charge is a confirmed authorization as reported by the gateway.
type Charge struct {
	ID        string
	Status    string
	Amount    int64
	Reference string
}

// ChargeReference is the gateway reference used for a visit's charge.
func ChargeReference(visitID uuid.UUID) string {
	return visitID.String()
}
