package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/customer"
	"github.com/mercadopago/sdk-go/pkg/customercard"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"

	"github.com/pkordes/homecare/internal/domain"
)

// MercadoPago is the live gateway. Customers and cards live on the processor;
// charges carry the visit id as external_reference so a retry can find them.
// The account settles in a single currency fixed when it was opened; the
// payment API takes no currency, so charges in any other one are refused.
type MercadoPago struct {
	customers customer.Client
	cards     customercard.Client
	charges   payment.Client
	currency  string
	log       *slog.Logger
}

// NewMercadoPago builds the SDK clients for accessToken. currency is the
// ISO 4217 code the account settles in.
func NewMercadoPago(accessToken, currency string, log *slog.Logger) (*MercadoPago, error) {
	if accessToken == "" || currency == "" {
		return nil, ErrNotConfigured
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("payments.NewMercadoPago: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &MercadoPago{
		customers: customer.NewClient(cfg),
		cards:     customercard.NewClient(cfg),
		charges:   payment.NewClient(cfg),
		currency:  strings.ToUpper(currency),
		log:       log,
	}, nil
}

// GetCustomer returns the processor customer. A customer the processor no
// longer knows is reported as Deleted.
func (g *MercadoPago) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	resp, err := g.customers.Get(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			return domain.Customer{ID: customerID, Deleted: true}, nil
		}
		return domain.Customer{}, fmt.Errorf("payments.MercadoPago.GetCustomer: %w", err)
	}
	return domain.Customer{ID: resp.ID, DefaultPaymentMethod: resp.DefaultCard}, nil
}

func (g *MercadoPago) CreateCustomer(ctx context.Context, email, name string) (domain.Customer, error) {
	resp, err := g.customers.Create(ctx, customer.Request{Email: email, FirstName: name})
	if err != nil {
		return domain.Customer{}, fmt.Errorf("payments.MercadoPago.CreateCustomer: %w", err)
	}
	g.log.InfoContext(ctx, "payment customer created", "customer_id", resp.ID)
	return domain.Customer{ID: resp.ID, DefaultPaymentMethod: resp.DefaultCard}, nil
}

// AttachPaymentMethod saves the card token on the customer and makes the
// resulting card the default.
func (g *MercadoPago) AttachPaymentMethod(ctx context.Context, customerID, token string) (domain.PaymentMethod, error) {
	card, err := g.cards.Create(ctx, customerID, customercard.Request{Token: token})
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("payments.MercadoPago.AttachPaymentMethod: %w", err)
	}
	if _, err := g.customers.Update(ctx, customerID, customer.Request{DefaultCard: card.ID}); err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("payments.MercadoPago.AttachPaymentMethod: set default: %w", err)
	}
	return domain.PaymentMethod{
		ID:    card.ID,
		Brand: card.PaymentMethod.ID,
		Last4: card.LastFourDigits,
	}, nil
}

// CreateAndConfirmCharge creates the payment in one call. Anything but an
// approved or authorized status is a decline. Transport and API errors are
// returned as is: the payment may still have been created.
func (g *MercadoPago) CreateAndConfirmCharge(ctx context.Context, req domain.ChargeRequest) (domain.Charge, error) {
	if req.Currency != "" && !strings.EqualFold(req.Currency, g.currency) {
		return domain.Charge{}, fmt.Errorf("payments.MercadoPago.CreateAndConfirmCharge: %w: %s, account settles in %s",
			ErrCurrencyMismatch, req.Currency, g.currency)
	}
	resp, err := g.charges.Create(ctx, payment.Request{
		TransactionAmount: toMajor(req.Amount),
		Description:       req.Description,
		ExternalReference: req.Reference,
		Installments:      1,
		Token:             req.PaymentMethodID,
		Payer: &payment.PayerRequest{
			Type: "customer",
			ID:   req.CustomerID,
		},
	})
	if err != nil {
		return domain.Charge{}, fmt.Errorf("payments.MercadoPago.CreateAndConfirmCharge: %w", err)
	}
	if !Succeeded(resp.Status) {
		g.log.WarnContext(ctx, "charge not approved",
			"payment_id", resp.ID, "status", resp.Status, "status_detail", resp.StatusDetail)
		return domain.Charge{}, fmt.Errorf("payments.MercadoPago.CreateAndConfirmCharge: %w: %s", ErrDeclined, resp.Status)
	}
	return chargeFrom(*resp), nil
}

// FindChargeByReference searches payments by external_reference and returns
// the first successful one.
func (g *MercadoPago) FindChargeByReference(ctx context.Context, reference string) (domain.Charge, bool, error) {
	resp, err := g.charges.Search(ctx, payment.SearchRequest{
		Filters: map[string]string{"external_reference": reference},
	})
	if err != nil {
		return domain.Charge{}, false, fmt.Errorf("payments.MercadoPago.FindChargeByReference: %w", err)
	}
	for _, p := range resp.Results {
		if p.ExternalReference == reference && Succeeded(p.Status) {
			return chargeFrom(p), true, nil
		}
	}
	return domain.Charge{}, false, nil
}

func chargeFrom(p payment.Response) domain.Charge {
	return domain.Charge{
		ID:        fmt.Sprintf("%d", p.ID),
		Status:    p.Status,
		Amount:    toMinor(p.TransactionAmount),
		Reference: p.ExternalReference,
	}
}

func isNotFound(err error) bool {
	var respErr *mperror.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
