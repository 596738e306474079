package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/repo"
)

// PaymentGateway is the payment processor as seen by the engine.
// Implementations live in internal/payments.
type PaymentGateway interface {
	// GetCustomer returns the gateway customer. A customer removed upstream is
	// returned with Deleted set rather than as an error.
	GetCustomer(ctx context.Context, customerID string) (domain.Customer, error)

	CreateCustomer(ctx context.Context, email, name string) (domain.Customer, error)

	// AttachPaymentMethod stores the tokenized card on the customer and makes
	// it the default.
	AttachPaymentMethod(ctx context.Context, customerID, token string) (domain.PaymentMethod, error)

	// CreateAndConfirmCharge authorizes the amount in one step. An error
	// wrapping domain.ErrChargeRejected means no charge was created; any other
	// error leaves the outcome unknown.
	CreateAndConfirmCharge(ctx context.Context, req domain.ChargeRequest) (domain.Charge, error)

	// FindChargeByReference returns a successful charge tagged with reference.
	FindChargeByReference(ctx context.Context, reference string) (domain.Charge, bool, error)
}

// Funding is a requester's resolved customer and default payment method.
type Funding struct {
	CustomerID      string
	PaymentMethodID string
}

// PaymentReconciler coordinates gateway calls with user records so that a
// visit is only ever paid once, and a gateway customer reference is never lost.
type PaymentReconciler struct {
	users    repo.UserRepo
	gateway  PaymentGateway
	currency string
	log      *slog.Logger
}

// NewPaymentReconciler constructs a PaymentReconciler charging in currency.
func NewPaymentReconciler(users repo.UserRepo, gateway PaymentGateway, currency string, log *slog.Logger) *PaymentReconciler {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentReconciler{users: users, gateway: gateway, currency: currency, log: log}
}

// SaveCard attaches a tokenized card to the user's gateway customer, creating
// the customer first if the user has none.
func (p *PaymentReconciler) SaveCard(ctx context.Context, userID uuid.UUID, token string) (domain.PaymentMethod, error) {
	if strings.TrimSpace(token) == "" {
		return domain.PaymentMethod{}, fmt.Errorf("service.PaymentReconciler.SaveCard: %w: card token is required", domain.ErrValidation)
	}
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("service.PaymentReconciler.SaveCard: %w", err)
	}
	customer, err := p.ensureCustomer(ctx, user)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("service.PaymentReconciler.SaveCard: %w", err)
	}
	pm, err := p.gateway.AttachPaymentMethod(ctx, customer.ID, token)
	if err != nil {
		p.log.WarnContext(ctx, "attach payment method failed", "user_id", userID, "error", err)
		return domain.PaymentMethod{}, fmt.Errorf("service.PaymentReconciler.SaveCard: %w: card was not accepted", domain.ErrPaymentFailed)
	}
	return pm, nil
}

// Prepare resolves the requester's customer and default payment method.
// Returns domain.ErrPaymentPrecondition when there is nothing to charge.
func (p *PaymentReconciler) Prepare(ctx context.Context, userID uuid.UUID) (Funding, error) {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return Funding{}, fmt.Errorf("service.PaymentReconciler.Prepare: %w", err)
	}
	customer, err := p.ensureCustomer(ctx, user)
	if err != nil {
		return Funding{}, fmt.Errorf("service.PaymentReconciler.Prepare: %w", err)
	}
	if customer.Deleted {
		return Funding{}, fmt.Errorf("service.PaymentReconciler.Prepare: %w: payment customer was removed", domain.ErrPaymentPrecondition)
	}
	if customer.DefaultPaymentMethod == "" {
		return Funding{}, fmt.Errorf("service.PaymentReconciler.Prepare: %w: no payment method on file", domain.ErrPaymentPrecondition)
	}
	return Funding{CustomerID: customer.ID, PaymentMethodID: customer.DefaultPaymentMethod}, nil
}

// Charge authorizes amount for the visit. A successful charge already tagged
// with the visit is returned instead of creating a second one.
//
// Every failure wraps domain.ErrPaymentFailed. chargeSettled reports whether
// the failure guarantees that no charge exists; otherwise the gateway may
// have taken the money and only a later FindChargeByReference can tell.
func (p *PaymentReconciler) Charge(ctx context.Context, f Funding, v domain.Visit, amount int64) (domain.Charge, error) {
	ref := domain.ChargeReference(v.ID)

	existing, found, err := p.gateway.FindChargeByReference(ctx, ref)
	if err != nil {
		p.log.WarnContext(ctx, "charge lookup failed", "visit_id", v.ID, "error", err)
		return domain.Charge{}, fmt.Errorf("service.PaymentReconciler.Charge: %w",
			&chargeError{msg: "payment provider unavailable", settled: true})
	}
	if found {
		p.log.InfoContext(ctx, "reusing existing charge", "visit_id", v.ID, "charge_id", existing.ID)
		return existing, nil
	}

	charge, err := p.gateway.CreateAndConfirmCharge(ctx, domain.ChargeRequest{
		CustomerID:      f.CustomerID,
		PaymentMethodID: f.PaymentMethodID,
		Amount:          amount,
		Currency:        p.currency,
		Reference:       ref,
		Description:     "Home care visit " + ref,
	})
	if err != nil {
		if errors.Is(err, domain.ErrChargeRejected) {
			p.log.WarnContext(ctx, "charge declined", "visit_id", v.ID, "amount", amount, "error", err)
			return domain.Charge{}, fmt.Errorf("service.PaymentReconciler.Charge: %w",
				&chargeError{msg: "payment was declined", settled: true})
		}
		p.log.ErrorContext(ctx, "charge outcome unknown", "visit_id", v.ID, "amount", amount, "error", err)
		return domain.Charge{}, fmt.Errorf("service.PaymentReconciler.Charge: %w",
			&chargeError{msg: "payment outcome unknown, retry later"})
	}
	return charge, nil
}

// chargeError is a failed Charge. settled is true when no charge exists.
type chargeError struct {
	msg     string
	settled bool
}

func (e *chargeError) Error() string { return domain.ErrPaymentFailed.Error() + ": " + e.msg }

func (e *chargeError) Unwrap() error { return domain.ErrPaymentFailed }

// chargeSettled reports whether err from Charge guarantees no charge exists.
func chargeSettled(err error) bool {
	var ce *chargeError
	return errors.As(err, &ce) && ce.settled
}

// ensureCustomer returns the user's gateway customer, creating one and
// persisting its reference before returning if the user has none.
func (p *PaymentReconciler) ensureCustomer(ctx context.Context, user domain.User) (domain.Customer, error) {
	if user.CustomerID != "" {
		c, err := p.gateway.GetCustomer(ctx, user.CustomerID)
		if err != nil {
			p.log.WarnContext(ctx, "customer lookup failed", "user_id", user.ID, "error", err)
			return domain.Customer{}, fmt.Errorf("%w: payment provider unavailable", domain.ErrPaymentFailed)
		}
		return c, nil
	}

	created, err := p.gateway.CreateCustomer(ctx, user.Email, user.FullName)
	if err != nil {
		p.log.WarnContext(ctx, "customer create failed", "user_id", user.ID, "error", err)
		return domain.Customer{}, fmt.Errorf("%w: payment provider unavailable", domain.ErrPaymentFailed)
	}

	if _, err := p.users.SetCustomerID(ctx, user.ID, created.ID); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Customer{}, err
		}
		// A concurrent request stored its customer first; use that one.
		p.log.WarnContext(ctx, "orphaned payment customer", "user_id", user.ID, "customer_id", created.ID)
		stored, err := p.users.GetByID(ctx, user.ID)
		if err != nil {
			return domain.Customer{}, err
		}
		return p.ensureCustomer(ctx, stored)
	}
	return created, nil
}
