package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
)

// DeclineToken is a card token that attaches fine but whose charges are
// always declined.
const DeclineToken = "tok_chargeDeclined"

// Memory is a concurrency-safe in-process gateway. Every created charge is
// kept in order; FindChargeByReference searches them like the live API.
type Memory struct {
	mu        sync.Mutex
	customers map[string]*memoryCustomer
	charges   []domain.Charge
	seq       int
	failNext  error
}

type memoryCustomer struct {
	email, name string
	deleted     bool
	defaultCard string
	cards       map[string]string // card id -> token
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		customers: map[string]*memoryCustomer{},
	}
}

func (m *Memory) GetCustomer(_ context.Context, customerID string) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return domain.Customer{}, err
	}
	c, ok := m.customers[customerID]
	if !ok || c.deleted {
		return domain.Customer{ID: customerID, Deleted: true}, nil
	}
	return domain.Customer{ID: customerID, DefaultPaymentMethod: c.defaultCard}, nil
}

func (m *Memory) CreateCustomer(_ context.Context, email, name string) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return domain.Customer{}, err
	}
	id := "cus_" + uuid.NewString()
	m.customers[id] = &memoryCustomer{email: email, name: name, cards: map[string]string{}}
	return domain.Customer{ID: id}, nil
}

func (m *Memory) AttachPaymentMethod(_ context.Context, customerID, token string) (domain.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return domain.PaymentMethod{}, err
	}
	c, ok := m.customers[customerID]
	if !ok || c.deleted {
		return domain.PaymentMethod{}, fmt.Errorf("payments.Memory.AttachPaymentMethod: unknown customer %q", customerID)
	}
	if !strings.HasPrefix(token, "tok_") {
		return domain.PaymentMethod{}, fmt.Errorf("payments.Memory.AttachPaymentMethod: %w: invalid token", ErrDeclined)
	}
	m.seq++
	id := fmt.Sprintf("card_%d", m.seq)
	c.cards[id] = token
	c.defaultCard = id
	return domain.PaymentMethod{ID: id, Brand: "visa", Last4: "4242"}, nil
}

func (m *Memory) CreateAndConfirmCharge(_ context.Context, req domain.ChargeRequest) (domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return domain.Charge{}, err
	}
	c, ok := m.customers[req.CustomerID]
	if !ok || c.deleted {
		return domain.Charge{}, fmt.Errorf("payments.Memory.CreateAndConfirmCharge: %w: unknown customer %q", domain.ErrChargeRejected, req.CustomerID)
	}
	token, ok := c.cards[req.PaymentMethodID]
	if !ok {
		return domain.Charge{}, fmt.Errorf("payments.Memory.CreateAndConfirmCharge: %w: unknown card %q", domain.ErrChargeRejected, req.PaymentMethodID)
	}
	if token == DeclineToken {
		return domain.Charge{}, fmt.Errorf("payments.Memory.CreateAndConfirmCharge: %w", ErrDeclined)
	}
	m.seq++
	ch := domain.Charge{
		ID:        fmt.Sprintf("pay_%d", m.seq),
		Status:    StatusApproved,
		Amount:    req.Amount,
		Reference: req.Reference,
	}
	m.charges = append(m.charges, ch)
	return ch, nil
}

func (m *Memory) FindChargeByReference(_ context.Context, reference string) (domain.Charge, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return domain.Charge{}, false, err
	}
	for _, ch := range m.charges {
		if ch.Reference == reference {
			return ch, true, nil
		}
	}
	return domain.Charge{}, false, nil
}

// DeleteCustomer marks a customer as removed upstream.
func (m *Memory) DeleteCustomer(customerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[customerID]; ok {
		c.deleted = true
	}
}

// Charges returns the number of charges created, including repeats under the
// same reference.
func (m *Memory) Charges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.charges)
}

// Fail makes the next gateway call return err.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// takeFailure must be called with m.mu held.
func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}
