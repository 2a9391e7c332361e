package ledger

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// phonePattern is the only accepted phone shape: +7 followed by exactly
// ten digits, no spaces or separators.
var phonePattern = regexp.MustCompile(`^\+7\d{10}$`)

// CreateCustomer registers a customer with a zero bonus balance. The
// phone number is the customer's lookup key, so it must be unique.
func (e *Engine) CreateCustomer(ctx context.Context, name, phone string) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(name) > 100 {
		return nil, &ValidationError{Field: "name", Reason: "must be at most 100 characters"}
	}
	if !phonePattern.MatchString(phone) {
		return nil, &ValidationError{Field: "phone", Reason: "must be +7 followed by 10 digits"}
	}

	created := Customer{
		Name:             name,
		Phone:            phone,
		RegistrationDate: e.now(),
		BonusPoints:      decimal.Zero,
	}
	err := e.store.WithTx(ctx, func(s Store) error {
		existing, err := s.CustomerByPhone(ctx, phone)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ValidationError{Field: "phone", Reason: "already registered"}
		}
		created.ID, err = s.InsertCustomer(ctx, created)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// FindCustomerByPhone looks a customer up by their exact phone number.
func (e *Engine) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	if !phonePattern.MatchString(phone) {
		return nil, &ValidationError{Field: "phone", Reason: "must be +7 followed by 10 digits"}
	}
	customer, err := e.store.CustomerByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, &NotFoundError{Kind: "customer", ID: 0}
	}
	return customer, nil
}

// CustomerDetails returns the customer record together with the number
// of bonus transactions on their ledger.
func (e *Engine) CustomerDetails(ctx context.Context, customerID int64) (*CustomerDetails, error) {
	if customerID <= 0 {
		return nil, &ValidationError{Field: "customerId", Reason: "must be a positive integer"}
	}
	customer, err := e.store.Customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, &NotFoundError{Kind: "customer", ID: customerID}
	}
	count, err := e.store.CountBonusTransactions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &CustomerDetails{Customer: *customer, TransactionCount: count}, nil
}

// BonusHistory returns the customer's bonus transactions, most recent
// first.
func (e *Engine) BonusHistory(ctx context.Context, customerID int64) ([]BonusTransaction, error) {
	if customerID <= 0 {
		return nil, &ValidationError{Field: "customerId", Reason: "must be a positive integer"}
	}
	customer, err := e.store.Customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, &NotFoundError{Kind: "customer", ID: customerID}
	}
	return e.store.BonusTransactionsByCustomer(ctx, customerID)
}

// PurchaseHistory returns the customer's purchased lines joined with
// product names, most recent first.
func (e *Engine) PurchaseHistory(ctx context.Context, customerID int64) ([]PurchaseHistoryEntry, error) {
	if customerID <= 0 {
		return nil, &ValidationError{Field: "customerId", Reason: "must be a positive integer"}
	}
	customer, err := e.store.Customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, &NotFoundError{Kind: "customer", ID: customerID}
	}
	return e.store.PurchaseHistory(ctx, customerID)
}
