// Package broker defines the Broker interface and the simulated broker that
// executes orders against price events and keeps the account ledger.
package broker

import (
	"context"

	"tradesim/internal/account"
	"tradesim/internal/domain"
)

// Broker abstracts order placement and account management.
type Broker interface {
	// Name returns the broker identifier (e.g. "sim").
	Name() string

	// Place submits orders and processes event, returning the account after
	// every fill the event produced. Orders failing validation are recorded
	// as rejected; an error means the run cannot continue.
	Place(ctx context.Context, orders []domain.Order, event domain.Event) (account.Account, error)

	// Account returns a snapshot of the current account.
	Account() (account.Account, error)
}
