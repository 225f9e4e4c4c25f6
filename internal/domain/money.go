package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in a single currency.
type Amount struct {
	Currency Currency
	Value    decimal.Decimal
}

// NewAmount is a convenience constructor for integer amounts.
func NewAmount(currency Currency, value int64) Amount {
	return Amount{Currency: currency, Value: decimal.NewFromInt(value)}
}

// Add returns a+b. Both amounts must share a currency.
func (a Amount) Add(b Amount) Amount {
	return Amount{Currency: a.Currency, Value: a.Value.Add(b.Value)}
}

// Sub returns a-b. Both amounts must share a currency.
func (a Amount) Sub(b Amount) Amount {
	return Amount{Currency: a.Currency, Value: a.Value.Sub(b.Value)}
}

// Mul scales the amount by factor.
func (a Amount) Mul(factor decimal.Decimal) Amount {
	return Amount{Currency: a.Currency, Value: a.Value.Mul(factor)}
}

// IsZero reports whether the value is zero.
func (a Amount) IsZero() bool {
	return a.Value.IsZero()
}

// Equal reports whether both amounts have the same currency and value.
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Currency, a.Value.String())
}

// Wallet holds cash in one or more currencies. The zero value is an empty
// wallet ready to use.
type Wallet struct {
	balances map[Currency]decimal.Decimal
}

// NewWallet returns a wallet holding the given amounts.
func NewWallet(amounts ...Amount) Wallet {
	var w Wallet
	for _, a := range amounts {
		w.Deposit(a)
	}
	return w
}

// Deposit adds amount to the wallet.
func (w *Wallet) Deposit(amount Amount) {
	if w.balances == nil {
		w.balances = make(map[Currency]decimal.Decimal)
	}
	w.balances[amount.Currency] = w.balances[amount.Currency].Add(amount.Value)
}

// Withdraw removes amount from the wallet. Balances may go negative.
func (w *Wallet) Withdraw(amount Amount) {
	w.Deposit(Amount{Currency: amount.Currency, Value: amount.Value.Neg()})
}

// Get returns the balance held in currency.
func (w Wallet) Get(currency Currency) decimal.Decimal {
	return w.balances[currency]
}

// Amount returns the balance held in currency as an Amount.
func (w Wallet) Amount(currency Currency) Amount {
	return Amount{Currency: currency, Value: w.balances[currency]}
}

// Currencies returns the currencies with a non-zero balance, sorted.
func (w Wallet) Currencies() []Currency {
	out := make([]Currency, 0, len(w.balances))
	for c, v := range w.balances {
		if !v.IsZero() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Amounts returns the non-zero balances sorted by currency.
func (w Wallet) Amounts() []Amount {
	currencies := w.Currencies()
	out := make([]Amount, 0, len(currencies))
	for _, c := range currencies {
		out = append(out, Amount{Currency: c, Value: w.balances[c]})
	}
	return out
}

// IsEmpty reports whether every balance is zero.
func (w Wallet) IsEmpty() bool {
	return len(w.Currencies()) == 0
}

// Clone returns an independent copy of the wallet.
func (w Wallet) Clone() Wallet {
	c := Wallet{balances: make(map[Currency]decimal.Decimal, len(w.balances))}
	for k, v := range w.balances {
		c.balances[k] = v
	}
	return c
}

// Plus returns a new wallet holding the balances of both wallets.
func (w Wallet) Plus(other Wallet) Wallet {
	c := w.Clone()
	for k, v := range other.balances {
		c.Deposit(Amount{Currency: k, Value: v})
	}
	return c
}

// Equal reports whether both wallets hold the same non-zero balances.
func (w Wallet) Equal(other Wallet) bool {
	a, b := w.Amounts(), other.Amounts()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (w Wallet) String() string {
	parts := make([]string, 0, len(w.balances))
	for _, a := range w.Amounts() {
		parts = append(parts, a.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
