// Package domain defines the core value types shared across tradesim:
// assets, money, orders and their lifecycle states, price events,
// positions, trades and signals.
package domain

import (
	"github.com/shopspring/decimal"
)

// Market identifies the exchange calendar an asset trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Currency is an ISO 4217 currency code such as "USD".
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	JPY Currency = "JPY"
	CNY Currency = "CNY"
)

// AssetType classifies an asset.
type AssetType string

const (
	AssetTypeStock  AssetType = "stock"
	AssetTypeCrypto AssetType = "crypto"
	AssetTypeForex  AssetType = "forex"
)

// Asset is a tradable instrument. Assets are comparable and used as map
// keys throughout the ledger.
type Asset struct {
	Symbol   string
	Type     AssetType
	Currency Currency
	Market   Market
}

// NewStock returns a US-listed stock asset denominated in currency.
func NewStock(symbol string, currency Currency) Asset {
	return Asset{
		Symbol:   symbol,
		Type:     AssetTypeStock,
		Currency: currency,
		Market:   MarketUS,
	}
}

// Value returns the notional value of qty units at price, in the asset's
// currency.
func (a Asset) Value(qty, price decimal.Decimal) Amount {
	return Amount{Currency: a.Currency, Value: qty.Mul(price)}
}

func (a Asset) String() string {
	return a.Symbol
}
