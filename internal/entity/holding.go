package entity

import "github.com/shopspring/decimal"

// Holding is an open position: quantity of one symbol plus the
// volume-weighted average price paid for it.
//
// Invariant: Quantity > 0. A position reduced to zero is deleted from the
// ledger, never stored empty.
type Holding struct {
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
}

// Merged returns the holding after buying quantity more shares at price,
// recomputing the volume-weighted average buy price:
//
//	newAvg = (oldQty*oldAvg + qty*price) / (oldQty + qty)
func (h Holding) Merged(quantity int64, price decimal.Decimal) Holding {
	oldQty := decimal.NewFromInt(h.Quantity)
	addQty := decimal.NewFromInt(quantity)
	totalQty := oldQty.Add(addQty)

	notional := h.AvgBuyPrice.Mul(oldQty).Add(price.Mul(addQty))

	return Holding{
		AccountID:   h.AccountID,
		Symbol:      h.Symbol,
		Quantity:    h.Quantity + quantity,
		AvgBuyPrice: notional.Div(totalQty),
	}
}

// UnrealizedPnL is the paper profit at the given market price.
func (h Holding) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(h.AvgBuyPrice).Mul(decimal.NewFromInt(h.Quantity))
}
