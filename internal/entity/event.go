package entity

import "time"

// EventType classifies a trade event emitted by the engine.
type EventType string

const (
	EventAccountOpened   EventType = "account_opened"
	EventAccountDebited  EventType = "account_debited"
	EventAccountCredited EventType = "account_credited"
	EventHoldingOpened   EventType = "holding_opened"
	EventHoldingClosed   EventType = "holding_closed"
)

// TradeEvent is a domain event forwarded to notifiers and the event journal.
// Money fields are strings so UI and broker consumers never touch floats.
type TradeEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol,omitempty"`
	Quantity  int64     `json:"quantity,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	At        time.Time `json:"at"`
}

// TradeEventRecord bundles an event with the journal index it was read from.
type TradeEventRecord struct {
	Index uint64
	Event TradeEvent
}
