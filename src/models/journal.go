package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// MCandleRecord is a finished candle as stored by the journal. Bars that were
// not subscribed are nil.
type MCandleRecord struct {
	Epic       string     `json:"epic"`
	Interval   string     `json:"interval"`
	Time       time.Time  `json:"time"`
	TickCount  int64      `json:"tick_count"`
	Bid        *MPriceBar `json:"bid,omitempty"`
	Offer      *MPriceBar `json:"offer,omitempty"`
	LastTraded *MPriceBar `json:"last_traded,omitempty"`
}

// MDealRecord is a stored deal confirmation.
type MDealRecord struct {
	AccountID     string              `json:"account_id"`
	DealReference string              `json:"deal_reference"`
	DealID        string              `json:"deal_id"`
	DealStatus    string              `json:"deal_status"`
	Epic          string              `json:"epic"`
	Direction     string              `json:"direction"`
	Level         decimal.NullDecimal `json:"level"`
	Size          decimal.NullDecimal `json:"size"`
	Reason        string              `json:"reason"`
	ReceivedAt    time.Time           `json:"received_at"`
}
