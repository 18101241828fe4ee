package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// MEventType names the typed event families produced by the decoders.
type MEventType string

const (
	EventTypeTick    MEventType = "TICK"
	EventTypeCandle  MEventType = "CANDLE"
	EventTypeMarket  MEventType = "MARKET"
	EventTypeAccount MEventType = "ACCOUNT"
	EventTypeDeal    MEventType = "DEAL"
)

// -----------------------------------------------------------------------------

// MTick is one price tick of an instrument (CHART:<epic>:TICK).
type MTick struct {
	Epic                string                  `json:"epic"`
	Time                MField[time.Time]       `json:"time"`
	Bid                 MField[decimal.Decimal] `json:"bid"`
	Offer               MField[decimal.Decimal] `json:"offer"`
	LastTraded          MField[decimal.Decimal] `json:"last_traded"`
	LastTradedVolume    MField[decimal.Decimal] `json:"last_traded_volume"`
	IncrementalVolume   MField[decimal.Decimal] `json:"incremental_volume"`
	DayOpenMid          MField[decimal.Decimal] `json:"day_open_mid"`
	DayNetChangeMid     MField[decimal.Decimal] `json:"day_net_change_mid"`
	DayPercentChangeMid MField[decimal.Decimal] `json:"day_percent_change_mid"`
	DayHigh             MField[decimal.Decimal] `json:"day_high"`
	DayLow              MField[decimal.Decimal] `json:"day_low"`
}

// -----------------------------------------------------------------------------

// MPriceBar is an open/high/low/close quadruple.
type MPriceBar struct {
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// MCandle is one chart candle (CHART:<epic>:<interval>).
type MCandle struct {
	Epic                string                  `json:"epic"`
	Interval            string                  `json:"interval"`
	Time                MField[time.Time]       `json:"time"`
	Finished            bool                    `json:"finished"`
	TickCount           MField[int64]           `json:"tick_count"`
	Bid                 MField[MPriceBar]       `json:"bid"`
	Offer               MField[MPriceBar]       `json:"offer"`
	LastTraded          MField[MPriceBar]       `json:"last_traded"`
	LastTradedVolume    MField[decimal.Decimal] `json:"last_traded_volume"`
	IncrementalVolume   MField[decimal.Decimal] `json:"incremental_volume"`
	DayOpenMid          MField[decimal.Decimal] `json:"day_open_mid"`
	DayNetChangeMid     MField[decimal.Decimal] `json:"day_net_change_mid"`
	DayPercentChangeMid MField[decimal.Decimal] `json:"day_percent_change_mid"`
	DayHigh             MField[decimal.Decimal] `json:"day_high"`
	DayLow              MField[decimal.Decimal] `json:"day_low"`
}

// -----------------------------------------------------------------------------

// MMarketState is the dealing state of a market.
type MMarketState string

const (
	MarketClosed        MMarketState = "CLOSED"
	MarketOffline       MMarketState = "OFFLINE"
	MarketTradeable     MMarketState = "TRADEABLE"
	MarketEditsOnly     MMarketState = "EDIT"
	MarketAuction       MMarketState = "AUCTION"
	MarketAuctionNoEdit MMarketState = "AUCTION_NO_EDIT"
	MarketSuspended     MMarketState = "SUSPENDED"
)

// MMarketUpdate is the streamed market summary (MARKET:<epic>).
type MMarketUpdate struct {
	Epic          string                  `json:"epic"`
	Bid           MField[decimal.Decimal] `json:"bid"`
	Offer         MField[decimal.Decimal] `json:"offer"`
	High          MField[decimal.Decimal] `json:"high"`
	Low           MField[decimal.Decimal] `json:"low"`
	MidOpen       MField[decimal.Decimal] `json:"mid_open"`
	Change        MField[decimal.Decimal] `json:"change"`
	ChangePercent MField[decimal.Decimal] `json:"change_percent"`
	Delayed       MField[bool]            `json:"delayed"`
	State         MField[MMarketState]    `json:"state"`
	UpdateTime    MField[time.Time]       `json:"update_time"`
}

// -----------------------------------------------------------------------------

// MAccountUpdate is the streamed account balance (ACCOUNT:<accountId>).
type MAccountUpdate struct {
	AccountID            string                  `json:"account_id"`
	PnL                  MField[decimal.Decimal] `json:"pnl"`
	PnLLimitedRisk       MField[decimal.Decimal] `json:"pnl_lr"`
	PnLNonLimitedRisk    MField[decimal.Decimal] `json:"pnl_nlr"`
	Deposit              MField[decimal.Decimal] `json:"deposit"`
	AvailableCash        MField[decimal.Decimal] `json:"available_cash"`
	Funds                MField[decimal.Decimal] `json:"funds"`
	Margin               MField[decimal.Decimal] `json:"margin"`
	MarginLimitedRisk    MField[decimal.Decimal] `json:"margin_lr"`
	MarginNonLimitedRisk MField[decimal.Decimal] `json:"margin_nlr"`
	AvailableToDeal      MField[decimal.Decimal] `json:"available_to_deal"`
	Equity               MField[decimal.Decimal] `json:"equity"`
	EquityUsed           MField[decimal.Decimal] `json:"equity_used"`
}

// -----------------------------------------------------------------------------

// MAffectedDeal is one deal touched by a confirmation.
type MAffectedDeal struct {
	DealID string `json:"dealId"`
	Status string `json:"status"`
}

// MDealConfirmation is the CONFIRMS payload.
type MDealConfirmation struct {
	DealReference  string              `json:"dealReference"`
	DealID         string              `json:"dealId"`
	DealStatus     string              `json:"dealStatus"`
	Status         string              `json:"status"`
	Reason         string              `json:"reason"`
	Epic           string              `json:"epic"`
	Expiry         string              `json:"expiry"`
	Direction      string              `json:"direction"`
	Level          decimal.NullDecimal `json:"level"`
	Size           decimal.NullDecimal `json:"size"`
	StopLevel      decimal.NullDecimal `json:"stopLevel"`
	LimitLevel     decimal.NullDecimal `json:"limitLevel"`
	StopDistance   decimal.NullDecimal `json:"stopDistance"`
	LimitDistance  decimal.NullDecimal `json:"limitDistance"`
	Profit         decimal.NullDecimal `json:"profit"`
	ProfitCurrency string              `json:"profitCurrency"`
	GuaranteedStop bool                `json:"guaranteedStop"`
	TrailingStop   bool                `json:"trailingStop"`
	Date           string              `json:"date"`
	AffectedDeals  []MAffectedDeal     `json:"affectedDeals"`
}

// MPositionUpdate is the OPU payload.
type MPositionUpdate struct {
	DealReference  string              `json:"dealReference"`
	DealID         string              `json:"dealId"`
	DealStatus     string              `json:"dealStatus"`
	Status         string              `json:"status"`
	Epic           string              `json:"epic"`
	Expiry         string              `json:"expiry"`
	Direction      string              `json:"direction"`
	Currency       string              `json:"currency"`
	Level          decimal.NullDecimal `json:"level"`
	Size           decimal.NullDecimal `json:"size"`
	StopLevel      decimal.NullDecimal `json:"stopLevel"`
	LimitLevel     decimal.NullDecimal `json:"limitLevel"`
	GuaranteedStop bool                `json:"guaranteedStop"`
	TrailingStop   bool                `json:"trailingStop"`
	Timestamp      string              `json:"timestamp"`
	Channel        string              `json:"channel"`
}

// MWorkingOrderUpdate is the WOU payload.
type MWorkingOrderUpdate struct {
	DealReference  string              `json:"dealReference"`
	DealID         string              `json:"dealId"`
	DealStatus     string              `json:"dealStatus"`
	Status         string              `json:"status"`
	Epic           string              `json:"epic"`
	Expiry         string              `json:"expiry"`
	Direction      string              `json:"direction"`
	Currency       string              `json:"currency"`
	OrderType      string              `json:"orderType"`
	TimeInForce    string              `json:"timeInForce"`
	GoodTillDate   string              `json:"goodTillDate"`
	Level          decimal.NullDecimal `json:"level"`
	Size           decimal.NullDecimal `json:"size"`
	StopDistance   decimal.NullDecimal `json:"stopDistance"`
	LimitDistance  decimal.NullDecimal `json:"limitDistance"`
	GuaranteedStop bool                `json:"guaranteedStop"`
	Timestamp      string              `json:"timestamp"`
	Channel        string              `json:"channel"`
}

// MDealUpdate carries the trade notifications of one push (TRADE:<accountId>).
// Only the payloads written by that push are non-nil.
type MDealUpdate struct {
	AccountID    string               `json:"account_id"`
	Confirmation *MDealConfirmation   `json:"confirmation,omitempty"`
	Position     *MPositionUpdate     `json:"position,omitempty"`
	WorkingOrder *MWorkingOrderUpdate `json:"working_order,omitempty"`
}

// -----------------------------------------------------------------------------

// MStreamEvent is the envelope handed to publishers and the journal.
type MStreamEvent struct {
	Type       MEventType `json:"type"`
	Key        string     `json:"key"` // epic, epic:interval or account id
	ReceivedAt time.Time  `json:"received_at"`
	Payload    any        `json:"payload"`
}

// -----------------------------------------------------------------------------

func marshalValue(v any) ([]byte, error) {
	return json.Marshal(v)
}
