package decoders

import (
	"fmt"
	"strings"

	"ig-streamer/src/models"
)

// Upstream field codes.
const (
	FieldBid               = "BID"
	FieldOffer             = "OFR"
	FieldLastTraded        = "LTP"
	FieldLastTradedVolume  = "LTV"
	FieldIncrementalVolume = "TTV"
	FieldUpdateTimeMillis  = "UTM"
	FieldDayOpenMid        = "DAY_OPEN_MID"
	FieldDayNetChangeMid   = "DAY_NET_CHG_MID"
	FieldDayPercentChange  = "DAY_PERC_CHG_MID"
	FieldDayHigh           = "DAY_HIGH"
	FieldDayLow            = "DAY_LOW"

	FieldConsolidationEnd = "CONS_END"
	FieldTickCount        = "CONS_TICK_COUNT"

	FieldMarketOffer = "OFFER"
	FieldHigh        = "HIGH"
	FieldLow         = "LOW"
	FieldMidOpen     = "MID_OPEN"
	FieldChange      = "CHANGE"
	FieldChangePct   = "CHANGE_PCT"
	FieldMarketDelay = "MARKET_DELAY"
	FieldMarketState = "MARKET_STATE"
	FieldUpdateTime  = "UPDATE_TIME"

	FieldPnL             = "PNL"
	FieldPnLLR           = "PNL_LR"
	FieldPnLNLR          = "PNL_NLR"
	FieldDeposit         = "DEPOSIT"
	FieldAvailableCash   = "AVAILABLE_CASH"
	FieldFunds           = "FUNDS"
	FieldMargin          = "MARGIN"
	FieldMarginLR        = "MARGIN_LR"
	FieldMarginNLR       = "MARGIN_NLR"
	FieldAvailableToDeal = "AVAILABLE_TO_DEAL"
	FieldEquity          = "EQUITY"
	FieldEquityUsed      = "EQUITY_USED"

	FieldConfirms     = "CONFIRMS"
	FieldOpenPosition = "OPU"
	FieldWorkingOrder = "WOU"
)

// OHLC field prefixes of a candle.
const (
	PrefixBid        = "BID_"
	PrefixOffer      = "OFR_"
	PrefixLastTraded = "LTP_"
)

var dayFields = []string{FieldDayOpenMid, FieldDayNetChangeMid, FieldDayPercentChange, FieldDayHigh, FieldDayLow}

func ohlc(prefix string) []string {
	return []string{prefix + "OPEN", prefix + "HIGH", prefix + "LOW", prefix + "CLOSE"}
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// -----------------------------------------------------------------------------

// TickFields selects fields of CHART:<epic>:TICK.
var TickFields = struct {
	All []string
	Day []string
}{
	All: concat([]string{FieldBid, FieldOffer, FieldLastTraded, FieldLastTradedVolume, FieldIncrementalVolume, FieldUpdateTimeMillis}, dayFields),
	Day: concat([]string{FieldBid, FieldOffer, FieldUpdateTimeMillis}, dayFields),
}

// CandleFields selects fields of CHART:<epic>:<interval>.
var CandleFields = struct {
	All        []string
	Bid        []string
	Offer      []string
	LastTraded []string
	Day        []string
}{
	All: concat(
		[]string{FieldUpdateTimeMillis, FieldConsolidationEnd, FieldTickCount, FieldLastTradedVolume, FieldIncrementalVolume},
		ohlc(PrefixBid), ohlc(PrefixOffer), ohlc(PrefixLastTraded), dayFields,
	),
	Bid:        concat([]string{FieldUpdateTimeMillis, FieldConsolidationEnd, FieldTickCount}, ohlc(PrefixBid)),
	Offer:      concat([]string{FieldUpdateTimeMillis, FieldConsolidationEnd, FieldTickCount}, ohlc(PrefixOffer)),
	LastTraded: concat([]string{FieldUpdateTimeMillis, FieldConsolidationEnd, FieldTickCount, FieldLastTradedVolume, FieldIncrementalVolume}, ohlc(PrefixLastTraded)),
	Day:        concat([]string{FieldUpdateTimeMillis, FieldConsolidationEnd}, ohlc(PrefixBid), ohlc(PrefixOffer), dayFields),
}

// MarketFields selects fields of MARKET:<epic>.
var MarketFields = struct {
	All    []string
	Prices []string
	Day    []string
}{
	All: []string{
		FieldBid, FieldMarketOffer, FieldHigh, FieldLow, FieldMidOpen, FieldChange,
		FieldChangePct, FieldMarketDelay, FieldMarketState, FieldUpdateTime,
	},
	Prices: []string{FieldBid, FieldMarketOffer, FieldMarketState, FieldUpdateTime},
	Day:    []string{FieldBid, FieldMarketOffer, FieldHigh, FieldLow, FieldMidOpen, FieldChange, FieldChangePct},
}

// AccountFields selects fields of ACCOUNT:<accountId>.
var AccountFields = struct {
	All    []string
	Margin []string
	Funds  []string
}{
	All: []string{
		FieldPnL, FieldDeposit, FieldAvailableCash, FieldPnLLR, FieldPnLNLR, FieldFunds,
		FieldMargin, FieldMarginLR, FieldMarginNLR, FieldAvailableToDeal, FieldEquity, FieldEquityUsed,
	},
	Margin: []string{FieldMargin, FieldMarginLR, FieldMarginNLR, FieldAvailableToDeal},
	Funds:  []string{FieldFunds, FieldDeposit, FieldAvailableCash, FieldEquity, FieldEquityUsed, FieldPnL},
}

// DealFields selects fields of TRADE:<accountId>.
var DealFields = struct {
	All           []string
	Confirmations []string
}{
	All:           []string{FieldConfirms, FieldOpenPosition, FieldWorkingOrder},
	Confirmations: []string{FieldConfirms},
}

// -----------------------------------------------------------------------------

// Catalogue returns every field code known for an event type.
func Catalogue(kind models.MEventType) []string {
	switch kind {
	case models.EventTypeTick:
		return TickFields.All
	case models.EventTypeCandle:
		return CandleFields.All
	case models.EventTypeMarket:
		return MarketFields.All
	case models.EventTypeAccount:
		return AccountFields.All
	case models.EventTypeDeal:
		return DealFields.All
	}
	return nil
}

// -----------------------------------------------------------------------------

// Selector resolves a selector name ("all", "day", ...) for an event type.
// An empty name means "all".
func Selector(kind models.MEventType, name string) ([]string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "all" {
		if c := Catalogue(kind); c != nil {
			return c, nil
		}
	}

	var fields []string
	switch kind {
	case models.EventTypeTick:
		if name == "day" {
			fields = TickFields.Day
		}
	case models.EventTypeCandle:
		switch name {
		case "bid":
			fields = CandleFields.Bid
		case "offer":
			fields = CandleFields.Offer
		case "last_traded":
			fields = CandleFields.LastTraded
		case "day":
			fields = CandleFields.Day
		}
	case models.EventTypeMarket:
		switch name {
		case "prices":
			fields = MarketFields.Prices
		case "day":
			fields = MarketFields.Day
		}
	case models.EventTypeAccount:
		switch name {
		case "margin":
			fields = AccountFields.Margin
		case "funds":
			fields = AccountFields.Funds
		}
	case models.EventTypeDeal:
		if name == "confirmations" {
			fields = DealFields.Confirmations
		}
	}

	if fields == nil {
		return nil, fmt.Errorf("%w: unknown %s selector %q", ErrInvalidFields, kind, name)
	}
	return fields, nil
}

// -----------------------------------------------------------------------------

// ValidateFields rejects a selection that is empty, holds unknown or duplicate
// codes, or can never satisfy the minimum of the event type.
func ValidateFields(kind models.MEventType, fields []string) error {
	catalogue := Catalogue(kind)
	if catalogue == nil {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidFields, kind)
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: no %s fields selected", ErrInvalidFields, kind)
	}

	known := toSet(catalogue)
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := known[f]; !ok {
			return fmt.Errorf("%w: unknown %s field %q", ErrInvalidFields, kind, f)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidFields, f)
		}
		seen[f] = struct{}{}
	}

	switch kind {
	case models.EventTypeTick:
		if !hasAny(seen, FieldBid, FieldOffer) {
			return fmt.Errorf("%w: tick needs %s or %s", ErrInvalidFields, FieldBid, FieldOffer)
		}
	case models.EventTypeCandle:
		if !hasAny(seen, FieldConsolidationEnd) {
			return fmt.Errorf("%w: candle needs %s", ErrInvalidFields, FieldConsolidationEnd)
		}
		if !hasAll(seen, ohlc(PrefixBid)...) && !hasAll(seen, ohlc(PrefixOffer)...) && !hasAll(seen, ohlc(PrefixLastTraded)...) {
			return fmt.Errorf("%w: candle needs one complete OHLC set", ErrInvalidFields)
		}
	case models.EventTypeMarket:
		if !hasAny(seen, FieldBid, FieldMarketOffer) {
			return fmt.Errorf("%w: market needs %s or %s", ErrInvalidFields, FieldBid, FieldMarketOffer)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, f := range list {
		out[f] = struct{}{}
	}
	return out
}

func hasAny(set map[string]struct{}, fields ...string) bool {
	for _, f := range fields {
		if _, ok := set[f]; ok {
			return true
		}
	}
	return false
}

func hasAll(set map[string]struct{}, fields ...string) bool {
	for _, f := range fields {
		if _, ok := set[f]; !ok {
			return false
		}
	}
	return true
}
