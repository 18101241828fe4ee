package decoders

import "ig-streamer/src/models"

// -----------------------------------------------------------------------------

// DecodeCandle builds a candle from CHART:<epic>:<interval>. It needs every
// required field, CONS_END and one complete OHLC set.
func DecodeCandle(update models.MItemUpdate, required []string) (models.MCandle, error) {
	if err := checkRequired(update.Snapshot, required); err != nil {
		return models.MCandle{}, err
	}

	r := newReader(update.Snapshot, required, FieldConsolidationEnd)
	end := r.flag(FieldConsolidationEnd)
	if r.err != nil {
		return models.MCandle{}, r.err
	}
	if end.State == models.FieldUnknown {
		return models.MCandle{}, &MissingFieldError{Field: FieldConsolidationEnd}
	}

	candle := models.MCandle{
		Epic:                itemPart(update.Key.Item, 1),
		Interval:            itemPart(update.Key.Item, 2),
		Time:                r.epochMillis(FieldUpdateTimeMillis),
		Finished:            end.Or(false),
		TickCount:           r.integer(FieldTickCount),
		Bid:                 r.bar(PrefixBid),
		Offer:               r.bar(PrefixOffer),
		LastTraded:          r.bar(PrefixLastTraded),
		LastTradedVolume:    r.decimal(FieldLastTradedVolume),
		IncrementalVolume:   r.decimal(FieldIncrementalVolume),
		DayOpenMid:          r.decimal(FieldDayOpenMid),
		DayNetChangeMid:     r.decimal(FieldDayNetChangeMid),
		DayPercentChangeMid: r.decimal(FieldDayPercentChange),
		DayHigh:             r.decimal(FieldDayHigh),
		DayLow:              r.decimal(FieldDayLow),
	}
	if err := r.result(); Fatal(err) {
		return models.MCandle{}, err
	}
	if !candle.Bid.IsSet() && !candle.Offer.IsSet() && !candle.LastTraded.IsSet() {
		if err := r.malformed(concat(ohlc(PrefixBid), ohlc(PrefixOffer), ohlc(PrefixLastTraded))...); err != nil {
			return models.MCandle{}, err
		}
		return models.MCandle{}, &MissingFieldError{Field: "OHLC"}
	}
	return candle, r.result()
}
