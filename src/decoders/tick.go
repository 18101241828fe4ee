package decoders

import "ig-streamer/src/models"

// -----------------------------------------------------------------------------

// DecodeTick builds a tick from CHART:<epic>:TICK. It needs every required
// field and at least one usable BID or OFR.
func DecodeTick(update models.MItemUpdate, required []string) (models.MTick, error) {
	if err := checkRequired(update.Snapshot, required); err != nil {
		return models.MTick{}, err
	}

	r := newReader(update.Snapshot, required)
	if !r.present(FieldBid) && !r.present(FieldOffer) {
		return models.MTick{}, &MissingFieldError{Field: FieldBid + "|" + FieldOffer}
	}

	tick := models.MTick{
		Epic:                itemPart(update.Key.Item, 1),
		Time:                r.epochMillis(FieldUpdateTimeMillis),
		Bid:                 r.decimal(FieldBid),
		Offer:               r.decimal(FieldOffer),
		LastTraded:          r.decimal(FieldLastTraded),
		LastTradedVolume:    r.decimal(FieldLastTradedVolume),
		IncrementalVolume:   r.decimal(FieldIncrementalVolume),
		DayOpenMid:          r.decimal(FieldDayOpenMid),
		DayNetChangeMid:     r.decimal(FieldDayNetChangeMid),
		DayPercentChangeMid: r.decimal(FieldDayPercentChange),
		DayHigh:             r.decimal(FieldDayHigh),
		DayLow:              r.decimal(FieldDayLow),
	}
	if err := r.result(); Fatal(err) {
		return models.MTick{}, err
	}
	if !tick.Bid.IsSet() && !tick.Offer.IsSet() {
		return models.MTick{}, r.unusable(FieldBid, FieldOffer)
	}
	return tick, r.result()
}
