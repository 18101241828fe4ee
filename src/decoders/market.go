package decoders

import (
	"strings"

	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// DecodeMarket builds a market summary from MARKET:<epic>.
func DecodeMarket(update models.MItemUpdate, required []string) (models.MMarketUpdate, error) {
	if err := checkRequired(update.Snapshot, required); err != nil {
		return models.MMarketUpdate{}, err
	}

	r := newReader(update.Snapshot, required)
	if !r.present(FieldBid) && !r.present(FieldMarketOffer) {
		return models.MMarketUpdate{}, &MissingFieldError{Field: FieldBid + "|" + FieldMarketOffer}
	}

	market := models.MMarketUpdate{
		Epic:          itemPart(update.Key.Item, 1),
		Bid:           r.decimal(FieldBid),
		Offer:         r.decimal(FieldMarketOffer),
		High:          r.decimal(FieldHigh),
		Low:           r.decimal(FieldLow),
		MidOpen:       r.decimal(FieldMidOpen),
		Change:        r.decimal(FieldChange),
		ChangePercent: r.decimal(FieldChangePct),
		Delayed:       r.flag(FieldMarketDelay),
		UpdateTime:    r.timeOfDay(FieldUpdateTime),
	}
	if raw, ok := r.raw(FieldMarketState); ok {
		if raw == "" {
			market.State = models.Blank[models.MMarketState]()
		} else {
			market.State = models.Known(models.MMarketState(strings.ToUpper(raw)))
		}
	}
	if err := r.result(); Fatal(err) {
		return models.MMarketUpdate{}, err
	}
	if !market.Bid.IsSet() && !market.Offer.IsSet() {
		return models.MMarketUpdate{}, r.unusable(FieldBid, FieldMarketOffer)
	}
	return market, r.result()
}
