package decoders

import (
	"encoding/json"

	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// DecodeDeal builds the trade notifications of one TRADE:<accountId> push.
// Only payloads written by that push are decoded.
func DecodeDeal(update models.MItemUpdate, required []string) (models.MDealUpdate, error) {
	if err := checkRequired(update.Snapshot, required); err != nil {
		return models.MDealUpdate{}, err
	}

	deal := models.MDealUpdate{AccountID: itemPart(update.Key.Item, 1)}
	found := false
	for _, code := range update.Changed {
		raw := update.Snapshot[code]
		if raw == "" {
			continue
		}
		var err error
		switch code {
		case FieldConfirms:
			deal.Confirmation = &models.MDealConfirmation{}
			err = json.Unmarshal([]byte(raw), deal.Confirmation)
		case FieldOpenPosition:
			deal.Position = &models.MPositionUpdate{}
			err = json.Unmarshal([]byte(raw), deal.Position)
		case FieldWorkingOrder:
			deal.WorkingOrder = &models.MWorkingOrderUpdate{}
			err = json.Unmarshal([]byte(raw), deal.WorkingOrder)
		default:
			continue
		}
		if err != nil {
			return models.MDealUpdate{}, &MalformedFieldError{Field: code, Raw: raw, Err: err}
		}
		found = true
	}

	if !found {
		return models.MDealUpdate{}, &MissingFieldError{Field: FieldConfirms + "|" + FieldOpenPosition + "|" + FieldWorkingOrder}
	}
	return deal, nil
}
