package decoders

import "ig-streamer/src/models"

// -----------------------------------------------------------------------------

// DecodeAccount builds an account balance from ACCOUNT:<accountId>.
func DecodeAccount(update models.MItemUpdate, required []string) (models.MAccountUpdate, error) {
	if err := checkRequired(update.Snapshot, required); err != nil {
		return models.MAccountUpdate{}, err
	}
	if len(update.Snapshot) == 0 {
		return models.MAccountUpdate{}, &MissingFieldError{Field: FieldFunds}
	}

	r := newReader(update.Snapshot, required)
	account := models.MAccountUpdate{
		AccountID:            itemPart(update.Key.Item, 1),
		PnL:                  r.decimal(FieldPnL),
		PnLLimitedRisk:       r.decimal(FieldPnLLR),
		PnLNonLimitedRisk:    r.decimal(FieldPnLNLR),
		Deposit:              r.decimal(FieldDeposit),
		AvailableCash:        r.decimal(FieldAvailableCash),
		Funds:                r.decimal(FieldFunds),
		Margin:               r.decimal(FieldMargin),
		MarginLimitedRisk:    r.decimal(FieldMarginLR),
		MarginNonLimitedRisk: r.decimal(FieldMarginNLR),
		AvailableToDeal:      r.decimal(FieldAvailableToDeal),
		Equity:               r.decimal(FieldEquity),
		EquityUsed:           r.decimal(FieldEquityUsed),
	}
	if err := r.result(); Fatal(err) {
		return models.MAccountUpdate{}, err
	}
	return account, r.result()
}
