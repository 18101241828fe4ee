package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "journal.db")
	j, err := Open(&models.MJournalConfig{Enabled: true, Path: path}, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func bar(o, h, l, c int64) models.MField[models.MPriceBar] {
	return models.Known(models.MPriceBar{
		Open:  decimal.NewFromInt(o),
		High:  decimal.NewFromInt(h),
		Low:   decimal.NewFromInt(l),
		Close: decimal.NewFromInt(c),
	})
}

func candleEvent(ts time.Time, finished bool, last int64) *models.MStreamEvent {
	return &models.MStreamEvent{
		Type:       models.EventTypeCandle,
		Key:        "IX.D.FTSE.DAILY.IP:1MINUTE",
		ReceivedAt: ts.Add(time.Second),
		Payload: models.MCandle{
			Epic:      "IX.D.FTSE.DAILY.IP",
			Interval:  "1MINUTE",
			Time:      models.Known(ts),
			Finished:  finished,
			TickCount: models.Known(int64(42)),
			Bid:       bar(7500, 7510, 7490, last),
		},
	}
}

// -----------------------------------------------------------------------------

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(&models.MJournalConfig{Enabled: true}, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestCandles(t *testing.T) {
	j, _ := openTemp(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	j.OnEvent(candleEvent(ts, false, 7501))
	j.OnEvent(candleEvent(ts, true, 7505))
	j.OnEvent(candleEvent(ts, true, 7506))
	j.OnEvent(candleEvent(ts.Add(time.Minute), true, 7520))

	records, err := j.Candles(context.Background(), "IX.D.FTSE.DAILY.IP", "1MINUTE", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.True(t, records[0].Time.Equal(ts.Add(time.Minute)))
	assert.True(t, records[1].Time.Equal(ts))
	require.NotNil(t, records[1].Bid)
	assert.True(t, records[1].Bid.Close.Equal(decimal.NewFromInt(7506)))
	assert.True(t, records[1].Bid.High.Equal(decimal.NewFromInt(7510)))
	assert.Equal(t, int64(42), records[1].TickCount)
	assert.Nil(t, records[1].Offer)
	assert.Nil(t, records[1].LastTraded)

	assert.Equal(t, models.MJournalStats{Candles: 3}, j.Stats())

	other, err := j.Candles(context.Background(), "IX.D.FTSE.DAILY.IP", "5MINUTE", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeals(t *testing.T) {
	j, _ := openTemp(t)
	received := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	j.OnEvent(&models.MStreamEvent{
		Type:       models.EventTypeDeal,
		Key:        "ABC12",
		ReceivedAt: received,
		Payload: models.MDealUpdate{
			AccountID: "ABC12",
			Confirmation: &models.MDealConfirmation{
				DealReference: "REF1",
				DealID:        "DIAAAA1",
				DealStatus:    "ACCEPTED",
				Epic:          "IX.D.FTSE.DAILY.IP",
				Direction:     "BUY",
				Level:         decimal.NewNullDecimal(decimal.RequireFromString("7501.5")),
				Size:          decimal.NewNullDecimal(decimal.NewFromInt(2)),
			},
		},
	})
	// position updates alone are not journaled
	j.OnEvent(&models.MStreamEvent{
		Type:    models.EventTypeDeal,
		Key:     "ABC12",
		Payload: models.MDealUpdate{AccountID: "ABC12", Position: &models.MPositionUpdate{DealID: "DIAAAA1"}},
	})
	// neither are ticks
	j.OnEvent(&models.MStreamEvent{Type: models.EventTypeTick, Key: "X", Payload: models.MTick{Epic: "X"}})

	deals, err := j.Deals(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, deals, 1)

	d := deals[0]
	assert.Equal(t, "ABC12", d.AccountID)
	assert.Equal(t, "REF1", d.DealReference)
	assert.Equal(t, "ACCEPTED", d.DealStatus)
	assert.Equal(t, "BUY", d.Direction)
	require.True(t, d.Level.Valid)
	assert.True(t, d.Level.Decimal.Equal(decimal.RequireFromString("7501.5")))
	assert.True(t, d.Size.Decimal.Equal(decimal.NewFromInt(2)))
	assert.True(t, d.ReceivedAt.Equal(received))
	assert.Equal(t, uint64(1), j.Stats().Deals)
}

func TestReopenKeepsData(t *testing.T) {
	j, path := openTemp(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	j.OnEvent(candleEvent(ts, true, 7505))
	require.NoError(t, j.Close())

	again, err := Open(&models.MJournalConfig{Enabled: true, Path: path}, logger.NewNopLogger())
	require.NoError(t, err)
	defer again.Close()

	records, err := again.Candles(context.Background(), "IX.D.FTSE.DAILY.IP", "1MINUTE", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestClosed(t *testing.T) {
	j, _ := openTemp(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	j.OnEvent(candleEvent(time.Now(), true, 1))
	assert.Equal(t, uint64(1), j.Stats().Failed)

	_, err := j.Deals(context.Background(), 10)
	assert.ErrorIs(t, err, ErrClosed)
}
