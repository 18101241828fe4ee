package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
	"ig-streamer/src/serializers"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by queries on a closed journal.
var ErrClosed = errors.New("journal is closed")

const writeTimeout = 2 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
        epic        TEXT    NOT NULL,
        resolution  TEXT    NOT NULL,
        ts          INTEGER NOT NULL,
        tick_count  INTEGER NOT NULL DEFAULT 0,
        bid         TEXT,
        offer       TEXT,
        last_traded TEXT,
        updated_at  INTEGER NOT NULL,
        PRIMARY KEY (epic, resolution, ts)
    )`,
	`CREATE TABLE IF NOT EXISTS deals (
        id             INTEGER PRIMARY KEY AUTOINCREMENT,
        account_id     TEXT    NOT NULL,
        deal_reference TEXT    NOT NULL,
        deal_id        TEXT,
        deal_status    TEXT,
        epic           TEXT,
        direction      TEXT,
        level          TEXT,
        size           TEXT,
        reason         TEXT,
        received_at    INTEGER NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_deals_reference ON deals (deal_reference)`,
}

// -----------------------------------------------------------------------------

// Journal is an interfaces.IEventSink keeping finished candles and deal
// confirmations in a sqlite database.
type Journal struct {
	name   string
	logger *logger.Logger
	codec  interfaces.ISerializer // OHLC bars are stored as JSON text

	mu sync.Mutex
	db *sql.DB

	candles atomic.Uint64
	deals   atomic.Uint64
	failed  atomic.Uint64
}

var _ interfaces.IEventSink = (*Journal)(nil)

// -----------------------------------------------------------------------------

// Open opens (or creates) the database at cfg.Path and makes sure the schema
// exists.
func Open(cfg *models.MJournalConfig, log *logger.Logger) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory '%s': %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal '%s': %w", cfg.Path, err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create journal schema: %w", err)
		}
	}

	j := &Journal{
		name:   "journal",
		logger: log,
		codec:  serializers.NewJSONSerializer(),
		db:     db,
	}
	log.Info("%s : writing finished candles and deal confirmations to %s", j.name, cfg.Path)
	return j, nil
}

// -----------------------------------------------------------------------------

// OnEvent stores finished candles and deal confirmations; everything else is
// ignored.
func (j *Journal) OnEvent(event *models.MStreamEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch p := event.Payload.(type) {
	case models.MCandle:
		if !p.Finished {
			return
		}
		if err = j.saveCandle(ctx, p, event.ReceivedAt); err == nil {
			j.candles.Add(1)
		}
	case models.MDealUpdate:
		if p.Confirmation == nil {
			return
		}
		if err = j.saveDeal(ctx, p, event.ReceivedAt); err == nil {
			j.deals.Add(1)
		}
	default:
		return
	}

	if err != nil {
		j.failed.Add(1)
		j.logger.Error("%s : failed to store %s event for %s: %v", j.name, event.Type, event.Key, err)
	}
}

// -----------------------------------------------------------------------------

func (j *Journal) saveCandle(ctx context.Context, c models.MCandle, receivedAt time.Time) error {
	db, err := j.handle()
	if err != nil {
		return err
	}

	ts := c.Time.Or(receivedAt)
	bars := make([]any, 0, 3)
	for _, bar := range []models.MField[models.MPriceBar]{c.Bid, c.Offer, c.LastTraded} {
		v, err := j.encodeBar(bar)
		if err != nil {
			return err
		}
		bars = append(bars, v)
	}

	_, err = db.ExecContext(ctx, `
        INSERT INTO candles (epic, resolution, ts, tick_count, bid, offer, last_traded, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (epic, resolution, ts) DO UPDATE SET
            tick_count=excluded.tick_count, bid=excluded.bid, offer=excluded.offer,
            last_traded=excluded.last_traded, updated_at=excluded.updated_at`,
		c.Epic, c.Interval, ts.UnixMilli(), c.TickCount.Or(0), bars[0], bars[1], bars[2], time.Now().UnixMilli())
	return err
}

func (j *Journal) saveDeal(ctx context.Context, d models.MDealUpdate, receivedAt time.Time) error {
	db, err := j.handle()
	if err != nil {
		return err
	}

	c := d.Confirmation
	status := c.DealStatus
	if status == "" {
		status = c.Status
	}
	_, err = db.ExecContext(ctx, `
        INSERT INTO deals
            (account_id, deal_reference, deal_id, deal_status, epic, direction, level, size, reason, received_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.AccountID, c.DealReference, c.DealID, status, c.Epic, c.Direction, c.Level, c.Size, c.Reason,
		receivedAt.UnixMilli())
	return err
}

func (j *Journal) encodeBar(bar models.MField[models.MPriceBar]) (any, error) {
	v, ok := bar.Get()
	if !ok {
		return nil, nil
	}
	data, err := j.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (j *Journal) decodeBar(raw sql.NullString) (*models.MPriceBar, error) {
	if !raw.Valid {
		return nil, nil
	}
	var bar models.MPriceBar
	if err := j.codec.Unmarshal([]byte(raw.String), &bar); err != nil {
		return nil, err
	}
	return &bar, nil
}

// -----------------------------------------------------------------------------

// Candles returns the latest finished candles of epic at interval, newest
// first.
func (j *Journal) Candles(ctx context.Context, epic, interval string, limit int) ([]models.MCandleRecord, error) {
	db, err := j.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx, `
        SELECT ts, tick_count, bid, offer, last_traded
        FROM candles
        WHERE epic=? AND resolution=?
        ORDER BY ts DESC
        LIMIT ?`, epic, interval, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MCandleRecord
	for rows.Next() {
		rec := models.MCandleRecord{Epic: epic, Interval: interval}
		var ts int64
		var bid, offer, last sql.NullString
		if err := rows.Scan(&ts, &rec.TickCount, &bid, &offer, &last); err != nil {
			return nil, err
		}
		rec.Time = time.UnixMilli(ts).UTC()
		if rec.Bid, err = j.decodeBar(bid); err != nil {
			return nil, err
		}
		if rec.Offer, err = j.decodeBar(offer); err != nil {
			return nil, err
		}
		if rec.LastTraded, err = j.decodeBar(last); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Deals returns the latest deal confirmations, newest first.
func (j *Journal) Deals(ctx context.Context, limit int) ([]models.MDealRecord, error) {
	db, err := j.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx, `
        SELECT account_id, deal_reference, deal_id, deal_status, epic, direction, level, size, reason, received_at
        FROM deals
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MDealRecord
	for rows.Next() {
		var (
			rec        models.MDealRecord
			receivedAt int64
		)
		if err := rows.Scan(&rec.AccountID, &rec.DealReference, &rec.DealID, &rec.DealStatus, &rec.Epic,
			&rec.Direction, &rec.Level, &rec.Size, &rec.Reason, &receivedAt); err != nil {
			return nil, err
		}
		rec.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

// Stats returns the write counters.
func (j *Journal) Stats() models.MJournalStats {
	return models.MJournalStats{
		Candles: j.candles.Load(),
		Deals:   j.deals.Load(),
		Failed:  j.failed.Load(),
	}
}

// Close implements interfaces.IEventSink. It is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	db := j.db
	j.db = nil
	j.mu.Unlock()

	if db == nil {
		return nil
	}
	j.logger.Info("%s : closing", j.name)
	return db.Close()
}

func (j *Journal) handle() (*sql.DB, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}
	return j.db, nil
}
