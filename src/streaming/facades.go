package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ig-streamer/src/config"
	"ig-streamer/src/decoders"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
	"ig-streamer/src/session"
)

var (
	ErrEmptyEpic      = errors.New("epic cannot be empty")
	ErrEmptyAccountID = errors.New("account id cannot be empty")
)

// -----------------------------------------------------------------------------

// Client groups the request facades of one session.
type Client struct {
	Prices   *Prices
	Charts   *Charts
	Markets  *Markets
	Accounts *Accounts
	Deals    *Deals
}

// NewClient builds every facade over s.
func NewClient(s *session.Session, log *logger.Logger) *Client {
	return &Client{
		Prices:   &Prices{facade{Name: "prices", session: s, logger: log}},
		Charts:   &Charts{facade{Name: "charts", session: s, logger: log}},
		Markets:  &Markets{facade{Name: "markets", session: s, logger: log}},
		Accounts: &Accounts{facade{Name: "accounts", session: s, logger: log}},
		Deals:    &Deals{facade{Name: "deals", session: s, logger: log}},
	}
}

// -----------------------------------------------------------------------------

type facade struct {
	Name    string
	session *session.Session
	logger  *logger.Logger
}

// open validates the request, makes sure the session is connecting or
// connected, then registers a typed listener and waits for the server to
// accept the subscription.
func open[T any](ctx context.Context, f *facade, kind models.MEventType, req models.MSubscriptionRequest, decode session.DecodeFunc[T]) (*Stream[T], error) {
	if err := decoders.ValidateFields(kind, req.Fields); err != nil {
		return nil, &session.ValidationError{Key: req.MSubscriptionKey, Err: err}
	}
	if err := req.Validate(); err != nil {
		return nil, &session.ValidationError{Key: req.MSubscriptionKey, Err: err}
	}

	status, err := f.session.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if !status.IsConnected() {
		f.logger.Info("%s : session is %s, %s will bind once connected", f.Name, status, req.MSubscriptionKey)
	}

	name := fmt.Sprintf("%s[%s]", f.Name, req.Item)
	listener := session.NewListener(name, decode, req.Fields, f.session.ListenerOptions(), f.logger)
	handle, err := f.session.Register(ctx, req, listener)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("%s : streaming %s fields=%v", f.Name, req.MSubscriptionKey, req.Fields)
	return newStream(f.session, listener, handle), nil
}

func request(mode models.MSubscriptionMode, item string, fields []string, snapshot bool) models.MSubscriptionRequest {
	return models.MSubscriptionRequest{
		MSubscriptionKey: models.MSubscriptionKey{Mode: mode, Item: item},
		Fields:           append([]string(nil), fields...),
		Snapshot:         snapshot,
	}
}

func checkID(item string, id string, empty error) error {
	if strings.TrimSpace(id) == "" {
		return &session.ValidationError{Key: models.MSubscriptionKey{Item: item}, Err: empty}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Prices streams the ticks of an instrument (CHART:<epic>:TICK).
type Prices struct{ facade }

func (p *Prices) Subscribe(ctx context.Context, epic string, fields []string, snapshot bool) (*Stream[models.MTick], error) {
	item := "CHART:" + epic + ":TICK"
	if err := checkID(item, epic, ErrEmptyEpic); err != nil {
		return nil, err
	}
	req := request(models.ModeDistinct, item, fields, snapshot)
	return open[models.MTick](ctx, &p.facade, models.EventTypeTick, req, decoders.DecodeTick)
}

// -----------------------------------------------------------------------------

// Charts streams the candles of an instrument (CHART:<epic>:<interval>).
type Charts struct{ facade }

func (c *Charts) Subscribe(ctx context.Context, epic string, interval string, fields []string) (*Stream[models.MCandle], error) {
	item := "CHART:" + epic + ":" + interval
	if err := checkID(item, epic, ErrEmptyEpic); err != nil {
		return nil, err
	}
	if !config.IsChartInterval(interval) {
		return nil, &session.ValidationError{
			Key: models.MSubscriptionKey{Mode: models.ModeMerge, Item: item},
			Err: fmt.Errorf("unsupported chart interval %q (valid: %v)", interval, config.ChartIntervals),
		}
	}
	req := request(models.ModeMerge, item, fields, true)
	return open[models.MCandle](ctx, &c.facade, models.EventTypeCandle, req, decoders.DecodeCandle)
}

// -----------------------------------------------------------------------------

// Markets streams the dealing summary of an instrument (MARKET:<epic>).
type Markets struct{ facade }

func (m *Markets) Subscribe(ctx context.Context, epic string, fields []string) (*Stream[models.MMarketUpdate], error) {
	item := "MARKET:" + epic
	if err := checkID(item, epic, ErrEmptyEpic); err != nil {
		return nil, err
	}
	req := request(models.ModeMerge, item, fields, true)
	return open[models.MMarketUpdate](ctx, &m.facade, models.EventTypeMarket, req, decoders.DecodeMarket)
}

// -----------------------------------------------------------------------------

// Accounts streams balance updates (ACCOUNT:<accountId>).
type Accounts struct{ facade }

func (a *Accounts) Subscribe(ctx context.Context, accountID string, fields []string) (*Stream[models.MAccountUpdate], error) {
	item := "ACCOUNT:" + accountID
	if err := checkID(item, accountID, ErrEmptyAccountID); err != nil {
		return nil, err
	}
	req := request(models.ModeMerge, item, fields, true)
	return open[models.MAccountUpdate](ctx, &a.facade, models.EventTypeAccount, req, decoders.DecodeAccount)
}

// -----------------------------------------------------------------------------

// Deals streams trade notifications (TRADE:<accountId>). Trade items carry
// no snapshot.
type Deals struct{ facade }

func (d *Deals) Subscribe(ctx context.Context, accountID string, fields []string) (*Stream[models.MDealUpdate], error) {
	item := "TRADE:" + accountID
	if err := checkID(item, accountID, ErrEmptyAccountID); err != nil {
		return nil, err
	}
	req := request(models.ModeDistinct, item, fields, false)
	return open[models.MDealUpdate](ctx, &d.facade, models.EventTypeDeal, req, decoders.DecodeDeal)
}
