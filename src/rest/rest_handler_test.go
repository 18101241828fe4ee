package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"ig-streamer/src/config"
	"ig-streamer/src/journal"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

type stubSource struct {
	status  models.MConnectionStatus
	infos   []models.MSubscriptionInfo
	infoErr error
}

func (s *stubSource) GetName() string                 { return "stub" }
func (s *stubSource) Start(ctx context.Context) error { return nil }
func (s *stubSource) Stop() error                     { return nil }

func (s *stubSource) GetStatus() *models.MSessionStatus {
	return &models.MSessionStatus{
		Name:          "stub",
		Status:        s.status.String(),
		Connected:     s.status.IsConnected(),
		AccountID:     "ABC12",
		Subscriptions: s.infos,
	}
}

func (s *stubSource) WatchStatus(ctx context.Context) <-chan models.MConnectionStatus {
	ch := make(chan models.MConnectionStatus)
	close(ch)
	return ch
}

func (s *stubSource) Subscriptions(ctx context.Context) ([]models.MSubscriptionInfo, error) {
	return s.infos, s.infoErr
}

func (s *stubSource) Stats() models.MIngestorStats {
	return models.MIngestorStats{Events: 7}
}

// -----------------------------------------------------------------------------

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	src := &stubSource{status: models.ConnectedWebSocket(false)}
	srv := NewRestServer(config.NewDefaultConfig(), logger.NewNopLogger(), src, nil)

	var body map[string]any
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/rest/health", &body))
	assert.Equal(t, "CONNECTED:WS-STREAMING", body["status"])
	assert.Equal(t, true, body["connected"])

	src.status = models.Disconnected(true)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/rest/health", &body))
	assert.Equal(t, "DISCONNECTED:WILL-RETRY", body["status"])
}

func TestStatusAndSubscriptions(t *testing.T) {
	src := &stubSource{
		status: models.ConnectedWebSocket(false),
		infos: []models.MSubscriptionInfo{{
			Key:          models.MSubscriptionKey{Mode: models.ModeMerge, Item: "MARKET:IX.D.FTSE.DAILY.IP"},
			Fields:       []string{"BID", "OFFER"},
			Snapshot:     true,
			Listeners:    2,
			Acknowledged: true,
		}},
	}
	srv := NewRestServer(config.NewDefaultConfig(), logger.NewNopLogger(), src, nil)

	var status struct {
		Session models.MSessionStatus `json:"session"`
		Stats   models.MIngestorStats `json:"stats"`
	}
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/rest/status", &status))
	assert.Equal(t, "ABC12", status.Session.AccountID)
	assert.Equal(t, uint64(7), status.Stats.Events)

	var subs struct {
		Subscriptions []models.MSubscriptionInfo `json:"subscriptions"`
	}
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/rest/subscriptions", &subs))
	require.Len(t, subs.Subscriptions, 1)
	assert.Equal(t, 2, subs.Subscriptions[0].Listeners)
	assert.Equal(t, "MARKET:IX.D.FTSE.DAILY.IP", subs.Subscriptions[0].Key.Item)

	src.infoErr = errors.New("session closed")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/rest/subscriptions", nil))

	// journal routes are not mounted without a journal
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/rest/journal/deals", nil))
}

func TestJournalRoutes(t *testing.T) {
	j, err := journal.Open(&models.MJournalConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "j.db")}, logger.NewNopLogger())
	require.NoError(t, err)
	defer j.Close()

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	j.OnEvent(&models.MStreamEvent{
		Type: models.EventTypeCandle,
		Key:  "IX.D.FTSE.DAILY.IP:5MINUTE",
		Payload: models.MCandle{
			Epic:     "IX.D.FTSE.DAILY.IP",
			Interval: "5MINUTE",
			Time:     models.Known(ts),
			Finished: true,
			Offer: models.Known(models.MPriceBar{
				Open: decimal.NewFromInt(1), High: decimal.NewFromInt(3),
				Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2),
			}),
		},
	})

	srv := NewRestServer(config.NewDefaultConfig(), logger.NewNopLogger(), &stubSource{}, j)
	h := srv.Handler()

	var candles struct {
		Candles []models.MCandleRecord `json:"candles"`
	}
	assert.Equal(t, http.StatusOK, get(t, h, "/rest/journal/candles?epic=IX.D.FTSE.DAILY.IP&interval=5MINUTE", &candles))
	require.Len(t, candles.Candles, 1)
	require.NotNil(t, candles.Candles[0].Offer)
	assert.True(t, candles.Candles[0].Offer.High.Equal(decimal.NewFromInt(3)))

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/rest/journal/candles", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/rest/journal/candles?epic=X&interval=2MINUTE", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/rest/journal/deals?limit=0", nil))

	var deals map[string]any
	assert.Equal(t, http.StatusOK, get(t, h, "/rest/journal/deals", &deals))
	assert.Contains(t, deals, "deals")
}

func TestServeStopsWithContext(t *testing.T) {
	srv := NewRestServer(config.NewDefaultConfig(), logger.NewNopLogger(), &stubSource{status: models.ConnectedWebSocket(false)}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/rest/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
