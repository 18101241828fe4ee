package transports

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

// pushServer is a scripted TLCP endpoint. respond returns the lines sent
// back for one client request; nil means the default behaviour.
type pushServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	respond  func(name string, body url.Values) []string
	requests []string
	conns    []*websocket.Conn
	sessions int
}

func newPushServer(t *testing.T) *pushServer {
	s := &pushServer{}
	upgrader := websocket.Upgrader{Subprotocols: []string{tlcpSubprotocol}}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.serve(conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *pushServer) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req := string(msg)
		s.mu.Lock()
		s.requests = append(s.requests, req)
		respond := s.respond
		s.mu.Unlock()

		name, raw, _ := strings.Cut(req, "\r\n")
		body, _ := url.ParseQuery(raw)

		var lines []string
		if respond != nil {
			lines = respond(name, body)
		}
		if lines == nil {
			lines = s.defaults(name, body)
		}
		if len(lines) == 0 {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(strings.Join(lines, "\r\n"))); err != nil {
			return
		}
	}
}

func (s *pushServer) defaults(name string, body url.Values) []string {
	switch {
	case name == "wsok":
		return []string{"WSOK"}
	case name == "create_session":
		s.mu.Lock()
		s.sessions++
		id := "S" + string(rune('0'+s.sessions))
		s.mu.Unlock()
		return []string{"CONOK," + id + ",50000," + body.Get("LS_keepalive_millis") + ",*", "SERVNAME,test"}
	case name == "control" && body.Get("LS_op") == "add":
		return []string{"REQOK," + body.Get("LS_reqId"), "SUBOK," + body.Get("LS_subId") + ",1,2"}
	case name == "control" && body.Get("LS_op") == "delete":
		return []string{"REQOK," + body.Get("LS_reqId"), "UNSUB," + body.Get("LS_subId")}
	}
	return []string{}
}

func (s *pushServer) script(respond func(name string, body url.Values) []string) {
	s.mu.Lock()
	s.respond = respond
	s.mu.Unlock()
}

func (s *pushServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *pushServer) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *pushServer) sent(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.requests {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

type update struct {
	subID  int
	values []models.MRawValue
}

type subError struct {
	subID int
	code  int
	msg   string
}

type recorder struct {
	mu         sync.Mutex
	statuses   []string
	subscribed []int
	unsubbed   []int
	failed     []subError
	updates    []update
}

func (r *recorder) OnStatusChange(status string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
}

func (r *recorder) OnSubscribe(subID int) {
	r.mu.Lock()
	r.subscribed = append(r.subscribed, subID)
	r.mu.Unlock()
}

func (r *recorder) OnSubscribeError(subID int, code int, message string) {
	r.mu.Lock()
	r.failed = append(r.failed, subError{subID, code, message})
	r.mu.Unlock()
}

func (r *recorder) OnUnsubscribe(subID int) {
	r.mu.Lock()
	r.unsubbed = append(r.unsubbed, subID)
	r.mu.Unlock()
}

func (r *recorder) OnItemUpdate(subID int, _ int, values []models.MRawValue) {
	r.mu.Lock()
	r.updates = append(r.updates, update{subID, values})
	r.mu.Unlock()
}

func (r *recorder) history() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *recorder) last() string {
	h := r.history()
	if len(h) == 0 {
		return ""
	}
	return h[len(h)-1]
}

// -----------------------------------------------------------------------------

func testConfig(endpoint string) *models.MStreamingConfig {
	return &models.MStreamingConfig{
		Endpoint:          endpoint,
		AdapterSet:        "DEFAULT",
		AccountID:         "ABC12",
		CST:               "cst",
		SecurityToken:     "xst",
		HandshakeTimeout:  time.Second,
		WriteTimeout:      time.Second,
		KeepAlive:         time.Second,
		StalledTimeout:    time.Second,
		ReconnectInterval: 10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func newTestClient(t *testing.T, cfg *models.MStreamingConfig) (*LightstreamerClient, *recorder) {
	rec := &recorder{}
	client := NewLightstreamerClient(cfg, logger.NewNopLogger(), "ls-test")
	client.SetListener(rec)
	t.Cleanup(func() { client.Disconnect() })
	return client, rec
}

func waitStatus(t *testing.T, rec *recorder, status string) {
	t.Helper()
	require.Eventually(t, func() bool { return rec.last() == status }, 2*time.Second, 5*time.Millisecond,
		"status %s not reached, history %v", status, rec.history())
}

// -----------------------------------------------------------------------------

func TestConnectCreatesSession(t *testing.T) {
	server := newPushServer(t)
	client, rec := newTestClient(t, testConfig(server.srv.URL))

	require.NoError(t, client.Connect(t.Context()))
	waitStatus(t, rec, statusStreaming)

	assert.True(t, client.IsRunning())
	assert.Equal(t, "S1", client.SessionID())
	assert.Equal(t, []string{statusConnecting, statusStreaming}, rec.history())

	created := server.sent("create_session")
	require.Len(t, created, 1)
	assert.Contains(t, created[0], "LS_user=ABC12")
	assert.Contains(t, created[0], "LS_password=CST-cst%7CXST-xst")
	assert.Contains(t, created[0], "LS_adapter_set=DEFAULT")
	assert.Len(t, server.sent("wsok"), 1)
}

func TestConnectRequiresListener(t *testing.T) {
	client := NewLightstreamerClient(testConfig("http://127.0.0.1:1"), logger.NewNopLogger(), "ls-test")
	assert.ErrorIs(t, client.Connect(t.Context()), ErrNoListener)
	assert.False(t, client.IsRunning())
}

func TestConnectRejectsBadEndpoint(t *testing.T) {
	client, _ := newTestClient(t, testConfig("ftp://host"))
	assert.Error(t, client.Connect(t.Context()))
	assert.False(t, client.IsRunning())
}

func TestSubscribeAndUpdates(t *testing.T) {
	server := newPushServer(t)
	server.script(func(name string, body url.Values) []string {
		if name == "control" && body.Get("LS_op") == "add" {
			id := body.Get("LS_subId")
			return []string{
				"REQOK," + body.Get("LS_reqId"),
				"SUBOK," + id + ",1,3",
				"U," + id + ",1,1.1|2.2|#",
				"EOS," + id + ",1",
				"U," + id + ",1,|2.3|$",
			}
		}
		return nil
	})
	client, rec := newTestClient(t, testConfig(server.srv.URL))
	require.NoError(t, client.Connect(t.Context()))
	waitStatus(t, rec, statusStreaming)

	require.NoError(t, client.Subscribe(7, models.ModeMerge, "MARKET:IX.D.FTSE.DAILY.IP", []string{"BID", "OFFER", "MARKET_STATE"}, true))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.updates) == 2
	}, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{7}, rec.subscribed)
	assert.Equal(t, update{7, []models.MRawValue{models.Set("1.1"), models.Set("2.2"), models.Null()}}, rec.updates[0])
	assert.Equal(t, update{7, []models.MRawValue{models.Unchanged(), models.Set("2.3"), models.Set("")}}, rec.updates[1])

	adds := server.sent("control")
	require.Len(t, adds, 1)
	assert.Contains(t, adds[0], "LS_group=MARKET%3AIX.D.FTSE.DAILY.IP")
	assert.Contains(t, adds[0], "LS_snapshot=true")
}

func TestSubscribeRejected(t *testing.T) {
	server := newPushServer(t)
	server.script(func(name string, body url.Values) []string {
		if name == "control" && body.Get("LS_op") == "add" {
			return []string{"REQERR," + body.Get("LS_reqId") + ",21,Bad%20Group%20name"}
		}
		return nil
	})
	client, rec := newTestClient(t, testConfig(server.srv.URL))
	require.NoError(t, client.Connect(t.Context()))
	waitStatus(t, rec, statusStreaming)

	require.NoError(t, client.Subscribe(3, models.ModeMerge, "NOPE", []string{"BID"}, false))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.failed) == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, subError{3, 21, "Bad Group name"}, rec.failed[0])
	assert.Equal(t, statusStreaming, rec.statuses[len(rec.statuses)-1])
}

func TestUnsubscribe(t *testing.T) {
	server := newPushServer(t)
	client, rec := newTestClient(t, testConfig(server.srv.URL))
	require.NoError(t, client.Connect(t.Context()))
	waitStatus(t, rec, statusStreaming)

	require.NoError(t, client.Subscribe(1, models.ModeMerge, "ACCOUNT:ABC12", []string{"PNL"}, true))
	require.NoError(t, client.Unsubscribe(1))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.unsubbed) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, server.sent("control"), 2)
}

func TestRequestsWithoutSession(t *testing.T) {
	client, _ := newTestClient(t, testConfig("http://127.0.0.1:1"))
	assert.ErrorIs(t, client.Subscribe(1, models.ModeMerge, "X", []string{"BID"}, false), ErrNotConnected)
	assert.ErrorIs(t, client.Unsubscribe(1), ErrNotConnected)

	_, pending := client.takePending(1)
	assert.False(t, pending)
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	server := newPushServer(t)
	client, rec := newTestClient(t, testConfig(server.srv.URL))
	require.NoError(t, client.Connect(t.Context()))
	waitStatus(t, rec, statusStreaming)

	server.dropConnections()

	require.Eventually(t, func() bool {
		return server.sessionCount() == 2 && rec.last() == statusStreaming
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{
		statusConnecting, statusStreaming,
		statusWillRetry,
		statusConnecting, statusStreaming,
	}, rec.history())
	assert.Equal(t, "S2", client.SessionID())
}

func TestConnectionRefused(t *testing.T) {
	server := newPushServer(t)
	server.script(func(name string, _ url.Values) []string {
		if name == "create_session" {
			return []string{"CONERR,1,User%2Fpassword%20check%20failed"}
		}
		return nil
	})
	client, rec := newTestClient(t, testConfig(server.srv.URL))
	require.NoError(t, client.Connect(t.Context()))

	waitStatus(t, rec, statusDisconnected)
	assert.Equal(t, []string{statusConnecting, statusDisconnected}, rec.history())
	assert.Eventually(t, func() bool { return !client.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.MaxReconnectAttempts = 2
	client, rec := newTestClient(t, cfg)
	require.NoError(t, client.Connect(t.Context()))

	waitStatus(t, rec, statusDisconnected)
	assert.Equal(t, []string{
		statusConnecting, statusWillRetry,
		statusConnecting, statusWillRetry,
		statusConnecting, statusDisconnected,
	}, rec.history())
	assert.False(t, client.IsRunning())
}

func TestStallThenReconnect(t *testing.T) {
	server := newPushServer(t)
	cfg := testConfig(server.srv.URL)
	cfg.KeepAlive = 30 * time.Millisecond
	cfg.StalledTimeout = 40 * time.Millisecond
	client, rec := newTestClient(t, cfg)
	require.NoError(t, client.Connect(t.Context()))

	require.Eventually(t, func() bool {
		h := rec.history()
		return len(h) >= 4 && h[2] == statusStalled && h[3] == statusWillRetry
	}, 2*time.Second, 5*time.Millisecond, "history %v", rec.history())
	assert.Equal(t, []string{statusConnecting, statusStreaming}, rec.history()[:2])
}

func TestStallRecovers(t *testing.T) {
	server := newPushServer(t)
	server.script(func(name string, body url.Values) []string {
		if name == "control" && body.Get("LS_op") == "add" {
			return []string{"PROBE"}
		}
		return nil
	})
	cfg := testConfig(server.srv.URL)
	cfg.KeepAlive = 30 * time.Millisecond
	cfg.StalledTimeout = 300 * time.Millisecond
	client, rec := newTestClient(t, cfg)
	require.NoError(t, client.Connect(t.Context()))
	waitStatus(t, rec, statusStalled)

	require.NoError(t, client.Subscribe(1, models.ModeMerge, "X", []string{"BID"}, false))
	waitStatus(t, rec, statusStreaming)

	assert.Equal(t, []string{statusConnecting, statusStreaming, statusStalled, statusStreaming}, rec.history())
}

func TestDisconnect(t *testing.T) {
	server := newPushServer(t)
	client, rec := newTestClient(t, testConfig(server.srv.URL))
	require.NoError(t, client.Connect(t.Context()))
	waitStatus(t, rec, statusStreaming)

	require.NoError(t, client.Disconnect())
	assert.False(t, client.IsRunning())
	assert.Equal(t, statusDisconnected, rec.last())
	assert.Empty(t, client.SessionID())

	require.Eventually(t, func() bool {
		for _, r := range server.sent("control") {
			if strings.Contains(r, "LS_op=destroy") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// idempotent
	require.NoError(t, client.Disconnect())
	assert.Equal(t, []string{statusConnecting, statusStreaming, statusDisconnected}, rec.history())
}

func TestBackoff(t *testing.T) {
	client := NewLightstreamerClient(&models.MStreamingConfig{
		ReconnectInterval: 100 * time.Millisecond,
		MaxReconnectDelay: time.Second,
		BackoffMultiplier: 2,
	}, logger.NewNopLogger(), "ls-test")

	assert.Equal(t, 100*time.Millisecond, client.backoff(1))
	assert.Equal(t, 200*time.Millisecond, client.backoff(2))
	assert.Equal(t, 800*time.Millisecond, client.backoff(4))
	assert.Equal(t, time.Second, client.backoff(10))
}
