package transports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/gorilla/websocket"
)

// TypeLightstreamer is the registry name of the TLCP websocket transport.
const TypeLightstreamer = "lightstreamer"

// Status strings reported to the listener.
const (
	statusConnecting   = "CONNECTING"
	statusStreaming    = "CONNECTED:WS-STREAMING"
	statusStalled      = "STALLED"
	statusWillRetry    = "DISCONNECTED:WILL-RETRY"
	statusDisconnected = "DISCONNECTED"
)

const (
	defaultHandshake    = 10 * time.Second
	defaultKeepAlive    = 5 * time.Second
	defaultStallTimeout = 2 * time.Second
)

// -----------------------------------------------------------------------------

// LightstreamerClient implements ITransport with TLCP over a Gorilla
// WebSocket. It owns the reconnect loop: a lost session is recreated with
// exponential backoff and every transition is reported as a status string.
type LightstreamerClient struct {
	name   string
	config *models.MStreamingConfig
	logger *logger.Logger
	dialer *websocket.Dialer

	mu        sync.RWMutex
	listener  interfaces.ITransportListener
	conn      *websocket.Conn
	isRunning bool
	sessionID string
	keepAlive time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	writeMu sync.Mutex

	statusMu sync.Mutex
	status   string
	stalled  bool

	pendingMu sync.Mutex
	pending   map[int64]int

	reqID     atomic.Int64
	lastFrame atomic.Int64
}

// -----------------------------------------------------------------------------

// NewLightstreamerClient creates a client for the push server of config.
func NewLightstreamerClient(config *models.MStreamingConfig, logger *logger.Logger, name string) *LightstreamerClient {
	handshake := config.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshake
	}
	return &LightstreamerClient{
		name:   name,
		config: config,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshake,
			Subprotocols:     []string{tlcpSubprotocol},
		},
		status:  statusDisconnected,
		pending: make(map[int64]int),
	}
}

// -----------------------------------------------------------------------------

func init() {
	// Register the transport with the name "lightstreamer" for dynamic creation
	if err := Register(TypeLightstreamer, newLightstreamerTransport); err != nil {
		fmt.Printf("Error registering Lightstreamer transport: %v\n", err)
	}
}

func newLightstreamerTransport(config *models.MStreamingConfig, logger *logger.Logger, name string) (interfaces.ITransport, error) {
	if _, err := sessionURL(config.Endpoint); err != nil {
		return nil, err
	}
	return NewLightstreamerClient(config, logger, name), nil
}

// -----------------------------------------------------------------------------

// GetName returns the client name
func (l *LightstreamerClient) GetName() string {
	return l.name
}

// GetType returns the transport type
func (l *LightstreamerClient) GetType() string {
	return TypeLightstreamer
}

// SetListener installs the callback receiver
func (l *LightstreamerClient) SetListener(listener interfaces.ITransportListener) {
	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()
}

// IsRunning returns true between Connect and Disconnect
func (l *LightstreamerClient) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isRunning
}

// SessionID returns the id of the current server session, if any.
func (l *LightstreamerClient) SessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionID
}

// -----------------------------------------------------------------------------

// Connect starts the session loop in the background. It returns once the
// loop is running; progress is reported through the listener.
func (l *LightstreamerClient) Connect(ctx context.Context) error {
	target, err := sessionURL(l.config.Endpoint)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRunning {
		return nil
	}
	if l.listener == nil {
		return ErrNoListener
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.isRunning = true

	l.wg.Add(1)
	go l.run(runCtx, target)

	l.logger.Info("%s : connecting to %s", l.name, maskEndpoint(l.config.Endpoint))
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect destroys the session, stops reconnecting and reports
// DISCONNECTED once the loop has exited.
func (l *LightstreamerClient) Disconnect() error {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return nil
	}
	l.isRunning = false
	conn := l.conn
	cancel := l.cancel
	l.mu.Unlock()

	if conn != nil {
		if err := l.write(conn, destroyRequest(l.nextReqID())); err != nil {
			l.logger.Debug("%s : destroy request not sent: %v", l.name, err)
		}
		conn.Close()
	}
	cancel()
	l.wg.Wait()

	l.setStatus(statusDisconnected)
	l.logger.Info("%s : disconnected from %s", l.name, maskEndpoint(l.config.Endpoint))
	return nil
}

// -----------------------------------------------------------------------------

// Subscribe sends a subscription request for one item
func (l *LightstreamerClient) Subscribe(subID int, mode models.MSubscriptionMode, item string, fields []string, snapshot bool) error {
	reqID := l.nextReqID()

	l.pendingMu.Lock()
	l.pending[reqID] = subID
	l.pendingMu.Unlock()

	if err := l.send(subscribeRequest(reqID, subID, mode, item, fields, snapshot)); err != nil {
		l.takePending(reqID)
		return err
	}
	return nil
}

// Unsubscribe sends a deletion request for a subscription
func (l *LightstreamerClient) Unsubscribe(subID int) error {
	return l.send(unsubscribeRequest(l.nextReqID(), subID))
}

// -----------------------------------------------------------------------------

// run keeps a session open until the context ends, the server refuses the
// session or the reconnect attempts are exhausted.
func (l *LightstreamerClient) run(ctx context.Context, target string) {
	defer l.wg.Done()

	attempts := 0
	for {
		l.setStatus(statusConnecting)

		established, err := l.session(ctx, target)
		if ctx.Err() != nil || errors.Is(err, errStopped) {
			return
		}
		if established {
			attempts = 0
		}

		var serverErr *ServerError
		if errors.As(err, &serverErr) && serverErr.Fatal() {
			l.logger.Error("%s : session refused: %v", l.name, err)
			l.stop()
			return
		}

		attempts++
		if limit := l.config.MaxReconnectAttempts; limit > 0 && attempts > limit {
			l.logger.Error("%s : giving up after %d attempts: %v", l.name, limit, err)
			l.stop()
			return
		}

		delay := l.backoff(attempts)
		l.logger.Warning("%s : session lost: %v (retry %d in %s)", l.name, err, attempts, delay)
		l.setStatus(statusWillRetry)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stop ends the loop from inside after a terminal failure.
func (l *LightstreamerClient) stop() {
	l.mu.Lock()
	l.isRunning = false
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()
	l.setStatus(statusDisconnected)
}

// backoff returns ReconnectInterval * BackoffMultiplier^(attempt-1), capped
// at MaxReconnectDelay.
func (l *LightstreamerClient) backoff(attempt int) time.Duration {
	base := l.config.ReconnectInterval
	if base <= 0 {
		base = time.Second
	}
	mult := l.config.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(base) * math.Pow(mult, float64(attempt-1)))
	if limit := l.config.MaxReconnectDelay; limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

// -----------------------------------------------------------------------------

// session dials, creates a server session and reads it until it breaks.
// established tells whether CONOK was received.
func (l *LightstreamerClient) session(ctx context.Context, target string) (bool, error) {
	conn, _, err := l.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := l.setConn(conn); err != nil {
		return false, err
	}
	defer l.clearConn()

	l.pendingMu.Lock()
	l.pending = make(map[int64]int)
	l.pendingMu.Unlock()

	backlog, err := l.handshake(conn)
	if err != nil {
		return false, err
	}

	l.statusMu.Lock()
	l.stalled = false
	l.emitLocked(statusStreaming)
	l.statusMu.Unlock()

	l.logger.Info("%s : session %s open (keepalive %s)", l.name, l.SessionID(), l.keepAliveInterval())

	for _, f := range backlog {
		if err := l.handle(conn, f); err != nil {
			return true, err
		}
	}
	return true, l.readLoop(ctx, conn)
}

// handshake sends wsok and create_session and waits for CONOK. Frames that
// arrived in the same message after CONOK are returned for dispatch.
func (l *LightstreamerClient) handshake(conn *websocket.Conn) ([]frame, error) {
	timeout := l.config.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshake
	}
	conn.SetReadDeadline(time.Now().Add(timeout))

	if err := l.write(conn, "wsok"); err != nil {
		return nil, fmt.Errorf("wsok: %w", err)
	}
	keepAlive := l.config.KeepAlive
	if err := l.write(conn, createSessionRequest(l.config, keepAlive.Milliseconds())); err != nil {
		return nil, fmt.Errorf("create_session: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("handshake: %w", err)
		}

		var backlog []frame
		established := false
		for _, line := range splitLines(msg) {
			f, err := parseFrame(line)
			if err != nil {
				l.logger.Warning("%s : %v", l.name, err)
				continue
			}
			if established {
				backlog = append(backlog, f)
				continue
			}

			switch f.Tag {
			case "CONOK":
				l.onConOK(f)
				established = true
			case "CONERR":
				return nil, serverError(f)
			default:
				l.logger.Debug("%s : handshake frame %s", l.name, line)
			}
		}

		if established {
			conn.SetReadDeadline(time.Time{})
			return backlog, nil
		}
	}
}

func (l *LightstreamerClient) onConOK(f frame) {
	ka := l.config.KeepAlive
	if ms, err := strconv.ParseInt(arg(f, 2), 10, 64); err == nil && ms > 0 {
		ka = time.Duration(ms) * time.Millisecond
	}
	l.mu.Lock()
	l.sessionID = arg(f, 0)
	l.keepAlive = ka
	l.mu.Unlock()
}

// -----------------------------------------------------------------------------

// readLoop dispatches frames until the connection breaks. A watchdog
// reports STALLED when nothing arrived for keepalive+StalledTimeout and
// drops the connection after another StalledTimeout.
func (l *LightstreamerClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	l.touch()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.watchdog(ctx, conn, stop)
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		l.touch()
		l.resume()

		for _, line := range splitLines(msg) {
			f, err := parseFrame(line)
			if err != nil {
				l.logger.Warning("%s : %v", l.name, err)
				continue
			}
			if err := l.handle(conn, f); err != nil {
				return err
			}
		}
	}
}

func (l *LightstreamerClient) watchdog(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	grace := l.config.StalledTimeout
	if grace <= 0 {
		grace = defaultStallTimeout
	}
	keepAlive := l.keepAliveInterval()

	tick := grace / 4
	if tick < 5*time.Millisecond {
		tick = 5 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, l.lastFrame.Load()))
			switch {
			case idle > keepAlive+2*grace:
				l.logger.Warning("%s : nothing received for %s, dropping connection", l.name, idle.Round(time.Millisecond))
				conn.Close()
				return
			case idle > keepAlive+grace:
				l.markStalled()
			}
		}
	}
}

// -----------------------------------------------------------------------------

// handle dispatches one notification. A non-nil error ends the session.
func (l *LightstreamerClient) handle(conn *websocket.Conn, f frame) error {
	listener := l.getListener()

	switch f.Tag {
	case "U":
		values, err := decodeValues(f.Args[2])
		if err != nil {
			l.logger.Warning("%s : dropping update of #%s: %v", l.name, arg(f, 0), err)
			return nil
		}
		listener.OnItemUpdate(atoi(arg(f, 0)), atoi(arg(f, 1)), values)

	case "SUBOK", "SUBCMD":
		listener.OnSubscribe(atoi(arg(f, 0)))

	case "UNSUB":
		listener.OnUnsubscribe(atoi(arg(f, 0)))

	case "REQOK":
		if id, err := strconv.ParseInt(arg(f, 0), 10, 64); err == nil {
			l.takePending(id)
		}

	case "REQERR":
		id, _ := strconv.ParseInt(arg(f, 0), 10, 64)
		code, msg := atoi(arg(f, 1)), unescape(arg(f, 2))
		if subID, ok := l.takePending(id); ok {
			listener.OnSubscribeError(subID, code, msg)
			return nil
		}
		l.logger.Warning("%s : request %d refused: %d %s", l.name, id, code, msg)

	case "OV":
		l.logger.Warning("%s : #%s item %s lost %s updates", l.name, arg(f, 0), arg(f, 1), arg(f, 2))

	case "EOS", "CS", "CONF":
		l.logger.Debug("%s : %s #%s", l.name, f.Tag, arg(f, 0))

	case "LOOP":
		l.logger.Info("%s : server requested a rebind", l.name)
		if err := l.write(conn, bindSessionRequest(l.SessionID(), l.config.KeepAlive.Milliseconds())); err != nil {
			return fmt.Errorf("bind_session: %w", err)
		}

	case "CONOK":
		l.onConOK(f)

	case "CONERR", "END", "ERROR":
		return serverError(f)

	case "PROBE", "NOOP", "SYNC", "SERVNAME", "CLIENTIP", "CONS", "PROG", "MSGDONE", "MSGFAIL", "WSOK":

	default:
		l.logger.Debug("%s : ignoring frame %s", l.name, f.Tag)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (l *LightstreamerClient) send(req string) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return l.write(conn, req)
}

func (l *LightstreamerClient) write(conn *websocket.Conn, req string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// setConn publishes conn unless Disconnect already ran.
func (l *LightstreamerClient) setConn(conn *websocket.Conn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.isRunning {
		return errStopped
	}
	l.conn = conn
	return nil
}

func (l *LightstreamerClient) clearConn() {
	l.mu.Lock()
	l.conn = nil
	l.sessionID = ""
	l.mu.Unlock()
}

func (l *LightstreamerClient) getListener() interfaces.ITransportListener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listener
}

func (l *LightstreamerClient) keepAliveInterval() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.keepAlive > 0 {
		return l.keepAlive
	}
	if l.config.KeepAlive > 0 {
		return l.config.KeepAlive
	}
	return defaultKeepAlive
}

func (l *LightstreamerClient) nextReqID() int64 {
	return l.reqID.Add(1)
}

func (l *LightstreamerClient) takePending(reqID int64) (int, bool) {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	subID, ok := l.pending[reqID]
	delete(l.pending, reqID)
	return subID, ok
}

func (l *LightstreamerClient) touch() {
	l.lastFrame.Store(time.Now().UnixNano())
}

// -----------------------------------------------------------------------------

func (l *LightstreamerClient) setStatus(status string) {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	l.emitLocked(status)
}

// emitLocked reports status unless it is the current one; statusMu must be
// held so listeners observe transitions in order.
func (l *LightstreamerClient) emitLocked(status string) {
	if status == l.status {
		return
	}
	l.status = status
	l.logger.Debug("%s : status %s", l.name, status)
	if listener := l.getListener(); listener != nil {
		listener.OnStatusChange(status)
	}
}

func (l *LightstreamerClient) markStalled() {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	if l.stalled {
		return
	}
	l.stalled = true
	l.logger.Warning("%s : stream stalled", l.name)
	l.emitLocked(statusStalled)
}

func (l *LightstreamerClient) resume() {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	if !l.stalled {
		return
	}
	l.stalled = false
	l.logger.Info("%s : stream resumed", l.name)
	l.emitLocked(statusStreaming)
}

// -----------------------------------------------------------------------------

func arg(f frame, i int) string {
	if i < len(f.Args) {
		return f.Args[i]
	}
	return ""
}

func unescape(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}

func serverError(f frame) *ServerError {
	return &ServerError{Op: f.Tag, Code: atoi(arg(f, 0)), Message: unescape(arg(f, 1))}
}
