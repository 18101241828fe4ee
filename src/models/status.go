package models

import (
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------

// MStatusKind is the top level state of the streaming connection.
type MStatusKind int

const (
	StatusDisconnected MStatusKind = iota
	StatusConnecting
	StatusConnected
	StatusStalled
	StatusDisconnecting
)

// -----------------------------------------------------------------------------

// MTransportKind tells how a connected session is being served.
type MTransportKind int

const (
	TransportNone MTransportKind = iota
	TransportSensing
	TransportWebSocket
	TransportHTTP
)

// -----------------------------------------------------------------------------

// MConnectionStatus is the single source of truth for the transport state.
// Values are built through the constructors below so that fields which do not
// apply to a kind are always zero, which keeps == a value comparison.
type MConnectionStatus struct {
	Kind      MStatusKind
	Retrying  bool           // Disconnected only
	Transport MTransportKind // Connected only
	Polling   bool           // Connected over WebSocket or HTTP only
}

// -----------------------------------------------------------------------------

// Disconnected returns the disconnected status. When retrying is true the
// transport is reconnecting on its own.
func Disconnected(retrying bool) MConnectionStatus {
	return MConnectionStatus{Kind: StatusDisconnected, Retrying: retrying}
}

// Connecting returns the connecting status.
func Connecting() MConnectionStatus {
	return MConnectionStatus{Kind: StatusConnecting}
}

// ConnectedSensing returns the status reported while the transport probes
// whether streaming is possible.
func ConnectedSensing() MConnectionStatus {
	return MConnectionStatus{Kind: StatusConnected, Transport: TransportSensing}
}

// ConnectedWebSocket returns the connected status over WebSocket.
func ConnectedWebSocket(polling bool) MConnectionStatus {
	return MConnectionStatus{Kind: StatusConnected, Transport: TransportWebSocket, Polling: polling}
}

// ConnectedHTTP returns the connected status over HTTP.
func ConnectedHTTP(polling bool) MConnectionStatus {
	return MConnectionStatus{Kind: StatusConnected, Transport: TransportHTTP, Polling: polling}
}

// Stalled returns the stalled status.
func Stalled() MConnectionStatus {
	return MConnectionStatus{Kind: StatusStalled}
}

// Disconnecting returns the local transitional status used while a
// disconnect request is in flight.
func Disconnecting() MConnectionStatus {
	return MConnectionStatus{Kind: StatusDisconnecting}
}

// -----------------------------------------------------------------------------

// IsConnected reports whether the status is any Connected variant.
func (s MConnectionStatus) IsConnected() bool {
	return s.Kind == StatusConnected
}

// IsDisconnected reports whether the status is Disconnected, retrying or not.
func (s MConnectionStatus) IsDisconnected() bool {
	return s.Kind == StatusDisconnected
}

// IsRetrying reports whether the transport is reconnecting on its own.
func (s MConnectionStatus) IsRetrying() bool {
	return s.Kind == StatusDisconnected && s.Retrying
}

// IsIdle reports whether the status is the terminal Disconnected(false).
func (s MConnectionStatus) IsIdle() bool {
	return s.Kind == StatusDisconnected && !s.Retrying
}

// -----------------------------------------------------------------------------

// String renders the status with the transport's vocabulary.
func (s MConnectionStatus) String() string {
	switch s.Kind {
	case StatusConnecting:
		return "CONNECTING"
	case StatusStalled:
		return "STALLED"
	case StatusDisconnecting:
		return "DISCONNECTING"
	case StatusDisconnected:
		if s.Retrying {
			return "DISCONNECTED:WILL-RETRY"
		}
		return "DISCONNECTED"
	case StatusConnected:
		switch s.Transport {
		case TransportSensing:
			return "CONNECTED:STREAM-SENSING"
		case TransportWebSocket:
			if s.Polling {
				return "CONNECTED:WS-POLLING"
			}
			return "CONNECTED:WS-STREAMING"
		case TransportHTTP:
			if s.Polling {
				return "CONNECTED:HTTP-POLLING"
			}
			return "CONNECTED:HTTP-STREAMING"
		}
		return "CONNECTED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s.Kind))
}

// -----------------------------------------------------------------------------

// ParseConnectionStatus maps a transport status string to its typed value.
func ParseConnectionStatus(raw string) (MConnectionStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CONNECTING":
		return Connecting(), nil
	case "CONNECTED:STREAM-SENSING":
		return ConnectedSensing(), nil
	case "CONNECTED:WS-STREAMING":
		return ConnectedWebSocket(false), nil
	case "CONNECTED:WS-POLLING":
		return ConnectedWebSocket(true), nil
	case "CONNECTED:HTTP-STREAMING":
		return ConnectedHTTP(false), nil
	case "CONNECTED:HTTP-POLLING":
		return ConnectedHTTP(true), nil
	case "STALLED":
		return Stalled(), nil
	case "DISCONNECTED:WILL-RETRY", "DISCONNECTED:TRYING-RECOVERY":
		return Disconnected(true), nil
	case "DISCONNECTED":
		return Disconnected(false), nil
	case "DISCONNECTING":
		return Disconnecting(), nil
	}
	return MConnectionStatus{}, fmt.Errorf("unknown connection status %q", raw)
}
