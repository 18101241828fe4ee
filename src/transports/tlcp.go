package transports

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// TLCP protocol constants.
const (
	tlcpSubprotocol = "TLCP-2.2.0.lightstreamer.com"
	tlcpPath        = "/lightstreamer"
	tlcpCID         = "mgQkwtwdysogQz2BJ4Ji kOj2Bg"
)

// -----------------------------------------------------------------------------

// frame is one server notification line split into its tag and arguments.
type frame struct {
	Tag  string
	Args []string
}

// parseFrame splits a notification line. U lines keep their value list as a
// single trailing argument since it is '|' separated.
func parseFrame(line string) (frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return frame{}, fmt.Errorf("empty frame")
	}

	tag, rest, hasArgs := strings.Cut(line, ",")
	f := frame{Tag: tag}
	if !hasArgs {
		return f, nil
	}

	switch tag {
	case "U":
		f.Args = strings.SplitN(rest, ",", 3)
		if len(f.Args) != 3 {
			return frame{}, fmt.Errorf("malformed update %q", line)
		}
	case "CONERR", "REQERR", "END", "ERROR", "MSGFAIL":
		// the trailing message may contain encoded commas
		n := 2
		if tag == "REQERR" || tag == "MSGFAIL" {
			n = 3
		}
		f.Args = strings.SplitN(rest, ",", n)
	default:
		f.Args = strings.Split(rest, ",")
	}
	return f, nil
}

// splitLines splits a WebSocket message into notification lines.
func splitLines(msg []byte) []string {
	raw := strings.Split(string(msg), "\n")
	out := raw[:0]
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// decodeValues expands the '|' separated value list of an update.
//
//	""   unchanged since the previous update
//	"#"  null
//	"$"  empty string
//	"^N" N consecutive unchanged fields
//	else percent-encoded value
func decodeValues(raw string) ([]models.MRawValue, error) {
	parts := strings.Split(raw, "|")
	out := make([]models.MRawValue, 0, len(parts))

	for _, p := range parts {
		switch {
		case p == "":
			out = append(out, models.Unchanged())
		case p == "#":
			out = append(out, models.Null())
		case p == "$":
			out = append(out, models.Set(""))
		case p[0] == '^':
			n, err := strconv.Atoi(p[1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid unchanged run %q", p)
			}
			for i := 0; i < n; i++ {
				out = append(out, models.Unchanged())
			}
		default:
			v, err := url.PathUnescape(p)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q: %w", p, err)
			}
			out = append(out, models.Set(v))
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// param is one key/value pair of a request body. Kept as a slice so request
// bodies are rendered in a stable order.
type param struct {
	Key   string
	Value string
}

// encodeRequest renders "<name>\r\nk=v&k=v".
func encodeRequest(name string, params []param) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("\r\n")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(encodeParam(p.Value))
	}
	return b.String()
}

func encodeParam(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// -----------------------------------------------------------------------------

func createSessionRequest(cfg *models.MStreamingConfig, keepAliveMillis int64) string {
	params := []param{
		{"LS_cid", tlcpCID},
		{"LS_adapter_set", cfg.AdapterSet},
	}
	if cfg.AccountID != "" {
		params = append(params, param{"LS_user", cfg.AccountID})
	}
	if pw := cfg.Password(); pw != "" {
		params = append(params, param{"LS_password", pw})
	}
	if keepAliveMillis > 0 {
		params = append(params, param{"LS_keepalive_millis", strconv.FormatInt(keepAliveMillis, 10)})
	}
	return encodeRequest("create_session", params)
}

func bindSessionRequest(sessionID string, keepAliveMillis int64) string {
	params := []param{{"LS_session", sessionID}}
	if keepAliveMillis > 0 {
		params = append(params, param{"LS_keepalive_millis", strconv.FormatInt(keepAliveMillis, 10)})
	}
	return encodeRequest("bind_session", params)
}

func subscribeRequest(reqID int64, subID int, mode models.MSubscriptionMode, item string, fields []string, snapshot bool) string {
	return encodeRequest("control", []param{
		{"LS_reqId", strconv.FormatInt(reqID, 10)},
		{"LS_op", "add"},
		{"LS_subId", strconv.Itoa(subID)},
		{"LS_mode", string(mode)},
		{"LS_group", item},
		{"LS_schema", strings.Join(fields, " ")},
		{"LS_snapshot", strconv.FormatBool(snapshot)},
	})
}

func unsubscribeRequest(reqID int64, subID int) string {
	return encodeRequest("control", []param{
		{"LS_reqId", strconv.FormatInt(reqID, 10)},
		{"LS_op", "delete"},
		{"LS_subId", strconv.Itoa(subID)},
	})
}

func destroyRequest(reqID int64) string {
	return encodeRequest("control", []param{
		{"LS_reqId", strconv.FormatInt(reqID, 10)},
		{"LS_op", "destroy"},
	})
}

// -----------------------------------------------------------------------------

// sessionURL turns the configured endpoint into the WebSocket URL of the
// push server.
func sessionURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	u.Path = strings.TrimRight(u.Path, "/") + tlcpPath
	return u.String(), nil
}

// maskEndpoint strips credentials and query from an endpoint for logging.
func maskEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
