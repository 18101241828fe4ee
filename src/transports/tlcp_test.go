package transports

import (
	"net/url"
	"strings"
	"testing"

	"ig-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValues(t *testing.T) {
	values, err := decodeValues("1.5||#|$|^3|a%7Cb%2C%20c")
	require.NoError(t, err)

	expected := []models.MRawValue{
		models.Set("1.5"),
		models.Unchanged(),
		models.Null(),
		models.Set(""),
		models.Unchanged(),
		models.Unchanged(),
		models.Unchanged(),
		models.Set("a|b, c"),
	}
	assert.Equal(t, expected, values)
}

func TestDecodeValuesErrors(t *testing.T) {
	for _, raw := range []string{"^x", "^0", "bad%zz"} {
		_, err := decodeValues(raw)
		assert.Error(t, err, raw)
	}
}

func TestDecodeValuesSingleEmpty(t *testing.T) {
	values, err := decodeValues("")
	require.NoError(t, err)
	assert.Equal(t, []models.MRawValue{models.Unchanged()}, values)
}

func TestParseFrame(t *testing.T) {
	f, err := parseFrame("U,3,1,10|^2|#\r\n")
	require.NoError(t, err)
	assert.Equal(t, "U", f.Tag)
	assert.Equal(t, []string{"3", "1", "10|^2|#"}, f.Args)

	f, err = parseFrame("REQERR,7,19,item,bad")
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "19", "item,bad"}, f.Args)

	f, err = parseFrame("CONOK,S1,50000,5000,*")
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "50000", "5000", "*"}, f.Args)

	f, err = parseFrame("PROBE")
	require.NoError(t, err)
	assert.Equal(t, "PROBE", f.Tag)
	assert.Empty(t, f.Args)

	_, err = parseFrame("U,1,2")
	assert.Error(t, err)

	_, err = parseFrame("")
	assert.Error(t, err)
}

func TestSplitLines(t *testing.T) {
	lines := splitLines([]byte("SUBOK,1,1,2\r\nU,1,1,a|b\r\n\r\nPROBE"))
	assert.Equal(t, []string{"SUBOK,1,1,2", "U,1,1,a|b", "PROBE"}, lines)
}

func TestSubscribeRequest(t *testing.T) {
	req := subscribeRequest(4, 2, models.ModeMerge, "MARKET:CS.D.EURUSD.CFD.IP", []string{"BID", "OFFER"}, true)

	name, body, ok := strings.Cut(req, "\r\n")
	require.True(t, ok)
	assert.Equal(t, "control", name)
	assert.Contains(t, body, "LS_schema=BID%20OFFER")

	values, err := url.ParseQuery(body)
	require.NoError(t, err)
	assert.Equal(t, "4", values.Get("LS_reqId"))
	assert.Equal(t, "add", values.Get("LS_op"))
	assert.Equal(t, "2", values.Get("LS_subId"))
	assert.Equal(t, "MERGE", values.Get("LS_mode"))
	assert.Equal(t, "MARKET:CS.D.EURUSD.CFD.IP", values.Get("LS_group"))
	assert.Equal(t, "BID OFFER", values.Get("LS_schema"))
	assert.Equal(t, "true", values.Get("LS_snapshot"))
}

func TestCreateSessionRequest(t *testing.T) {
	cfg := &models.MStreamingConfig{
		AdapterSet:    "DEFAULT",
		AccountID:     "ABC12",
		CST:           "c+t",
		SecurityToken: "x&t",
	}
	req := createSessionRequest(cfg, 5000)

	name, body, _ := strings.Cut(req, "\r\n")
	assert.Equal(t, "create_session", name)

	values, err := url.ParseQuery(body)
	require.NoError(t, err)
	assert.Equal(t, "DEFAULT", values.Get("LS_adapter_set"))
	assert.Equal(t, "ABC12", values.Get("LS_user"))
	assert.Equal(t, "CST-c+t|XST-x&t", values.Get("LS_password"))
	assert.Equal(t, "5000", values.Get("LS_keepalive_millis"))
	assert.NotEmpty(t, values.Get("LS_cid"))
}

func TestCreateSessionRequestWithoutLogin(t *testing.T) {
	req := createSessionRequest(&models.MStreamingConfig{AdapterSet: "DEMO"}, 0)
	assert.NotContains(t, req, "LS_user")
	assert.NotContains(t, req, "LS_password")
	assert.NotContains(t, req, "LS_keepalive_millis")
}

func TestSessionURL(t *testing.T) {
	cases := map[string]string{
		"https://demo-apd.marketdatasystems.com":  "wss://demo-apd.marketdatasystems.com/lightstreamer",
		"http://127.0.0.1:8080/":                  "ws://127.0.0.1:8080/lightstreamer",
		"wss://push.example.com/base":             "wss://push.example.com/base/lightstreamer",
		"ws://localhost:9000?token=secret#ignore": "ws://localhost:9000/lightstreamer?token=secret#ignore",
	}
	for in, want := range cases {
		got, err := sessionURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"ftp://host", "https://", "::"} {
		_, err := sessionURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestMaskEndpoint(t *testing.T) {
	assert.Equal(t, "https://push.example.com/ls", maskEndpoint("https://user:pw@push.example.com/ls?token=1"))
}
