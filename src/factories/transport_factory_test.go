package factories

import (
	"testing"

	"ig-streamer/src/config"
	"ig-streamer/src/logger"
	"ig-streamer/src/models"
	"ig-streamer/src/transports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(transport string) *config.Config {
	cfg := &config.Config{MConfig: &models.MConfig{}}
	cfg.Streaming.Transport = transport
	cfg.Streaming.Endpoint = "https://demo-apd.marketdatasystems.com"
	cfg.Streaming.AccountID = "ABC12"
	return cfg
}

func TestCreateTransport(t *testing.T) {
	f := NewTransportFactory(testConfig(""), logger.NewNopLogger())

	tr, err := f.CreateTransport("test-lightstreamer")
	require.NoError(t, err)
	assert.Equal(t, "test-lightstreamer", tr.GetName())
	assert.Equal(t, transports.TypeLightstreamer, tr.GetType())
	assert.False(t, tr.IsRunning())
}

func TestCreateTransportUnknownType(t *testing.T) {
	f := NewTransportFactory(testConfig("carrier-pigeon"), logger.NewNopLogger())

	_, err := f.CreateTransport("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport type: carrier-pigeon")
	assert.Contains(t, err.Error(), transports.TypeLightstreamer)
}

func TestCreateTransportBadEndpoint(t *testing.T) {
	cfg := testConfig(transports.TypeLightstreamer)
	cfg.Streaming.Endpoint = "ftp://nowhere"
	f := NewTransportFactory(cfg, logger.NewNopLogger())

	_, err := f.CreateTransport("test")
	assert.ErrorContains(t, err, "failed to create transport test")
}
