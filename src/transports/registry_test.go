package transports

import (
	"testing"

	"ig-streamer/src/logger"
	"ig-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Contains(t, Registered(), TypeLightstreamer)

	err := Register(TypeLightstreamer, newLightstreamerTransport)
	assert.ErrorContains(t, err, "already registered")

	_, err = GetConstructor("smoke-signals")
	assert.ErrorContains(t, err, "unknown transport type: smoke-signals")

	ctor, err := GetConstructor(TypeLightstreamer)
	require.NoError(t, err)

	cfg := &models.MStreamingConfig{Endpoint: "https://demo-apd.marketdatasystems.com", AccountID: "ABC12"}
	tr, err := ctor(cfg, logger.NewNopLogger(), "registry-test")
	require.NoError(t, err)
	assert.Equal(t, TypeLightstreamer, tr.GetType())

	_, err = ctor(&models.MStreamingConfig{Endpoint: "gopher://x"}, logger.NewNopLogger(), "bad")
	assert.Error(t, err)
}
