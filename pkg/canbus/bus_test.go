package canbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
	_ "github.com/vesselenergy/tinybms-gateway/pkg/canbus/virtual"
)

func TestNewBusRejectsUnregisteredInterfaceType(t *testing.T) {
	_, err := canbus.NewBus("does-not-exist", "chan0")
	assert.Error(t, err)
}

func TestNewBusResolvesRegisteredVirtualBackend(t *testing.T) {
	bus, err := canbus.NewBus("virtual", "bus-test-resolve")
	require.NoError(t, err)
	require.NoError(t, bus.Connect())
	defer bus.Disconnect()

	assert.NoError(t, bus.Send(canbus.Frame{ID: 0x100, DLC: 1}))
}
