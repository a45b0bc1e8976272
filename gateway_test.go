package gateway

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselenergy/tinybms-gateway/pkg/canbus/virtual"
	"github.com/vesselenergy/tinybms-gateway/pkg/config"
	"github.com/vesselenergy/tinybms-gateway/pkg/cvl"
	"github.com/vesselenergy/tinybms-gateway/pkg/serial"
)

// fakePort is a Port that never produces a reply, so every poll cycle
// reports ErrCycleFailed without blocking past the transport's timeout;
// it exists only to let the lifecycle tests exercise Start/Shutdown
// without a physical TinyBMS attached.
type fakePort struct {
	mu     sync.Mutex
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }

func (p *fakePort) Read(b []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg := &config.Configuration{}
	cfg.Serial.RetryCount = 1
	cfg.Serial.RetryBackoff = time.Millisecond
	cfg.CAN.Interface = "virtual"
	cfg.CAN.Channel = t.Name()
	cfg.CAN.PublishIntervalMs = 0
	cfg.CAN.KeepAliveInterval = 5 * time.Millisecond
	cfg.CAN.KeepAliveTimeout = 20 * time.Millisecond
	cfg.CAN.KeepAliveRetry = 5 * time.Millisecond
	cfg.CAN.BusOffBackoff = 10 * time.Millisecond
	cfg.Energy.PersistPath = filepath.Join(t.TempDir(), "energy.cbor")
	cfg.Identity.Manufacturer = "TestCo"
	cfg.Identity.ModuleCount = 1
	cfg.Poll.Interval = 5 * time.Millisecond
	cfg.Poll.SettingsRefreshEvery = 5
	cfg.Poll.ConsecutiveFailureLimit = 5
	cfg.CVL = cvl.DefaultConfig()
	return cfg
}

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	transport := serial.New(&fakePort{}, 5*time.Millisecond, nil)
	bus, err := virtual.NewBus(t.Name())
	require.NoError(t, err)
	return Dependencies{Transport: transport, Bus: bus}
}

func TestGatewayStartShutdownLifecycle(t *testing.T) {
	cfg := testConfig(t)
	gw := New(cfg, testDeps(t), nil)

	ctx := context.Background()
	require.NoError(t, gw.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, gw.Shutdown())
}

func TestGatewayStartTwiceFails(t *testing.T) {
	cfg := testConfig(t)
	gw := New(cfg, testDeps(t), nil)

	require.NoError(t, gw.Start(context.Background()))
	defer gw.Shutdown()

	err := gw.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestGatewayShutdownWithoutStartFails(t *testing.T) {
	cfg := testConfig(t)
	gw := New(cfg, testDeps(t), nil)

	err := gw.Shutdown()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestGatewayModelStaysDisconnectedWithoutAWorkingLink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Poll.ConsecutiveFailureLimit = 1
	gw := New(cfg, testDeps(t), nil)

	require.NoError(t, gw.Start(context.Background()))
	defer gw.Shutdown()

	time.Sleep(30 * time.Millisecond)
	_, ok := gw.Model().Latest()
	assert.False(t, ok)
}

func TestGatewayExposesEventsAndModel(t *testing.T) {
	cfg := testConfig(t)
	gw := New(cfg, testDeps(t), nil)
	assert.NotNil(t, gw.Model())
	assert.NotNil(t, gw.Events())
}
