package statecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FEASTorg/anolis-sub001/internal/devregistry"
	"github.com/FEASTorg/anolis-sub001/internal/events"
	"github.com/FEASTorg/anolis-sub001/internal/provider"
	"github.com/FEASTorg/anolis-sub001/internal/value"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// stubDescriber answers ListDevices/DescribeDevice with a single device
// "d0" carrying one double signal "temp".
type stubDescriber struct{}

func (stubDescriber) ListDevices() (wire.ListDevicesResponse, error) {
	return wire.ListDevicesResponse{Devices: []wire.DeviceDescriptor{{DeviceID: "d0", TypeID: "thermostat"}}}, nil
}

func (stubDescriber) DescribeDevice(string) (wire.DescribeDeviceResponse, error) {
	return wire.DescribeDeviceResponse{
		DeviceID: "d0",
		TypeID:   "thermostat",
		Signals:  []wire.SignalSpec{{SignalID: "temp", TypeName: "double"}},
	}, nil
}

func seedRegistry(t *testing.T) (*devregistry.Registry, devregistry.Key) {
	t.Helper()
	reg := devregistry.New()
	require.NoError(t, reg.DiscoverProvider("p0", stubDescriber{}))
	return reg, devregistry.Key{ProviderID: "p0", DeviceID: "d0"}
}

func TestPollOnceUnknownHandleMarksProviderUnavailable(t *testing.T) {
	reg, key := seedRegistry(t)
	handles := provider.NewRegistry() // no handle registered for "p0"
	em := events.New()

	c := New(reg, handles, em, MinPollInterval, nil)
	c.PollOnce(key)

	r, ok := c.Read(key, "temp")
	require.True(t, ok)
	require.Equal(t, wire.QualityProviderUnavailable, r.Quality)
}

func TestReadAllReturnsSnapshot(t *testing.T) {
	reg, key := seedRegistry(t)
	handles := provider.NewRegistry()
	c := New(reg, handles, nil, MinPollInterval, nil)

	c.PollOnce(key)
	all := c.ReadAll(key)
	require.Len(t, all, 1)
	_, ok := all["temp"]
	require.True(t, ok)
}

func TestPollOnceUnknownKeyIsNoOp(t *testing.T) {
	reg := devregistry.New()
	handles := provider.NewRegistry()
	c := New(reg, handles, nil, MinPollInterval, nil)

	c.PollOnce(devregistry.Key{ProviderID: "x", DeviceID: "y"})
	_, ok := c.Read(devregistry.Key{ProviderID: "x", DeviceID: "y"}, "temp")
	require.False(t, ok)
}

func TestIntervalClampedToMinimum(t *testing.T) {
	reg := devregistry.New()
	handles := provider.NewRegistry()
	c := New(reg, handles, nil, 10*time.Millisecond, nil)
	require.Equal(t, MinPollInterval, c.interval)
}

func TestApplyReadingEmitsSignalUpdateOnChange(t *testing.T) {
	reg, key := seedRegistry(t)
	handles := provider.NewRegistry()
	em := events.New()
	c := New(reg, handles, em, MinPollInterval, nil)

	sub, ok := em.Subscribe()
	require.True(t, ok)

	dc := c.deviceCacheFor(key)
	c.applyReading(dc, key, "temp", value.Double(21.5), wire.QualityOK, time.Now())

	ev := <-sub.Channel()
	require.Equal(t, events.KindSignalUpdate, ev.Kind)
	require.Equal(t, "temp", ev.SignalUpdate.SignalID)
}
