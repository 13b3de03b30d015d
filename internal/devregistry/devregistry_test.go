package devregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

type fakeDescriber struct {
	devices []wire.DeviceDescriptor
	descs   map[string]wire.DescribeDeviceResponse
}

func (f fakeDescriber) ListDevices() (wire.ListDevicesResponse, error) {
	return wire.ListDevicesResponse{Devices: f.devices}, nil
}

func (f fakeDescriber) DescribeDevice(deviceID string) (wire.DescribeDeviceResponse, error) {
	return f.descs[deviceID], nil
}

func sim0Describer() fakeDescriber {
	return fakeDescriber{
		devices: []wire.DeviceDescriptor{{DeviceID: "tempctl0", TypeID: "thermostat"}},
		descs: map[string]wire.DescribeDeviceResponse{
			"tempctl0": {
				DeviceID: "tempctl0",
				TypeID:   "thermostat",
				Signals:  []wire.SignalSpec{{SignalID: "temp_c", TypeName: "double"}},
				Functions: []wire.FunctionSpec{{
					FunctionID: "f1", FunctionName: "set_temp",
					Args: []wire.ArgSpec{{Name: "target", TypeName: "double", Required: true, Bounds: &wire.NumericBound{Min: f64(0), Max: f64(100)}}},
				}},
			},
		},
	}
}

func f64(v float64) *float64 { return &v }

func TestParseHandle(t *testing.T) {
	k, err := ParseHandle("sim0/tempctl0")
	require.NoError(t, err)
	require.Equal(t, Key{ProviderID: "sim0", DeviceID: "tempctl0"}, k)

	_, err = ParseHandle("no-slash")
	require.Error(t, err)
	_, err = ParseHandle("/missing-provider")
	require.Error(t, err)
	_, err = ParseHandle("missing-device/")
	require.Error(t, err)
}

func TestDiscoverProviderThenClearThenRediscoverIsIdempotent(t *testing.T) {
	reg := New()
	require.NoError(t, reg.DiscoverProvider("sim0", sim0Describer()))

	before, ok := reg.Get(Key{"sim0", "tempctl0"})
	require.True(t, ok)

	reg.ClearProviderDevices("sim0")
	_, ok = reg.Get(Key{"sim0", "tempctl0"})
	require.False(t, ok)

	require.NoError(t, reg.DiscoverProvider("sim0", sim0Describer()))
	after, ok := reg.Get(Key{"sim0", "tempctl0"})
	require.True(t, ok)

	require.Equal(t, before.Capabilities.SignalsByID, after.Capabilities.SignalsByID)
	require.Equal(t, before.Capabilities.FunctionsByID, after.Capabilities.FunctionsByID)
}

func TestFunctionByName(t *testing.T) {
	reg := New()
	require.NoError(t, reg.DiscoverProvider("sim0", sim0Describer()))
	d, err := reg.GetByHandle("sim0/tempctl0")
	require.NoError(t, err)

	fn, ok := d.Capabilities.FunctionByName("set_temp")
	require.True(t, ok)
	require.Equal(t, "f1", fn.FunctionID)
	require.Len(t, fn.Args, 1)
	require.NotNil(t, fn.Args[0].Max)
	require.Equal(t, 100.0, *fn.Args[0].Max)

	_, ok = d.Capabilities.FunctionByName("no_such_fn")
	require.False(t, ok)
}

func TestGetByHandleNotFound(t *testing.T) {
	reg := New()
	_, err := reg.GetByHandle("sim0/missing")
	require.Error(t, err)
}
