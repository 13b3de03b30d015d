// Package devregistry implements the device registry: per-provider
// device capability sets, discovered via a provider handle's
// ListDevices/DescribeDevice and cleared/re-registered around a restart.
package devregistry

import (
	"strings"
	"sync"

	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/value"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// Signal is a capability-set signal description.
type Signal struct {
	SignalID string
	Type     value.Kind
	Label    string
	Unit     string
}

// ArgSpec describes one function argument.
type ArgSpec struct {
	Name     string
	Type     value.Kind
	Required bool
	Min, Max *float64 // numeric bound, nil if unbounded
	Unit     string
}

// Function is a capability-set function description, identified by
// (device, function_id, function_name).
type Function struct {
	FunctionID   string
	FunctionName string
	Args         []ArgSpec
}

// Capabilities groups a device's signals and functions, indexed for O(1)
// lookup by id/name.
type Capabilities struct {
	SignalsByID   map[string]Signal
	FunctionsByID map[string]Function
	functionsByName map[string]string // function_name -> function_id
}

// Device is the unique-keyed (provider_id, device_id) capability record.
type Device struct {
	ProviderID   string
	DeviceID     string
	TypeID       string
	Label        string
	Capabilities Capabilities
}

// Key uniquely identifies a device.
type Key struct {
	ProviderID string
	DeviceID   string
}

func (k Key) String() string { return k.ProviderID + "/" + k.DeviceID }

// Registry is the read-mostly device capability store. Mutation happens
// only during discover/clear.
type Registry struct {
	mu      sync.RWMutex
	devices map[Key]Device
}

func New() *Registry {
	return &Registry{devices: make(map[Key]Device)}
}

// ParseHandle splits a "provider_id/device_id" string handle. Factored
// out once so both the call router and the BT custom nodes share it.
func ParseHandle(handle string) (Key, error) {
	i := strings.IndexByte(handle, '/')
	if i <= 0 || i == len(handle)-1 {
		return Key{}, statuscode.New(statuscode.InvalidArgument, "ParseHandle", "handle must be \"provider_id/device_id\": "+handle)
	}
	return Key{ProviderID: handle[:i], DeviceID: handle[i+1:]}, nil
}

type deviceDescriber interface {
	ListDevices() (wire.ListDevicesResponse, error)
	DescribeDevice(deviceID string) (wire.DescribeDeviceResponse, error)
}

// DiscoverProvider calls list_devices then describe_device for each and
// materializes the provider's devices into the registry.
func (r *Registry) DiscoverProvider(providerID string, h deviceDescriber) error {
	list, err := h.ListDevices()
	if err != nil {
		return statuscode.Wrap(statuscode.Unavailable, "DiscoverProvider", err)
	}

	discovered := make(map[Key]Device, len(list.Devices))
	for _, d := range list.Devices {
		desc, err := h.DescribeDevice(d.DeviceID)
		if err != nil {
			return statuscode.Wrap(statuscode.Unavailable, "DiscoverProvider", err)
		}
		discovered[Key{ProviderID: providerID, DeviceID: d.DeviceID}] = deviceFromWire(providerID, desc)
	}

	r.mu.Lock()
	for k, v := range discovered {
		r.devices[k] = v
	}
	r.mu.Unlock()
	return nil
}

func deviceFromWire(providerID string, desc wire.DescribeDeviceResponse) Device {
	signals := make(map[string]Signal, len(desc.Signals))
	for _, s := range desc.Signals {
		kind, _ := value.KindFromString(s.TypeName)
		signals[s.SignalID] = Signal{SignalID: s.SignalID, Type: kind, Label: s.Label, Unit: s.Unit}
	}
	functions := make(map[string]Function, len(desc.Functions))
	byName := make(map[string]string, len(desc.Functions))
	for _, f := range desc.Functions {
		args := make([]ArgSpec, 0, len(f.Args))
		for _, a := range f.Args {
			kind, _ := value.KindFromString(a.TypeName)
			spec := ArgSpec{Name: a.Name, Type: kind, Required: a.Required, Unit: a.Unit}
			if a.Bounds != nil {
				spec.Min, spec.Max = a.Bounds.Min, a.Bounds.Max
			}
			args = append(args, spec)
		}
		functions[f.FunctionID] = Function{FunctionID: f.FunctionID, FunctionName: f.FunctionName, Args: args}
		byName[f.FunctionName] = f.FunctionID
	}
	return Device{
		ProviderID: providerID,
		DeviceID:   desc.DeviceID,
		TypeID:     desc.TypeID,
		Label:      desc.Label,
		Capabilities: Capabilities{
			SignalsByID:     signals,
			FunctionsByID:   functions,
			functionsByName: byName,
		},
	}
}

// ClearProviderDevices drops every device registered under providerID,
// invoked before a restart so discovery is idempotent.
func (r *Registry) ClearProviderDevices(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.devices {
		if k.ProviderID == providerID {
			delete(r.devices, k)
		}
	}
}

// Get returns the device at key, if registered.
func (r *Registry) Get(key Key) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[key]
	return d, ok
}

// GetByHandle parses handle and looks the device up.
func (r *Registry) GetByHandle(handle string) (Device, error) {
	key, err := ParseHandle(handle)
	if err != nil {
		return Device{}, err
	}
	d, ok := r.Get(key)
	if !ok {
		return Device{}, statuscode.New(statuscode.NotFound, "GetByHandle", "no such device: "+handle)
	}
	return d, nil
}

// FunctionByName resolves a function by name within a device's capability
// set, as the call router's validation pipeline requires.
func (c Capabilities) FunctionByName(name string) (Function, bool) {
	id, ok := c.functionsByName[name]
	if !ok {
		return Function{}, false
	}
	f, ok := c.FunctionsByID[id]
	return f, ok
}

// DevicesForProvider returns every device currently registered for
// providerID, used by the Orchestrator to prime polls after a restart.
func (r *Registry) DevicesForProvider(providerID string) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Device
	for k, d := range r.devices {
		if k.ProviderID == providerID {
			out = append(out, d)
		}
	}
	return out
}

// AllKeys returns every registered device key (used by the Orchestrator
// to prime polls at startup and by the State Cache's scheduled poll).
func (r *Registry) AllKeys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.devices))
	for k := range r.devices {
		out = append(out, k)
	}
	return out
}
