package wire

import "github.com/FEASTorg/anolis-sub001/internal/value"

// HelloResponse is returned by a provider's Hello operation.
type HelloResponse struct {
	ProviderID string `json:"provider_id"`
	Version    string `json:"version"`
}

// DeviceDescriptor is one entry of a ListDevices response.
type DeviceDescriptor struct {
	DeviceID string `json:"device_id"`
	TypeID   string `json:"type_id"`
	Label    string `json:"label,omitempty"`
}

// ListDevicesResponse is the ListDevices payload.
type ListDevicesResponse struct {
	Devices []DeviceDescriptor `json:"devices"`
}

// DescribeDeviceRequest is the DescribeDevice payload.
type DescribeDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// SignalSpec is a capability-set signal description.
type SignalSpec struct {
	SignalID string `json:"signal_id"`
	TypeName string `json:"type"`
	Label    string `json:"label,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// NumericBound is an inclusive [min,max] bound for a numeric ArgSpec
// field.
type NumericBound struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// ArgSpec describes one function argument.
type ArgSpec struct {
	Name     string        `json:"name"`
	TypeName string        `json:"type"`
	Required bool          `json:"required"`
	Bounds   *NumericBound `json:"bounds,omitempty"`
	Unit     string        `json:"unit,omitempty"`
}

// FunctionSpec is a capability-set function description.
type FunctionSpec struct {
	FunctionID   string    `json:"function_id"`
	FunctionName string    `json:"function_name"`
	Args         []ArgSpec `json:"args"`
}

// DescribeDeviceResponse is the DescribeDevice payload.
type DescribeDeviceResponse struct {
	DeviceID  string         `json:"device_id"`
	TypeID    string         `json:"type_id"`
	Label     string         `json:"label,omitempty"`
	Signals   []SignalSpec   `json:"signals"`
	Functions []FunctionSpec `json:"functions"`
}

// ReadSignalsRequest is the ReadSignals payload.
type ReadSignalsRequest struct {
	DeviceID  string   `json:"device_id"`
	SignalIDs []string `json:"signal_ids"`
}

// SignalQuality mirrors the provider-reported quality for one signal
// as stored in the state cache's Reading.Quality.
type SignalQuality string

const (
	QualityOK    SignalQuality = "OK"
	QualityStale SignalQuality = "STALE"
	QualityFault SignalQuality = "FAULT"

	// QualityProviderUnavailable is assigned by the state cache itself
	// (never sent by a provider) when a poll cannot even reach the
	// provider — a distinct signal from STALE, which means the provider
	// answered but omitted or could not refresh this particular signal.
	QualityProviderUnavailable SignalQuality = "PROVIDER_UNAVAILABLE"
)

// SignalReading is one entry of a ReadSignals response.
type SignalReading struct {
	Value   value.Value   `json:"value"`
	Quality SignalQuality `json:"quality"`
}

// ReadSignalsResponse is the ReadSignals payload. Signals requested but
// absent from Values are treated by the state cache as STALE — the
// provider must never invent values for them.
type ReadSignalsResponse struct {
	DeviceID string                   `json:"device_id"`
	Values   map[string]SignalReading `json:"values"`
}

// CallRequest is the Call payload.
type CallRequest struct {
	DeviceID     string                 `json:"device_id"`
	FunctionID   string                 `json:"function_id"`
	FunctionName string                 `json:"function_name"`
	Args         map[string]value.Value `json:"args"`
}

// CallResponse is the Call payload.
type CallResponse struct {
	ReturnValue *value.Value `json:"return_value,omitempty"`
}
