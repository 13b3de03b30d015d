package bttree

import (
	"encoding/json"
	"strings"

	"github.com/FEASTorg/anolis-sub001/internal/devregistry"
	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/value"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// ReadSignal reads a cached signal value into an output port. Fails if
// the device is unknown or the signal was never cached.
type ReadSignal struct {
	Handle   string
	SignalID string
	OutPort  string
}

func (n *ReadSignal) Tick(bb *Blackboard) (Status, error) {
	if bb.Cache == nil {
		return Failure, statuscode.New(statuscode.MissingBlackboardContext, "ReadSignal", "no state cache wired")
	}
	key, err := devregistry.ParseHandle(n.Handle)
	if err != nil {
		return Failure, err
	}
	reading, ok := bb.Cache.Read(key, n.SignalID)
	if !ok {
		return Failure, nil
	}
	bb.Set(n.OutPort, reading.Value)
	return Success, nil
}

// CheckQuality succeeds only if a cached signal's quality equals Want, the
// gate most trees use before trusting a ReadSignal result.
type CheckQuality struct {
	Handle   string
	SignalID string
	Want     wire.SignalQuality
}

func (n *CheckQuality) Tick(bb *Blackboard) (Status, error) {
	if bb.Cache == nil {
		return Failure, statuscode.New(statuscode.MissingBlackboardContext, "CheckQuality", "no state cache wired")
	}
	key, err := devregistry.ParseHandle(n.Handle)
	if err != nil {
		return Failure, err
	}
	reading, ok := bb.Cache.Read(key, n.SignalID)
	if !ok {
		return Failure, nil
	}
	if reading.Quality != n.Want {
		return Failure, nil
	}
	return Success, nil
}

// CallDevice invokes a device function through the Call Router. Args is a
// JSON-object literal string, optionally prefixed with "json:", whose
// leaves are converted to Values at tick time: a float becomes a double,
// a whole number becomes an int64, and bool/string pass through unchanged.
// Any other leaf type fails the tick. Every call a CallDevice node makes
// is marked automated.
type CallDevice struct {
	Handle       string
	FunctionName string
	Args         string
	OutPort      string // optional; receives the call's return value if set
}

func (n *CallDevice) Tick(bb *Blackboard) (Status, error) {
	if bb.Router == nil {
		return Failure, statuscode.New(statuscode.MissingBlackboardContext, "CallDevice", "no router wired")
	}
	args, err := parseCallArgs(n.Args)
	if err != nil {
		return Failure, err
	}

	rv, err := bb.Router.ExecuteCall(n.Handle, n.FunctionName, args, true)
	if err != nil {
		return Failure, err
	}
	if n.OutPort != "" && rv != nil {
		bb.Set(n.OutPort, *rv)
	}
	return Success, nil
}

// parseCallArgs decodes a CallDevice args literal: an optional "json:"
// prefix is stripped, then the remainder must parse as a JSON object
// whose leaves are float/int/bool/string.
func parseCallArgs(s string) (map[string]value.Value, error) {
	s = strings.TrimPrefix(s, "json:")
	if strings.TrimSpace(s) == "" {
		return map[string]value.Value{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, statuscode.Wrap(statuscode.InvalidArgument, "bttree.parseCallArgs", err)
	}

	args := make(map[string]value.Value, len(raw))
	for name, leaf := range raw {
		v, err := leafToValue(leaf)
		if err != nil {
			return nil, err
		}
		args[name] = v
	}
	return args, nil
}

func leafToValue(leaf any) (value.Value, error) {
	switch t := leaf.(type) {
	case json.Number:
		if strings.ContainsAny(string(t), ".eE") {
			f, err := t.Float64()
			if err != nil {
				return value.Value{}, statuscode.Wrap(statuscode.InvalidArgument, "bttree.leafToValue", err)
			}
			return value.Double(f), nil
		}
		i, err := t.Int64()
		if err != nil {
			return value.Value{}, statuscode.Wrap(statuscode.InvalidArgument, "bttree.leafToValue", err)
		}
		return value.Int64(i), nil
	case bool:
		return value.Bool(t), nil
	case string:
		return value.String(t), nil
	default:
		return value.Value{}, statuscode.New(statuscode.InvalidArgument, "bttree.leafToValue", "unsupported arg leaf type")
	}
}

// GetParameter copies a stored parameter's value into an output port.
// Fails if the parameter was never defined.
type GetParameter struct {
	Name    string
	OutPort string
}

func (n *GetParameter) Tick(bb *Blackboard) (Status, error) {
	if bb.Params == nil {
		return Failure, statuscode.New(statuscode.MissingBlackboardContext, "GetParameter", "no parameter store wired")
	}
	v, ok := bb.Params.Get(n.Name)
	if !ok {
		return Failure, nil
	}
	bb.Set(n.OutPort, v)
	return Success, nil
}
