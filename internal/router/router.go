// Package router implements the single path by which a function call
// reaches a provider: handle resolution, function resolution, argument
// validation, a precondition check, and mode gating before dispatch.
//
// The six-step pipeline is deliberately linear and returns on the first
// failing step.
package router

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FEASTorg/anolis-sub001/internal/devregistry"
	"github.com/FEASTorg/anolis-sub001/internal/mathx"
	"github.com/FEASTorg/anolis-sub001/internal/modemgr"
	"github.com/FEASTorg/anolis-sub001/internal/provider"
	"github.com/FEASTorg/anolis-sub001/internal/statecache"
	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/value"
)

var tracer = otel.Tracer("anolis.router")

// GatingPolicy is the runtime-wide policy governing manual calls while the
// mode is AUTO. Providers have no notion of runtime mode, so this is
// configuration the Router owns, not anything discovered over the wire.
type GatingPolicy string

const (
	// GatingBlock rejects manual calls while in AUTO (the default).
	GatingBlock GatingPolicy = "BLOCK"
	// GatingOverride permits manual calls while in AUTO as well.
	GatingOverride GatingPolicy = "OVERRIDE"
)

// Router is the single call-execution entry point shared by the HTTP
// front-end (out of scope here) and the BT CallDevice node.
type Router struct {
	devices *devregistry.Registry
	handles *provider.Registry
	modes   *modemgr.Manager
	cache   *statecache.Cache // optional; nil disables post-call prompt polling

	mu                 sync.RWMutex
	manualGatingPolicy GatingPolicy
}

func New(devices *devregistry.Registry, handles *provider.Registry, modes *modemgr.Manager, cache *statecache.Cache) *Router {
	return &Router{devices: devices, handles: handles, modes: modes, cache: cache, manualGatingPolicy: GatingBlock}
}

// SetGatingPolicy sets the runtime-wide policy for manual calls made while
// the mode is AUTO.
func (r *Router) SetGatingPolicy(policy GatingPolicy) {
	r.mu.Lock()
	r.manualGatingPolicy = policy
	r.mu.Unlock()
}

func (r *Router) gatingPolicy() GatingPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manualGatingPolicy
}

// resolved is the output of the first three validation steps, reused by
// both ValidateCall and ExecuteCall.
type resolved struct {
	key    devregistry.Key
	device devregistry.Device
	fn     devregistry.Function
}

// resolve runs steps 1-3 of the pipeline: parse handle, resolve device,
// resolve function by name.
func (r *Router) resolve(handle, functionName string) (resolved, error) {
	key, err := devregistry.ParseHandle(handle)
	if err != nil {
		return resolved{}, err
	}
	dev, ok := r.devices.Get(key)
	if !ok {
		return resolved{}, statuscode.New(statuscode.NotFound, "router.resolve", "no such device: "+handle)
	}
	fn, ok := dev.Capabilities.FunctionByName(functionName)
	if !ok {
		return resolved{}, statuscode.New(statuscode.NotFound, "router.resolve", "no such function: "+functionName)
	}
	return resolved{key: key, device: dev, fn: fn}, nil
}

// checkArgs runs step 4: every declared arg is type-checked, bound-checked
// (if numeric bounds are declared), and required args must be present.
// Unknown argument names are rejected — the capability set is the sole
// source of truth for what a call may carry.
func checkArgs(fn devregistry.Function, args map[string]value.Value) error {
	declared := make(map[string]devregistry.ArgSpec, len(fn.Args))
	for _, a := range fn.Args {
		declared[a.Name] = a
	}
	for name := range args {
		if _, ok := declared[name]; !ok {
			return statuscode.New(statuscode.InvalidArgument, "router.checkArgs", "unknown argument: "+name)
		}
	}
	for _, spec := range fn.Args {
		v, present := args[spec.Name]
		if !present {
			if spec.Required {
				return statuscode.New(statuscode.InvalidArgument, "router.checkArgs", "missing required argument: "+spec.Name)
			}
			continue
		}
		if v.Kind() != spec.Type {
			return statuscode.New(statuscode.InvalidArgument, "router.checkArgs", "type mismatch for argument: "+spec.Name)
		}
		if spec.Min != nil && spec.Max != nil {
			d, ok := v.ToDouble()
			if !ok || !mathx.Between(d, *spec.Min, *spec.Max) {
				return statuscode.New(statuscode.InvalidArgument, "router.checkArgs", "argument out of bounds: "+spec.Name)
			}
		}
	}
	return nil
}

// checkPrecondition runs step 5: the provider handle backing the target
// device must currently be reachable. Failing fast here, before mode
// gating, gives callers a distinct UNAVAILABLE rather than a gating
// rejection when the real blocker is a dead provider.
func (r *Router) checkPrecondition(key devregistry.Key) error {
	h, ok := r.handles.Get(key.ProviderID)
	if !ok || !h.IsAvailable() {
		return statuscode.New(statuscode.Unavailable, "router.checkPrecondition", "provider unavailable: "+key.ProviderID)
	}
	return nil
}

// checkModeGate runs step 6: the current mode, whether the call is
// automated, and the runtime-wide manual gating policy together determine
// the outcome:
//   - MANUAL: both automated and manual calls are allowed unconditionally.
//   - AUTO: automated calls are always allowed; manual calls are allowed
//     only if the gating policy is OVERRIDE.
//   - IDLE: every call is rejected.
//   - FAULT: only manual calls are allowed, for recovery; automated calls
//     are rejected.
func (r *Router) checkModeGate(isAutomated bool) error {
	switch r.modes.Current() {
	case modemgr.ModeManual:
		return nil
	case modemgr.ModeAuto:
		if isAutomated || r.gatingPolicy() == GatingOverride {
			return nil
		}
		return statuscode.New(statuscode.FailedPrecondition, "router.checkModeGate",
			"manual call blocked in AUTO: manual gating policy is BLOCK")
	case modemgr.ModeFault:
		if !isAutomated {
			return nil
		}
		return statuscode.New(statuscode.FailedPrecondition, "router.checkModeGate",
			"automated call blocked in FAULT")
	default: // IDLE
		return statuscode.New(statuscode.FailedPrecondition, "router.checkModeGate",
			"call blocked in IDLE")
	}
}

// ValidateCall runs the full six-step pipeline without dispatching
// anything: parse handle, resolve device, resolve function, check args,
// check precondition, check mode gate.
func (r *Router) ValidateCall(handle, functionName string, args map[string]value.Value, isAutomated bool) error {
	res, err := r.resolve(handle, functionName)
	if err != nil {
		return err
	}
	if err := checkArgs(res.fn, args); err != nil {
		return err
	}
	if err := r.checkPrecondition(res.key); err != nil {
		return err
	}
	return r.checkModeGate(isAutomated)
}

// ExecuteCall validates the call, dispatches it to the provider, and —
// if a cache was supplied — queues a prompt poll of the affected device
// so fresh state is visible immediately rather than waiting for the next
// scheduled tick.
func (r *Router) ExecuteCall(handle, functionName string, args map[string]value.Value, isAutomated bool) (*value.Value, error) {
	_, span := tracer.Start(context.Background(), "router.execute_call",
		trace.WithAttributes(attribute.String("handle", handle), attribute.String("function_name", functionName)))
	defer span.End()

	res, err := r.resolve(handle, functionName)
	if err != nil {
		return nil, err
	}
	if err := checkArgs(res.fn, args); err != nil {
		return nil, err
	}
	if err := r.checkPrecondition(res.key); err != nil {
		return nil, err
	}
	if err := r.checkModeGate(isAutomated); err != nil {
		return nil, err
	}

	h, _ := r.handles.Get(res.key.ProviderID)
	resp, callErr := h.Call(res.key.DeviceID, res.fn.FunctionID, res.fn.FunctionName, args)
	if callErr != nil {
		return nil, callErr
	}

	if r.cache != nil {
		r.cache.PollNow(res.key)
	}
	return resp.ReturnValue, nil
}
