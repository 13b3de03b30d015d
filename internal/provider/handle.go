package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/value"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// Transport supplies the byte stream a Handle frames the Provider
// Protocol over. The default is a spawned subprocess's stdio; tests
// substitute an io.Pipe-backed fake provider (see provider_test.go),
// keeping the real subprocess and fakes behind one seam.
type Transport interface {
	// Open starts the transport (e.g. spawns the subprocess) and returns a
	// stream to frame requests/responses over.
	Open(ctx context.Context) (io.ReadWriter, error)
	// Close tears the transport down (e.g. signals and waits on the
	// subprocess).
	Close() error
}

// SubprocessTransport spawns command with args and exposes its stdin/stdout
// as a combined stream.
type SubprocessTransport struct {
	Command string
	Args    []string

	cmd *exec.Cmd
}

type cmdStream struct {
	io.Writer
	io.Reader
	cmd *exec.Cmd
}

func (t *SubprocessTransport) Open(ctx context.Context) (io.ReadWriter, error) {
	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	t.cmd = cmd
	return cmdStream{Writer: stdin, Reader: stdout, cmd: cmd}, nil
}

func (t *SubprocessTransport) Close() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	_ = t.cmd.Process.Kill()
	return t.cmd.Wait()
}

// Handle owns one provider's lifetime: spawn, hello, shutdown, and
// exposes an availability flag. Request/response is serialized per
// handle via the embedded Client.
type Handle struct {
	ID      string
	timeout time.Duration
	log     *slog.Logger

	transport Transport

	mu        sync.Mutex // guards client/available during start/shutdown transitions
	client    *Client
	available atomic.Bool

	lastErr        atomic.Value // string
	lastStatusCode atomic.Value // statuscode.Code
}

// NewHandle constructs a Handle bound to transport. timeout is the
// per-operation timeout (min 100ms, enforced by Client).
func NewHandle(id string, transport Transport, timeout time.Duration, log *slog.Logger) *Handle {
	if log == nil {
		log = slog.Default()
	}
	h := &Handle{ID: id, transport: transport, timeout: timeout, log: log}
	h.lastErr.Store("")
	h.lastStatusCode.Store(statuscode.OK)
	return h
}

// Start opens the transport, wires a Client over it, and performs the
// initial Hello handshake. On any failure the handle remains unavailable.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	stream, err := h.transport.Open(ctx)
	if err != nil {
		h.setUnavailable(err, statuscode.Unavailable)
		return err
	}
	h.client = NewClient(wire.NewConn(stream), h.timeout)

	if _, callErr := h.client.Call(wire.OpHello, struct{}{}); callErr != nil {
		h.setUnavailable(callErr.Err, callErr.Code)
		return callErr
	}

	h.available.Store(true)
	h.lastErr.Store("")
	h.lastStatusCode.Store(statuscode.OK)
	return nil
}

func (h *Handle) setUnavailable(err error, code statuscode.Code) {
	h.available.Store(false)
	if err != nil {
		h.lastErr.Store(err.Error())
	}
	h.lastStatusCode.Store(code)
	h.log.Warn("provider unavailable", "provider_id", h.ID, "error", err, "code", code)
}

// IsAvailable reports whether the provider is currently reachable.
func (h *Handle) IsAvailable() bool { return h.available.Load() }

// LastError returns the most recent transport/protocol error message, or
// "" if none.
func (h *Handle) LastError() string { return h.lastErr.Load().(string) }

// LastStatusCode returns the most recent Status.code observed.
func (h *Handle) LastStatusCode() statuscode.Code { return h.lastStatusCode.Load().(statuscode.Code) }

func (h *Handle) dispatch(op wire.Operation, req, resp any) error {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil || !h.IsAvailable() {
		return statuscode.New(statuscode.Unavailable, string(op), "provider not started or unavailable")
	}

	raw, callErr := client.Call(op, req)
	if callErr != nil {
		switch callErr.Class {
		case FailureTransport:
			h.setUnavailable(callErr.Err, callErr.Code)
		default:
			h.lastStatusCode.Store(callErr.Code)
			if callErr.Err != nil {
				h.lastErr.Store(callErr.Err.Error())
			}
		}
		return callErr
	}
	h.lastStatusCode.Store(statuscode.OK)
	if resp == nil {
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return statuscode.Wrap(statuscode.Internal, string(op), err)
	}
	return nil
}

func (h *Handle) ListDevices() (wire.ListDevicesResponse, error) {
	var resp wire.ListDevicesResponse
	err := h.dispatch(wire.OpListDevices, struct{}{}, &resp)
	return resp, err
}

func (h *Handle) DescribeDevice(deviceID string) (wire.DescribeDeviceResponse, error) {
	var resp wire.DescribeDeviceResponse
	err := h.dispatch(wire.OpDescribeDevice, wire.DescribeDeviceRequest{DeviceID: deviceID}, &resp)
	return resp, err
}

func (h *Handle) ReadSignals(deviceID string, signalIDs []string) (wire.ReadSignalsResponse, error) {
	var resp wire.ReadSignalsResponse
	err := h.dispatch(wire.OpReadSignals, wire.ReadSignalsRequest{DeviceID: deviceID, SignalIDs: signalIDs}, &resp)
	return resp, err
}

func (h *Handle) Call(deviceID, functionID, functionName string, args map[string]value.Value) (wire.CallResponse, error) {
	req := wire.CallRequest{DeviceID: deviceID, FunctionID: functionID, FunctionName: functionName, Args: args}
	var resp wire.CallResponse
	callErr := h.dispatch(wire.OpCall, req, &resp)
	return resp, callErr
}

// Shutdown gracefully tears the provider down.
func (h *Handle) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available.Store(false)
	if h.transport != nil {
		return h.transport.Close()
	}
	return nil
}

func (h *Handle) String() string { return fmt.Sprintf("provider(%s)", h.ID) }
