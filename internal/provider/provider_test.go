package provider

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/value"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// pipeRW pairs up an io.Pipe so a Conn can be framed over it in tests
// without spawning a real subprocess.
type pipeRW struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeRW) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeRW) Write(b []byte) (int, error) { return p.w.Write(b) }

// fakeTransport is a Transport backed by an in-memory pipe with a
// scripted provider loop on the other end, standing in for a real
// subprocess in tests.
type fakeTransport struct {
	serve func(conn *wire.Conn)
	pr    *io.PipeReader
	pw    *io.PipeWriter
}

func newFakeTransport(serve func(conn *wire.Conn)) *fakeTransport {
	return &fakeTransport{serve: serve}
}

func (t *fakeTransport) Open(ctx context.Context) (io.ReadWriter, error) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	clientSide := pipeRW{r: r1, w: w2}
	providerSide := pipeRW{r: r2, w: w1}
	go t.serve(wire.NewConn(providerSide))
	return clientSide, nil
}

func (t *fakeTransport) Close() error { return nil }

// echoHelloProvider answers Hello OK and ListDevices with one device.
func echoHelloProvider(conn *wire.Conn) {
	for {
		req, err := conn.ReadRequest()
		if err != nil {
			return
		}
		switch req.Op {
		case wire.OpHello:
			_ = conn.WriteResponse(wire.Response{RequestID: req.RequestID, Status: wire.Status{Code: statuscode.OK}})
		case wire.OpListDevices:
			payload, _ := json.Marshal(wire.ListDevicesResponse{Devices: []wire.DeviceDescriptor{
				{DeviceID: "tempctl0", TypeID: "thermostat"},
			}})
			_ = conn.WriteResponse(wire.Response{RequestID: req.RequestID, Status: wire.Status{Code: statuscode.OK}, Payload: payload})
		case wire.OpCall:
			var callReq wire.CallRequest
			_ = json.Unmarshal(req.Payload, &callReq)
			rv := value.Double(30.0)
			payload, _ := json.Marshal(wire.CallResponse{ReturnValue: &rv})
			_ = conn.WriteResponse(wire.Response{RequestID: req.RequestID, Status: wire.Status{Code: statuscode.OK}, Payload: payload})
		default:
			_ = conn.WriteResponse(wire.Response{RequestID: req.RequestID, Status: wire.Status{Code: statuscode.NotFound}})
		}
	}
}

func TestHandleStartAndListDevices(t *testing.T) {
	h := NewHandle("sim0", newFakeTransport(echoHelloProvider), 200*time.Millisecond, nil)
	require.NoError(t, h.Start(context.Background()))
	require.True(t, h.IsAvailable())

	resp, err := h.ListDevices()
	require.NoError(t, err)
	require.Len(t, resp.Devices, 1)
	require.Equal(t, "tempctl0", resp.Devices[0].DeviceID)
}

func TestHandleCall(t *testing.T) {
	h := NewHandle("sim0", newFakeTransport(echoHelloProvider), 200*time.Millisecond, nil)
	require.NoError(t, h.Start(context.Background()))

	resp, err := h.Call("tempctl0", "f1", "set_temp", map[string]value.Value{"target": value.Double(30.0)})
	require.NoError(t, err)
	require.NotNil(t, resp.ReturnValue)
	d, ok := resp.ReturnValue.AsDouble()
	require.True(t, ok)
	require.Equal(t, 30.0, d)
}

// neverRespondProvider reads requests but never answers, to exercise the
// per-operation timeout path.
func neverRespondProvider(conn *wire.Conn) {
	for {
		if _, err := conn.ReadRequest(); err != nil {
			return
		}
	}
}

func TestHandleTimeoutMarksUnavailable(t *testing.T) {
	h := NewHandle("sim0", newFakeTransport(neverRespondProvider), MinOperationTimeout, nil)
	err := h.Start(context.Background())
	require.Error(t, err)
	require.False(t, h.IsAvailable())
}

func TestRegistryAddRemoveGet(t *testing.T) {
	reg := NewRegistry()
	h := NewHandle("sim0", newFakeTransport(echoHelloProvider), 200*time.Millisecond, nil)
	reg.Add(h)

	got, ok := reg.Get("sim0")
	require.True(t, ok)
	require.Same(t, h, got)

	reg.Remove("sim0")
	_, ok = reg.Get("sim0")
	require.False(t, ok)
}
