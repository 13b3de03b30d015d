package wire

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/value"
)

// pipeRW adapts a pair of io.Pipe ends into the io.ReadWriter Conn wants.
type pipeRW struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeRW) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeRW) Write(b []byte) (int, error) { return p.w.Write(b) }

func newConnPair() (*Conn, *Conn) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	// side A reads from r1, writes to w2; side B reads from r2, writes to w1
	a := NewConn(pipeRW{r: r1, w: w2})
	b := NewConn(pipeRW{r: r2, w: w1})
	return a, b
}

func TestRequestResponseRoundTrip(t *testing.T) {
	client, provider := newConnPair()

	payload, err := json.Marshal(ReadSignalsRequest{DeviceID: "tempctl0", SignalIDs: []string{"temp_c"}})
	require.NoError(t, err)
	req := Request{RequestID: "r1", Op: OpReadSignals, Payload: payload}

	done := make(chan error, 1)
	go func() { done <- client.WriteRequest(req) }()

	got, err := provider.ReadRequest()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, req.RequestID, got.RequestID)
	require.Equal(t, req.Op, got.Op)

	var decoded ReadSignalsRequest
	require.NoError(t, json.Unmarshal(got.Payload, &decoded))
	require.Equal(t, "tempctl0", decoded.DeviceID)

	respPayload, err := json.Marshal(ReadSignalsResponse{
		DeviceID: "tempctl0",
		Values: map[string]SignalReading{
			"temp_c": {Value: value.Double(22.0), Quality: QualityOK},
		},
	})
	require.NoError(t, err)
	resp := Response{RequestID: "r1", Status: Status{Code: statuscode.OK}, Payload: respPayload}

	done2 := make(chan error, 1)
	go func() { done2 <- provider.WriteResponse(resp) }()

	gotResp, err := client.ReadResponse()
	require.NoError(t, err)
	require.NoError(t, <-done2)
	require.Equal(t, statuscode.OK, gotResp.Status.Code)

	var decodedResp ReadSignalsResponse
	require.NoError(t, json.Unmarshal(gotResp.Payload, &decodedResp))
	reading := decodedResp.Values["temp_c"]
	d, ok := reading.Value.AsDouble()
	require.True(t, ok)
	require.Equal(t, 22.0, d)
}

func TestOversizedFrameRejected(t *testing.T) {
	var buf pipeBuf
	c := NewConn(&buf)
	err := writeFrame(&buf, make([]byte, MaxFrameSize+1))
	require.Error(t, err)
	_ = c
}

// pipeBuf is a minimal in-memory ReadWriter for the oversize test.
type pipeBuf struct {
	data []byte
}

func (p *pipeBuf) Read(b []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *pipeBuf) Write(b []byte) (int, error) {
	p.data = append(p.data, b...)
	return len(b), nil
}
