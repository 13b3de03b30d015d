// Package provider implements the client and handle/registry that talk
// to a single provider subprocess: one request/response outstanding at a
// time per provider, classified failures (transport/protocol/
// application), and a registry of handles grouped by provider id.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// MinOperationTimeout is the floor placed on a provider's per-operation
// timeout.
const MinOperationTimeout = 100 * time.Millisecond

// ErrTransport marks a timeout or transport-level failure: the caller must
// treat the provider as unavailable.
var ErrTransport = errors.New("provider: transport failure")

// Client frames one request/response at a time over a Conn, enforcing a
// per-operation timeout. A single request is outstanding at a time;
// callers serialize through callMu.
type Client struct {
	conn    *wire.Conn
	timeout time.Duration
	tracer  trace.Tracer

	callMu sync.Mutex

	// waiters maps request_id to the channel awaiting that Response; a
	// single reader goroutine owns conn.ReadResponse and fans responses out
	// by request_id, since exec.Cmd pipes expose no read deadline to race
	// against.
	respMu   sync.Mutex
	waiters  map[string]chan wire.Response
	readErr  error
	closedCh chan struct{}
}

// NewClient wraps conn and starts the single background reader. timeout is
// clamped up to MinOperationTimeout.
func NewClient(conn *wire.Conn, timeout time.Duration) *Client {
	if timeout < MinOperationTimeout {
		timeout = MinOperationTimeout
	}
	c := &Client{
		conn:     conn,
		timeout:  timeout,
		tracer:   otel.Tracer("anolis.provider"),
		waiters:  make(map[string]chan wire.Response),
		closedCh: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		resp, err := c.conn.ReadResponse()
		if err != nil {
			c.respMu.Lock()
			c.readErr = err
			waiters := c.waiters
			c.waiters = nil
			c.respMu.Unlock()
			for _, ch := range waiters {
				close(ch)
			}
			close(c.closedCh)
			return
		}
		c.respMu.Lock()
		ch, ok := c.waiters[resp.RequestID]
		if ok {
			delete(c.waiters, resp.RequestID)
		}
		c.respMu.Unlock()
		if ok {
			ch <- resp
		}
		// A response with no matching waiter (arrived after our timeout fired)
		// is dropped; the caller already got ErrTransport.
	}
}

// FailureClass classifies why a call did not return Status OK: transport,
// protocol, or application failure.
type FailureClass int

const (
	FailureNone FailureClass = iota
	FailureTransport
	FailureProtocol
	FailureApplication
)

// CallError is returned by Client.Call when the provider exchange did not
// succeed cleanly.
type CallError struct {
	Class FailureClass
	Code  statuscode.Code
	Err   error
}

func (e *CallError) Error() string { return e.Err.Error() }
func (e *CallError) Unwrap() error { return e.Err }

// Call sends op/payload and waits (bounded by the client's timeout) for the
// matching response. On success it returns the raw response payload. A
// timeout or transport failure returns FailureTransport (the caller — the
// Provider Handle — marks the provider unavailable); its Err is
// ErrTransport on a timeout, otherwise the underlying write or read error.
// A request payload that cannot be encoded returns FailureProtocol; the
// response payload is not decoded here. A non-OK Status.code from the
// provider returns FailureApplication with that code passed through
// unchanged.
func (c *Client) Call(op wire.Operation, payload any) (json.RawMessage, *CallError) {
	reqID := uuid.NewString()
	_, span := c.tracer.Start(context.Background(), "provider."+string(op),
		trace.WithAttributes(attribute.String("request_id", reqID)))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &CallError{Class: FailureProtocol, Code: statuscode.Internal, Err: err}
	}

	ch := make(chan wire.Response, 1)
	c.respMu.Lock()
	if c.waiters == nil {
		readErr := c.readErr
		c.respMu.Unlock()
		if readErr == nil {
			readErr = ErrTransport
		}
		return nil, &CallError{Class: FailureTransport, Code: statuscode.Unavailable, Err: readErr}
	}
	c.waiters[reqID] = ch
	c.respMu.Unlock()

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.conn.WriteRequest(wire.Request{RequestID: reqID, Op: op, Payload: body}); err != nil {
		c.respMu.Lock()
		delete(c.waiters, reqID)
		c.respMu.Unlock()
		return nil, &CallError{Class: FailureTransport, Code: statuscode.Unavailable, Err: err}
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, &CallError{Class: FailureTransport, Code: statuscode.Unavailable, Err: ErrTransport}
		}
		if resp.Status.Code != statuscode.OK {
			return resp.Payload, &CallError{Class: FailureApplication, Code: resp.Status.Code, Err: errors.New(resp.Status.Message)}
		}
		return resp.Payload, nil
	case <-time.After(c.timeout):
		c.respMu.Lock()
		delete(c.waiters, reqID)
		c.respMu.Unlock()
		return nil, &CallError{Class: FailureTransport, Code: statuscode.DeadlineExceeded, Err: ErrTransport}
	}
}

// Closed reports whether the background reader has observed a transport
// failure and torn down all outstanding waiters.
func (c *Client) Closed() <-chan struct{} { return c.closedCh }
