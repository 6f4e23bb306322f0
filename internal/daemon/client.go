package daemon

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// dialTimeout bounds how long a client waits to connect before falling
// back to the in-process path (§4.2 Client fallback).
const dialTimeout = 2 * time.Second

// Client dials the daemon socket and exchanges length-prefixed frames,
// matching responses to requests by id since a connection may reorder
// them (§4.2).
type Client struct {
	conn   net.Conn
	nextID uint64
}

// Dial connects to socketPath. Callers should treat any error as "no
// daemon available" and fall back to the in-process Package Engine
// façade per §4.2's Client fallback contract.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, omgerrors.Internal("failed to dial daemon socket", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) newID() uint64 { return atomic.AddUint64(&c.nextID, 1) }

// call sends one request, blocks for its matching response by id, and
// unmarshals Success.Result into out (or returns the wire error).
//
// The daemon may interleave responses across concurrent requests on the
// same connection, but this client only ever has one request
// outstanding at a time, so reading the very next frame is always the
// matching reply.
func (c *Client) call(ctx context.Context, kind MessageType, payload interface{}, out interface{}) error {
	id := c.newID()

	body, err := json.Marshal(payload)
	if err != nil {
		return omgerrors.Internal("failed to encode request payload", err)
	}

	req := Request{ID: id, Kind: kind, Payload: body}
	if err := WriteFrame(c.conn, req); err != nil {
		return err
	}

	var resp Response
	if err := ReadFrame(c.conn, &resp); err != nil {
		return omgerrors.Internal("failed to read daemon response", err)
	}
	if resp.Error != nil {
		return omgerrors.Internal(resp.Error.Message, nil).WithDetails("code", resp.Error.Code)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return omgerrors.InvalidJSON("daemon response", err)
	}
	return nil
}

// Search issues a Search request.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.call(ctx, MsgSearch, SearchPayload{Query: query, Limit: limit}, &out)
	return out, err
}

// Info issues an Info request.
func (c *Client) Info(ctx context.Context, name string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, MsgInfo, InfoPayload{Package: name}, &out)
	return out, err
}

// Status issues a Status request.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, MsgStatus, struct{}{}, &out)
	return out, err
}

// Ping issues a Ping request, the daemon-liveness probe a CLI uses
// before deciding whether to fall back to the in-process path.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, MsgPing, struct{}{}, nil)
}

// SecurityAudit issues a SecurityAudit request and decodes the result.
func (c *Client) SecurityAudit(ctx context.Context) (SecurityAuditResult, error) {
	var out SecurityAuditResult
	err := c.call(ctx, MsgSecurityAudit, struct{}{}, &out)
	return out, err
}

// Transact issues an execute_transaction() request (§4.1) and waits for
// the daemon to drive it to Committed or Failed.
func (c *Client) Transact(ctx context.Context, p TransactPayload) (TransactResult, error) {
	var out TransactResult
	err := c.call(ctx, MsgTransact, p, &out)
	return out, err
}
