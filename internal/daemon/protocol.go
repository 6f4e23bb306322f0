// Package daemon implements the Daemon & IPC layer (§4.2): a
// length-prefixed request/response protocol over a Unix domain socket,
// with request batching, bounded concurrency, and a read-through cache
// of search/info/suggest results.
package daemon

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// MessageType tags a Request/Response envelope's Kind field so the
// dispatcher can type-switch on outer wire frames (§4.2: "Body is a
// compact self-describing binary encoding").
type MessageType string

const (
	MsgSearch         MessageType = "search"
	MsgInfo           MessageType = "info"
	MsgStatus         MessageType = "status"
	MsgExplicit       MessageType = "explicit"
	MsgExplicitCount  MessageType = "explicit_count"
	MsgSecurityAudit  MessageType = "security_audit"
	MsgPing           MessageType = "ping"
	MsgCacheStats     MessageType = "cache_stats"
	MsgCacheClear     MessageType = "cache_clear"
	MsgMetrics        MessageType = "metrics"
	MsgSuggest        MessageType = "suggest"
	MsgBatch          MessageType = "batch"
	MsgTransact       MessageType = "transact"
)

// Request is the envelope every client frame carries. Payload is kept
// raw so the dispatcher can decode it against the concrete type named
// by Kind, mirroring a self-describing wire format without a codegen
// step.
type Request struct {
	ID      uint64          `json:"id"`
	Kind    MessageType     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SearchPayload/InfoPayload/SuggestPayload are the only request kinds
// that carry parameters; the rest (Status, Explicit, Ping, ...) are
// bare.
type SearchPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type InfoPayload struct {
	Package string `json:"package"`
}

type SuggestPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// TransactOp is the wire form of pkgdb.TransactionOp: Kind travels as a
// string ("add"/"remove"/"sysupgrade") rather than the adapter's internal
// int enum, so the frame stays self-describing without a shared codegen
// step between client and daemon.
type TransactOp struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
}

// TransactPayload carries one execute_transaction() call (§4.1): an
// ordered op list plus the transaction-wide flags from §3.
type TransactPayload struct {
	Ops      []TransactOp `json:"ops"`
	Needed   bool         `json:"needed,omitempty"`
	Recurse  bool         `json:"recurse,omitempty"`
	Unneeded bool         `json:"unneeded,omitempty"`
	NoDeps   bool         `json:"no_deps,omitempty"`
}

// TransactResult is the outcome the daemon returns once a transaction
// reaches Committed or Failed: the final state plus every progress event
// emitted along the way, since the synchronous request/response wire
// protocol has no streaming frame type (§9 Open Question: progress is
// delivered as one batch on completion, not incrementally).
type TransactResult struct {
	State    string                `json:"state"`
	Progress []pkgdb.ProgressEvent `json:"progress"`
}

// BatchPayload fans out a list of sub-requests (§4.2: "concurrency cap
// of 16"). Sub-requests are evaluated independently; see BatchResult
// for the partial-success-with-per-item-status decision (SPEC_FULL.md
// Open Question §9(a)).
type BatchPayload struct {
	Requests []Request `json:"requests"`
}

// ErrorCode is the stable numeric error enumeration the wire protocol
// carries (§4.2: "Error codes are a stable enumeration (numeric)").
type ErrorCode uint32

const (
	ErrCodeUnknown             ErrorCode = 0
	ErrCodePackageNotFound     ErrorCode = 1
	ErrCodeDatabaseUnavailable ErrorCode = 2
	ErrCodePolicyViolation     ErrorCode = 3
	ErrCodeTransactionFailed   ErrorCode = 4
	ErrCodeBusy                ErrorCode = 5
	ErrCodeDependencyConflict  ErrorCode = 6
	ErrCodeSecurityViolation   ErrorCode = 7
	ErrCodeNetwork             ErrorCode = 8
	ErrCodeIntegrity           ErrorCode = 9
	ErrCodePermissionDenied    ErrorCode = 10
	ErrCodeInvalidRequest      ErrorCode = 11
	ErrCodeTimeout             ErrorCode = 12
	ErrCodeInternal            ErrorCode = 13
)

// codeForError maps the pkg/errors taxonomy onto the stable wire
// enumeration (SPEC_FULL.md's "daemon error codes (§4.2) are a stable
// mapping from this taxonomy to the wire enum").
func codeForError(err error) ErrorCode {
	switch {
	case omgerrors.Is(err, omgerrors.CodePackageNotFound):
		return ErrCodePackageNotFound
	case omgerrors.Is(err, omgerrors.CodeDatabaseUninit):
		return ErrCodeDatabaseUnavailable
	case omgerrors.Is(err, omgerrors.CodePolicyViolation):
		return ErrCodePolicyViolation
	case omgerrors.Is(err, omgerrors.CodeTransactionFailed):
		return ErrCodeTransactionFailed
	case omgerrors.Is(err, omgerrors.CodeTransactionBusy), omgerrors.Is(err, omgerrors.CodeDatabaseLocked):
		return ErrCodeBusy
	case omgerrors.Is(err, omgerrors.CodeDependencyConflict):
		return ErrCodeDependencyConflict
	case omgerrors.Is(err, omgerrors.CodeSignatureInvalid), omgerrors.Is(err, omgerrors.CodeProvenanceMissing):
		return ErrCodeSecurityViolation
	case omgerrors.Is(err, omgerrors.CodeNetworkTimeout):
		return ErrCodeTimeout
	case omgerrors.Is(err, omgerrors.CodeNetworkUnreachable):
		return ErrCodeNetwork
	case omgerrors.Is(err, omgerrors.CodeAuditChainBroken), omgerrors.Is(err, omgerrors.CodeHashMismatch):
		return ErrCodeIntegrity
	case omgerrors.Is(err, omgerrors.CodePrivilegeRequired):
		return ErrCodePermissionDenied
	default:
		return ErrCodeInternal
	}
}

// Response is the envelope every server frame carries: exactly one of
// Result or Error is populated.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// WireError is the §4.2 `Error{id, code, message}` shape.
type WireError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// successResponse marshals result into a Success envelope.
func successResponse(id uint64, result interface{}) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, omgerrors.Internal("failed to marshal response", err))
	}
	return Response{ID: id, Result: data}
}

// errorResponse maps err onto the stable wire error shape.
func errorResponse(id uint64, err error) Response {
	return Response{ID: id, Error: &WireError{Code: codeForError(err), Message: err.Error()}}
}

// BatchResult is the Open-Question-(a) partial-success envelope: the
// outer Response is always Success unless the batch itself could not
// be dispatched (auth gate, malformed frame); each sub-request's own
// outcome travels in ItemResult.
type BatchResult struct {
	Items []ItemResult `json:"items"`
}

// ItemResult carries one batched sub-request's own success/failure,
// keyed by the sub-request's id so a client can correlate out-of-order
// completions.
type ItemResult struct {
	ID     uint64          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// maxFrameLength guards against a corrupt or hostile length prefix
// requesting an unbounded allocation.
const maxFrameLength = 16 << 20 // 16 MiB

// WriteFrame writes a 4-byte big-endian length prefix followed by the
// JSON-encoded body (§4.2: "4-byte big-endian length, then a binary-
// serialized message body").
func WriteFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return omgerrors.Internal("failed to encode frame", err)
	}
	if len(body) > maxFrameLength {
		return omgerrors.Internal("frame exceeds maximum length", nil)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return omgerrors.Internal("failed to write frame header", err)
	}
	if _, err := w.Write(body); err != nil {
		return omgerrors.Internal("failed to write frame body", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and unmarshals it into v.
func ReadFrame(r io.Reader, v interface{}) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameLength {
		return omgerrors.Internal(fmt.Sprintf("frame length %d exceeds maximum", length), nil)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return omgerrors.Internal("failed to read frame body", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return omgerrors.InvalidJSON("frame body", err)
	}
	return nil
}
