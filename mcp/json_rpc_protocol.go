package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnvelopeVersion is the only envelope version the server answers.
const EnvelopeVersion = "2.0"

// Dialect records which envelope field carried the version on a request, so
// the response can be written back in the same shape.
type Dialect int

const (
	// DialectProtocolVersion uses the "protocolVersion" envelope field.
	DialectProtocolVersion Dialect = iota
	// DialectJSONRPC uses the standard JSON-RPC "jsonrpc" envelope field.
	DialectJSONRPC
)

func (d Dialect) field() string {
	if d == DialectJSONRPC {
		return "jsonrpc"
	}
	return "protocolVersion"
}

// Request represents an incoming request or notification.
type Request struct {
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	JSONRPC         string          `json:"jsonrpc,omitempty"`
	ID              json.RawMessage `json:"id,omitempty"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// Dialect reports which envelope field the request used.
func (r *Request) Dialect() Dialect {
	if r.ProtocolVersion == "" && r.JSONRPC != "" {
		return DialectJSONRPC
	}
	return DialectProtocolVersion
}

// Version returns the envelope version in whichever field carried it.
func (r *Request) Version() string {
	if r.Dialect() == DialectJSONRPC {
		return r.JSONRPC
	}
	return r.ProtocolVersion
}

// IsNotification reports whether the request carries no id. An explicit
// "id": null is still a request and gets a null id back.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// ResponseError represents the error object of a response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is written as exactly one of result or error, never both and never
// neither. A nil Result is encoded as "result": null.
type Response struct {
	Dialect Dialect
	ID      json.RawMessage
	Result  interface{}
	Error   *ResponseError
}

// MarshalJSON encodes the envelope field, id and payload in that order.
func (r Response) MarshalJSON() ([]byte, error) {
	id := r.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	var payloadKey string
	var payload []byte
	var err error
	if r.Error != nil {
		payloadKey = "error"
		payload, err = json.Marshal(r.Error)
	} else {
		payloadKey = "result"
		payload, err = json.Marshal(r.Result)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response %s: %w", payloadKey, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{%q:%q,"id":`, r.Dialect.field(), EnvelopeVersion)
	buf.Write(id)
	fmt.Fprintf(&buf, `,%q:`, payloadKey)
	buf.Write(payload)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
