// Package gateway is the C8 Session Fan-Out: the WebSocket hub that lets
// dashboard clients subscribe to conversation activity and issue resource
// requests, plus a thin legacy REST facade over the same resources.
package gateway

import "encoding/json"

// inFrame (inbound) and outFrame (outbound) are the wire envelopes for
// WebSocket messages in each direction. A request names a resource and carries an action in its
// payload; a response or error echoes the request's id; an event and a
// connected frame carry no id.
type inFrame struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Resource string          `json:"resource,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type outFrame struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Resource string `json:"resource,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Frame type names, per spec.md §4.8.
const (
	frameRequest   = "request"
	frameResponse  = "response"
	frameError     = "error"
	frameEvent     = "event"
	frameConnected = "connected"
	frameHeartbeat = "heartbeat"
)

// requestPayload is the shape every inbound request frame's payload takes:
// an action name plus whatever arguments that action needs, left raw so
// each resource handler can decode only what it expects.
type requestPayload struct {
	Action string          `json:"action"`
	ID     string          `json:"id,omitempty"`
	Filter json.RawMessage `json:"filter,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// errorPayload is the payload of an error frame.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// eventPayload is the payload of a server-pushed event frame.
type eventPayload struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
