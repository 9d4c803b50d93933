// Package wire implements the binary frame protocol spoken between the
// coordinator and its peers over a single WebSocket connection.
//
// Every frame starts with a one byte kind tag. Frames other than
// KindCallRequest carry a fixed width, 36 byte textual correlation id at a
// fixed offset so they can be sliced without a length prefix:
//
//	CALL_REQUEST           tag | JSON {id, args, requestId, clientUrl}
//	RESPONSE_START/PUSH_*  tag | status(1) | id(36)
//	RESPONSE_CHUNK/PUSH_*  tag | id(36) | payload
//	RESPONSE_END/PUSH_END  tag | id(36)
//	RESPONSE_ERROR         tag | id(36) | JSON {error}
package wire

import "fmt"

// IDLen is the serialized width of every correlation id.
const IDLen = 36

// Kind tags a frame on the wire.
type Kind byte

const (
	KindCallRequest   Kind = 1
	KindResponseStart Kind = 2
	KindResponseChunk Kind = 3
	KindResponseEnd   Kind = 4
	KindResponseError Kind = 5
	KindPushStart     Kind = 6
	KindPushChunk     Kind = 7
	KindPushEnd       Kind = 8
)

var kindNames = map[Kind]string{
	KindCallRequest:   "CALL_REQUEST",
	KindResponseStart: "RESPONSE_START",
	KindResponseChunk: "RESPONSE_CHUNK",
	KindResponseEnd:   "RESPONSE_END",
	KindResponseError: "RESPONSE_ERROR",
	KindPushStart:     "PUSH_START",
	KindPushChunk:     "PUSH_CHUNK",
	KindPushEnd:       "PUSH_END",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Valid reports whether k is a known frame kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// minLen is the smallest well-formed buffer for each kind.
func (k Kind) minLen() int {
	switch k {
	case KindCallRequest:
		return 2
	case KindResponseStart, KindPushStart:
		return 2 + IDLen
	default:
		return 1 + IDLen
	}
}

// Frame is one unit on the wire. Which fields are meaningful depends on Kind:
//
//   - KindCallRequest: ID, Target, Args, ClientURL
//   - start kinds: ID, Status
//   - chunk kinds: ID, Payload
//   - end kinds: ID
//   - KindResponseError: ID, Error
type Frame struct {
	Kind    Kind
	ID      string
	Status  uint8
	Payload []byte
	Error   string

	// Target is the remote call target; nil selects the default target.
	Target    *string
	Args      string
	ClientURL string
}

// CallRequest builds a CALL_REQUEST frame.
func CallRequest(id string, target *string, args, clientURL string) Frame {
	return Frame{Kind: KindCallRequest, ID: id, Target: target, Args: args, ClientURL: clientURL}
}

// Start builds a RESPONSE_START or PUSH_START frame.
func Start(push bool, id string, status uint8) Frame {
	k := KindResponseStart
	if push {
		k = KindPushStart
	}
	return Frame{Kind: k, ID: id, Status: status}
}

// Chunk builds a RESPONSE_CHUNK or PUSH_CHUNK frame.
func Chunk(push bool, id string, payload []byte) Frame {
	k := KindResponseChunk
	if push {
		k = KindPushChunk
	}
	return Frame{Kind: k, ID: id, Payload: payload}
}

// End builds a RESPONSE_END or PUSH_END frame.
func End(push bool, id string) Frame {
	k := KindResponseEnd
	if push {
		k = KindPushEnd
	}
	return Frame{Kind: k, ID: id}
}

// ErrorFrame builds a RESPONSE_ERROR frame.
func ErrorFrame(id, message string) Frame {
	return Frame{Kind: KindResponseError, ID: id, Error: message}
}
