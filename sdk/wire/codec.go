package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrEmptyFrame  = errors.New("wire: empty frame")
	ErrUnknownKind = errors.New("wire: unknown frame kind")
	ErrShortFrame  = errors.New("wire: frame too short")
	ErrIDWidth     = errors.New("wire: correlation id must be 36 bytes")
)

type callBody struct {
	ID        *string `json:"id"`
	Args      string  `json:"args"`
	RequestID string  `json:"requestId"`
	ClientURL string  `json:"clientUrl"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Encode serializes f. It fails with ErrIDWidth when the correlation id does
// not serialize to exactly IDLen bytes and with ErrUnknownKind for an
// unrecognized kind. Encode is stateless and safe for concurrent use.
func Encode(f Frame) ([]byte, error) {
	if !f.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, byte(f.Kind))
	}
	if len(f.ID) != IDLen {
		return nil, fmt.Errorf("%w: %s id %q has %d bytes", ErrIDWidth, f.Kind, f.ID, len(f.ID))
	}
	switch f.Kind {
	case KindCallRequest:
		// The JSON body would replace invalid bytes and change the width.
		if !utf8.ValidString(f.ID) {
			return nil, fmt.Errorf("%w: %s id %q is not valid UTF-8", ErrIDWidth, f.Kind, f.ID)
		}
		body, err := json.Marshal(callBody{ID: f.Target, Args: f.Args, RequestID: f.ID, ClientURL: f.ClientURL})
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 0, 1+len(body))
		buf = append(buf, byte(f.Kind))
		return append(buf, body...), nil
	case KindResponseStart, KindPushStart:
		buf := make([]byte, 0, 2+IDLen)
		buf = append(buf, byte(f.Kind), f.Status)
		return append(buf, f.ID...), nil
	case KindResponseChunk, KindPushChunk:
		buf := make([]byte, 0, 1+IDLen+len(f.Payload))
		buf = append(buf, byte(f.Kind))
		buf = append(buf, f.ID...)
		return append(buf, f.Payload...), nil
	case KindResponseError:
		body, err := json.Marshal(errorBody{Error: f.Error})
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 0, 1+IDLen+len(body))
		buf = append(buf, byte(f.Kind))
		buf = append(buf, f.ID...)
		return append(buf, body...), nil
	default:
		buf := make([]byte, 0, 1+IDLen)
		buf = append(buf, byte(f.Kind))
		return append(buf, f.ID...), nil
	}
}

// MustEncode is like Encode but panics on failure. Callers use it where the
// id was generated locally and a wrong width is a programming error.
func MustEncode(f Frame) []byte {
	b, err := Encode(f)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses one frame. Chunk payloads alias buf; callers that keep them
// past the lifetime of buf must copy. Decode does not know which ids are in
// flight and never rejects a well-formed frame because of its id value.
func Decode(buf []byte) (Frame, error) {
	if len(buf) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	k := Kind(buf[0])
	if !k.Valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownKind, buf[0])
	}
	if len(buf) < k.minLen() {
		return Frame{}, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortFrame, k, k.minLen(), len(buf))
	}
	switch k {
	case KindCallRequest:
		var body callBody
		if err := json.Unmarshal(buf[1:], &body); err != nil {
			return Frame{}, fmt.Errorf("wire: decode %s body: %w", k, err)
		}
		if len(body.RequestID) != IDLen {
			return Frame{}, fmt.Errorf("%w: %s requestId has %d bytes", ErrIDWidth, k, len(body.RequestID))
		}
		return Frame{Kind: k, ID: body.RequestID, Target: body.ID, Args: body.Args, ClientURL: body.ClientURL}, nil
	case KindResponseStart, KindPushStart:
		return Frame{Kind: k, Status: buf[1], ID: string(buf[2 : 2+IDLen])}, nil
	case KindResponseChunk, KindPushChunk:
		return Frame{Kind: k, ID: string(buf[1 : 1+IDLen]), Payload: buf[1+IDLen:]}, nil
	case KindResponseError:
		var body errorBody
		if rest := buf[1+IDLen:]; len(rest) > 0 {
			if err := json.Unmarshal(rest, &body); err != nil {
				return Frame{}, fmt.Errorf("wire: decode %s body: %w", k, err)
			}
		}
		return Frame{Kind: k, ID: string(buf[1 : 1+IDLen]), Error: body.Error}, nil
	default:
		return Frame{Kind: k, ID: string(buf[1 : 1+IDLen])}, nil
	}
}
