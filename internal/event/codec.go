package event

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// EncodePayload serializes a payload for storage. The kind is stored in its
// own column; only the payload body is encoded here.
func EncodePayload(p Payload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return b, nil
}

// DecodePayload reconstructs a payload from its stored kind and body.
// Unknown kinds are an error: the event set is closed and an unrecognized
// kind means a corrupt or newer-format log.
func DecodePayload(k Kind, data []byte) (Payload, error) {
	ptr, err := payloadFor(k)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", k, err)
	}
	// Store values, not pointers, so payload type switches stay uniform.
	return reflect.ValueOf(ptr).Elem().Interface().(Payload), nil
}
