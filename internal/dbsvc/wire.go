package dbsvc

import (
	"encoding/json"
	"fmt"

	"actorkit/internal/envelope"
)

// EncodeCommand serializes cmd for transport as an envelope Bytes payload.
func EncodeCommand(cmd Command) envelope.Payload {
	b, _ := json.Marshal(cmd)
	return envelope.BytesPayload(b)
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(b []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(b, &cmd); err != nil {
		return nil, fmt.Errorf("dbsvc: decode command: %w", err)
	}
	return &cmd, nil
}

// EncodeResult serializes a Result for transport as an envelope Bytes
// payload.
func EncodeResult(r Result) envelope.Payload {
	b, _ := json.Marshal(r)
	return envelope.BytesPayload(b)
}

// DecodeResult is the inverse of EncodeResult.
func DecodeResult(b []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("dbsvc: decode result: %w", err)
	}
	return &r, nil
}
