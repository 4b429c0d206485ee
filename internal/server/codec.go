package server

import (
	"encoding/json"
)

// JSONCodec serializes RPC messages as plain JSON so handlers and clients can
// exchange ordinary Go structs. It is registered under the name "json",
// which maps to the application/json content type of the Connect protocol.
type JSONCodec struct{}

// Name implements connect.Codec.
func (JSONCodec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal implements connect.Codec. An empty body decodes to the zero
// message.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
