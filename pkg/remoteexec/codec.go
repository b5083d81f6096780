package remoteexec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc's encoding package and selected per
// call via grpc.CallContentSubtype, standing in for the protoc-generated
// protobuf codec grpc normally expects. Every request/response type in this
// package marshals through encoding/json instead, following the same
// typed-envelope-over-a-transport idiom as the micro-runner's stdio
// protocol, just framed by grpc instead of newline-delimited JSON.
const codecName = "remoteexec-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("remoteexec: unmarshaling %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
