// Package rpc carries evaluation traffic over gRPC. Messages travel as
// google.protobuf.Struct on the default proto codec, keyed by the JSON field
// names of the evaluation types.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// RequestIDHeader is the metadata key carrying the evaluation request id.
const RequestIDHeader = "x-request-id"

// Ack acknowledges a unary call.
type Ack struct {
	Accepted  bool   `json:"accepted"`
	RequestID string `json:"request_id,omitempty"`
}

// Full method names.
const (
	evaluatorService = "coach.v1.Evaluator"
	sinkService      = "coach.v1.EvaluationSink"

	SubmitMethod  = "/" + evaluatorService + "/Submit"
	DeliverMethod = "/" + sinkService + "/Deliver"
)

// toStruct encodes v, which must marshal to a JSON object.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", dst, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %T: %w", dst, err)
	}
	return nil
}
