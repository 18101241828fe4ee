package serializers

import (
	"encoding/json"
	"fmt"

	"ig-streamer/src/interfaces"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// -----------------------------------------------------------------------------

// ProtoSerializer encodes objects as a google.protobuf.Struct so consumers
// without the Go types can still decode them with any protobuf runtime.
// The object goes through its JSON form first; decimals stay strings.
type ProtoSerializer struct{}

// -----------------------------------------------------------------------------

// NewProtoSerializer creates a new instance of the protobuf serializer.
func NewProtoSerializer() interfaces.ISerializer {
	return &ProtoSerializer{}
}

// -----------------------------------------------------------------------------

func (p *ProtoSerializer) Marshal(obj any) ([]byte, error) {
	raw, err := NewJSONSerializer().Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("proto marshal error: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("proto marshal error: object is not a document: %w", err)
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("proto marshal error: %w", err)
	}

	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("proto marshal error: %w", err)
	}
	return data, nil
}

// -----------------------------------------------------------------------------

func (p *ProtoSerializer) Unmarshal(data []byte, obj any) error {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("proto unmarshal error: %w", err)
	}

	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("proto unmarshal error: %w", err)
	}
	if err := json.Unmarshal(raw, obj); err != nil {
		return fmt.Errorf("proto unmarshal error: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (p *ProtoSerializer) Name() string        { return "proto" }
func (p *ProtoSerializer) ContentType() string { return "application/x-protobuf" }
