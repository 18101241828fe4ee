package serializers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ig-streamer/src/interfaces"
)

// -----------------------------------------------------------------------------

// JSONSerializer writes events as compact JSON. Decimals are rendered as
// strings by their own marshalers and unset fields as null. HTML characters
// are not escaped so keys such as "A&B" stay readable on the wire.
type JSONSerializer struct{}

// NewJSONSerializer creates a new instance of the JSON serializer.
func NewJSONSerializer() interfaces.ISerializer {
	return &JSONSerializer{}
}

// -----------------------------------------------------------------------------

func (j *JSONSerializer) Marshal(obj any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	// Encode terminates every document with a newline
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (j *JSONSerializer) Unmarshal(data []byte, obj any) error {
	if err := json.Unmarshal(data, obj); err != nil {
		return fmt.Errorf("json unmarshal error: %w", err)
	}
	return nil
}

func (j *JSONSerializer) Name() string        { return "json" }
func (j *JSONSerializer) ContentType() string { return "application/json" }
