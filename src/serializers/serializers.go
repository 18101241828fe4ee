package serializers

import (
	"fmt"
	"strings"

	"ig-streamer/src/interfaces"
)

// New returns the serializer registered under name (json, bin or proto).
func New(name string) (interfaces.ISerializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return NewJSONSerializer(), nil
	case "bin", "gob":
		return NewBinSerializer(), nil
	case "proto", "protobuf":
		return NewProtoSerializer(), nil
	}
	return nil, fmt.Errorf("unknown serializer %q", name)
}
