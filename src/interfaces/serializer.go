package interfaces

// -----------------------------------------------------------------------------

// ISerializer encodes stream events for the message bus and the journal.
type ISerializer interface {
	// Name is the configuration name of the encoding (json, bin, proto)
	Name() string

	Marshal(obj any) ([]byte, error)
	Unmarshal(data []byte, obj any) error

	// ContentType is set as the Content-Type header of published messages
	ContentType() string
}
