package serializers

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"ig-streamer/src/interfaces"
	"ig-streamer/src/models"
)

// Every gob message starts with one frame byte naming its layout.
const (
	frameEvent byte = 'e'
	frameValue byte = 'v'
)

// ErrBinFrame is returned when the data does not start with a known frame or
// the frame does not fit the target.
var ErrBinFrame = errors.New("bin frame")

func init() {
	// payloads travel inside eventFrame.Payload as interface values
	gob.Register(models.MTick{})
	gob.Register(models.MCandle{})
	gob.Register(models.MMarketUpdate{})
	gob.Register(models.MAccountUpdate{})
	gob.Register(models.MDealUpdate{})
}

// eventFrame is the gob layout of a stream event.
type eventFrame struct {
	Type       models.MEventType
	Key        string
	ReceivedAt time.Time
	Payload    any
}

// -----------------------------------------------------------------------------

// BinSerializer implements interfaces.ISerializer with encoding/gob. Stream
// events are written as an event frame; anything else as a value frame.
type BinSerializer struct {
	buffers sync.Pool
}

// -----------------------------------------------------------------------------

// NewBinSerializer creates a new instance of the Gob serializer.
func NewBinSerializer() interfaces.ISerializer {
	return &BinSerializer{
		buffers: sync.Pool{New: func() any { return new(bytes.Buffer) }},
	}
}

// -----------------------------------------------------------------------------

// Marshal gob-encodes obj behind its frame byte.
func (g *BinSerializer) Marshal(obj any) ([]byte, error) {
	buf := g.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer g.buffers.Put(buf)

	var err error
	switch ev := obj.(type) {
	case *models.MStreamEvent:
		err = g.encodeEvent(buf, ev)
	case models.MStreamEvent:
		err = g.encodeEvent(buf, &ev)
	default:
		buf.WriteByte(frameValue)
		err = gob.NewEncoder(buf).Encode(obj)
	}
	if err != nil {
		return nil, fmt.Errorf("gob marshal error: %w", err)
	}

	return bytes.Clone(buf.Bytes()), nil
}

func (g *BinSerializer) encodeEvent(buf *bytes.Buffer, ev *models.MStreamEvent) error {
	if ev.Payload == nil {
		return fmt.Errorf("%s event %s has no payload", ev.Type, ev.Key)
	}
	buf.WriteByte(frameEvent)
	return gob.NewEncoder(buf).Encode(eventFrame{
		Type:       ev.Type,
		Key:        ev.Key,
		ReceivedAt: ev.ReceivedAt,
		Payload:    ev.Payload,
	})
}

// -----------------------------------------------------------------------------

// Unmarshal decodes a frame into obj. An event frame needs a
// *models.MStreamEvent target.
func (g *BinSerializer) Unmarshal(data []byte, obj any) error {
	if len(data) == 0 {
		return fmt.Errorf("gob unmarshal error: %w: empty", ErrBinFrame)
	}
	dec := gob.NewDecoder(bytes.NewReader(data[1:]))

	switch data[0] {
	case frameEvent:
		ev, ok := obj.(*models.MStreamEvent)
		if !ok {
			return fmt.Errorf("gob unmarshal error: %w: event into %T", ErrBinFrame, obj)
		}
		var frame eventFrame
		if err := dec.Decode(&frame); err != nil {
			return fmt.Errorf("gob unmarshal error: %w", err)
		}
		*ev = models.MStreamEvent{Type: frame.Type, Key: frame.Key, ReceivedAt: frame.ReceivedAt, Payload: frame.Payload}

	case frameValue:
		if err := dec.Decode(obj); err != nil {
			return fmt.Errorf("gob unmarshal error: %w", err)
		}

	default:
		return fmt.Errorf("gob unmarshal error: %w: %#x", ErrBinFrame, data[0])
	}
	return nil
}

// -----------------------------------------------------------------------------

func (g *BinSerializer) Name() string        { return "bin" }
func (g *BinSerializer) ContentType() string { return "application/x-gob" }
