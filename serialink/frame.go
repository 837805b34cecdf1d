package serialink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/notorious-go/hwop/gate"
)

// Start is the byte every frame begins with.
const Start = 0xA5

// headerSize is the size of a frame without its payload: start, type, id,
// kind and payload length.
const headerSize = 1 + 1 + 8 + 1 + 2

// MaxPayload is the largest payload a frame can carry.
const MaxPayload = math.MaxUint16

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("serialink: payload too large")

// Type is the type of a frame.
type Type uint8

const (
	// Request frames are sent by the host to start an operation.
	Request Type = iota + 1
	// Complete frames are sent by the device when an operation completes.
	// The payload is the result.
	Complete
	// Failure frames are sent by the device when an operation fails. The
	// payload is an error code byte followed by a message.
	Failure
)

func (t Type) String() string {
	switch t {
	case Request:
		return "request"
	case Complete:
		return "complete"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Frame is one message on the link.
//
// On the wire a frame is the Start byte, the type, the id as a little-endian
// uint64, the kind, the payload length as a little-endian uint16 and the
// payload.
type Frame struct {
	Type    Type
	ID      uint64
	Kind    gate.Kind
	Payload []byte
}

// AppendBinary appends the wire encoding of f to b.
func (f Frame) AppendBinary(b []byte) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return b, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	b = append(b, Start, byte(f.Type))
	b = binary.LittleEndian.AppendUint64(b, f.ID)
	b = append(b, byte(f.Kind))
	b = binary.LittleEndian.AppendUint16(b, uint16(len(f.Payload)))
	return append(b, f.Payload...), nil
}

// MarshalBinary returns the wire encoding of f.
func (f Frame) MarshalBinary() ([]byte, error) {
	return f.AppendBinary(make([]byte, 0, headerSize+len(f.Payload)))
}

// ReadFrame reads the next frame from r. Bytes before the next Start byte are
// skipped, so a reader that joins a stream mid-frame resynchronizes.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == Start {
			break
		}
	}
	var hdr [headerSize - 1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, unexpected(err)
	}
	f := Frame{
		Type: Type(hdr[0]),
		ID:   binary.LittleEndian.Uint64(hdr[1:9]),
		Kind: gate.Kind(hdr[9]),
	}
	if n := binary.LittleEndian.Uint16(hdr[10:12]); n > 0 {
		f.Payload = make([]byte, n)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, unexpected(err)
		}
	}
	return f, nil
}

// unexpected turns the end of the stream inside a frame into
// io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// DeviceError is the failure reported by a Failure frame.
type DeviceError struct {
	Code    uint8
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("serialink: device error %d: %s", e.Code, e.Message)
}

// FailurePayload returns the payload of a Failure frame reporting code and
// msg.
func FailurePayload(code uint8, msg string) []byte {
	return append([]byte{code}, msg...)
}

func parseFailure(payload []byte) *DeviceError {
	if len(payload) == 0 {
		return &DeviceError{Message: "no error code"}
	}
	return &DeviceError{Code: payload[0], Message: string(payload[1:])}
}
