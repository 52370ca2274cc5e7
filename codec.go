package duplex

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// HeaderSize is the size of the length prefix that starts every frame.
const HeaderSize = 4

// ControlCode is the single byte carried by a control frame.
type ControlCode byte

const (
	// ControlDisconnect tells the peer that the sender is going away.
	ControlDisconnect ControlCode = 1
)

func (c ControlCode) String() string {
	if c == ControlDisconnect {
		return "disconnect"
	}
	return "reserved"
}

// Header is a decoded frame header. When IsControl is set the frame carries
// Control and no payload, otherwise Length payload bytes follow.
type Header struct {
	Length    uint32
	Control   ControlCode
	IsControl bool
}

// encode lays out a data frame with no range checks. Callers outside
// EncodeFrame only pass non-empty payloads.
func encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeFrame returns the wire form of payload: a big-endian uint32 length
// followed by the payload bytes. A zero-length payload cannot be a data frame
// because length 0 selects the control form, so it is rejected with
// ErrEmptyMessage; control frames are built with EncodeControl.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyMessage
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrMessageTooLarge, "payload of %d bytes", len(payload))
	}
	return encode(payload), nil
}

// EncodeControl returns a control frame carrying code.
func EncodeControl(code ControlCode) []byte {
	return []byte{0, 0, 0, 0, byte(code)}
}

// DecodeHeader reads one frame header from r. It returns io.EOF only when
// the stream ends cleanly before the first header byte.
func DecodeHeader(r io.Reader) (Header, error) {
	var prefix [HeaderSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, errors.Wrap(ErrTruncatedFrame, "short length prefix")
		}
		return Header{}, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length != 0 {
		return Header{Length: length}, nil
	}

	var code [1]byte
	if _, err := io.ReadFull(r, code[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, errors.Wrap(ErrTruncatedFrame, "missing control byte")
		}
		return Header{}, err
	}
	return Header{Control: ControlCode(code[0]), IsControl: true}, nil
}

// DecodePayload reads exactly length bytes from r.
func DecodePayload(r io.Reader, length uint32) ([]byte, error) {
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.Wrapf(ErrTruncatedFrame, "want %d payload bytes", length)
		}
		return nil, err
	}
	return payload, nil
}

// ReadFrame decodes one complete frame. Data frames longer than maxLength
// are rejected before any payload is allocated; maxLength <= 0 disables the
// check. For control frames the returned payload is nil.
func ReadFrame(r io.Reader, maxLength int) (Header, []byte, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	if h.IsControl {
		return h, nil, nil
	}
	if maxLength > 0 && uint64(h.Length) > uint64(maxLength) {
		return h, nil, errors.Wrapf(ErrMessageTooLarge, "frame of %d bytes exceeds %d", h.Length, maxLength)
	}

	payload, err := DecodePayload(r, h.Length)
	if err != nil {
		return h, nil, err
	}
	return h, payload, nil
}
