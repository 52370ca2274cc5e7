package duplex

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	got, err := EncodeFrame([]byte("hello"))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeFrame = %v, want %v", got, want)
	}
}

func TestEncode_BigEndianLength(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 0x010203)
	got := encode(payload)
	if !bytes.Equal(got[:4], []byte{0x00, 0x01, 0x02, 0x03}) {
		t.Errorf("prefix = %v", got[:4])
	}
	if len(got) != 4+len(payload) {
		t.Errorf("len = %d, want %d", len(got), 4+len(payload))
	}
}

func TestEncodeFrame_Empty(t *testing.T) {
	for _, payload := range [][]byte{nil, {}} {
		frame, err := EncodeFrame(payload)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("EncodeFrame(%v) error = %v, want ErrEmptyMessage", payload, err)
		}
		if frame != nil {
			t.Errorf("EncodeFrame(%v) = %v, want no bytes", payload, frame)
		}
	}
}

func TestEncodeControl(t *testing.T) {
	got := EncodeControl(ControlDisconnect)
	want := []byte{0, 0, 0, 0, 1}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeControl = %v, want %v", got, want)
	}
}

func TestDecodeHeader_Fixtures(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    Header
		wantErr error
	}{
		{name: "data", in: []byte{0, 0, 0, 9}, want: Header{Length: 9}},
		{name: "max", in: []byte{0xFF, 0xFF, 0xFF, 0xFF}, want: Header{Length: 0xFFFFFFFF}},
		{name: "disconnect", in: []byte{0, 0, 0, 0, 1}, want: Header{Control: ControlDisconnect, IsControl: true}},
		{name: "reserved control", in: []byte{0, 0, 0, 0, 9}, want: Header{Control: 9, IsControl: true}},
		{name: "clean eof", in: nil, wantErr: io.EOF},
		{name: "short prefix", in: []byte{0, 0}, wantErr: ErrTruncatedFrame},
		{name: "missing control byte", in: []byte{0, 0, 0, 0}, wantErr: ErrTruncatedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(bytes.NewReader(tt.in))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeHeader failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("header = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeHeader_ZeroLengthIsControl(t *testing.T) {
	// A zero-length "payload" must never surface as an empty data frame.
	wire := append(encode(nil), 0x01)
	h, err := DecodeHeader(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if !h.IsControl || h.Length != 0 {
		t.Errorf("header = %+v, want control frame", h)
	}
}

func TestDecodePayload(t *testing.T) {
	r := bytes.NewReader([]byte("abcdef"))
	got, err := DecodePayload(r, 4)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if string(got) != "abcd" {
		t.Errorf("payload = %s, want abcd", got)
	}
	if r.Len() != 2 {
		t.Errorf("consumed %d bytes, want 4", 6-r.Len())
	}
}

func TestDecodePayload_Truncated(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("ab")} {
		_, err := DecodePayload(bytes.NewReader(in), 5)
		if !errors.Is(err, ErrTruncatedFrame) {
			t.Errorf("input %q: err = %v, want ErrTruncatedFrame", in, err)
		}
	}
}

func TestReadFrame_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sizes := []int{1, 2, 255, 256, 4096, 65537, 1 << 20}

	var wire bytes.Buffer
	payloads := make([][]byte, len(sizes))
	for i, n := range sizes {
		p := make([]byte, n)
		rng.Read(p)
		payloads[i] = p
		wire.Write(encode(p))
	}

	for i, want := range payloads {
		h, got, err := ReadFrame(&wire, 0)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if h.IsControl || int(h.Length) != len(want) {
			t.Fatalf("frame %d: header %+v", i, h)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: payload mismatch", i)
		}
	}

	if _, _, err := ReadFrame(&wire, 0); err != io.EOF {
		t.Errorf("after last frame err = %v, want io.EOF", err)
	}
}

func TestReadFrame_Control(t *testing.T) {
	h, payload, err := ReadFrame(bytes.NewReader(EncodeControl(ControlDisconnect)), 16)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !h.IsControl || h.Control != ControlDisconnect || payload != nil {
		t.Errorf("got %+v %v, want disconnect control", h, payload)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	// Only the header is present: the limit must trip before any allocation
	// or payload read.
	r := bytes.NewReader([]byte{0x7F, 0xFF, 0xFF, 0xFF})
	_, _, err := ReadFrame(r, 1024)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestReadFrame_AtLimit(t *testing.T) {
	payload := bytes.Repeat([]byte{'z'}, 16)
	_, got, err := ReadFrame(bytes.NewReader(encode(payload)), 16)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload mismatch")
	}
}

func TestControlCode_String(t *testing.T) {
	if ControlDisconnect.String() != "disconnect" {
		t.Errorf("String = %s", ControlDisconnect.String())
	}
	if ControlCode(2).String() != "reserved" {
		t.Errorf("String = %s", ControlCode(2).String())
	}
}
