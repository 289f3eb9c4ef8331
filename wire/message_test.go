package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	type field struct {
		kind string // "int", "bool", "string"
		i    int
		b    bool
		s    string
	}

	tests := []struct {
		name   string
		fields []field
	}{
		{
			name:   "single integer",
			fields: []field{{kind: "int", i: 42}},
		},
		{
			name:   "negative integer",
			fields: []field{{kind: "int", i: -99}},
		},
		{
			name:   "booleans",
			fields: []field{{kind: "bool", b: true}, {kind: "bool", b: false}},
		},
		{
			name:   "plain string",
			fields: []field{{kind: "string", s: "getNumberOfDevices"}},
		},
		{
			name:   "empty string",
			fields: []field{{kind: "string", s: ""}},
		},
		{
			name: "string containing delimiters",
			fields: []field{
				{kind: "string", s: "i42s"},
				{kind: "string", s: "5:abc:def"},
				{kind: "string", s: "trailing i"},
			},
		},
		{
			name: "string with arbitrary bytes",
			fields: []field{
				{kind: "string", s: string([]byte{0x00, 0xFF, 0x0A, 0x3A, 0x69})},
			},
		},
		{
			name: "mixed sequence",
			fields: []field{
				{kind: "string", s: "switchState"},
				{kind: "int", i: 7},
				{kind: "int", i: 16},
				{kind: "string", s: "128"},
				{kind: "bool", b: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := New()
			for _, f := range tt.fields {
				switch f.kind {
				case "int":
					enc.AddInt(f.i)
				case "bool":
					enc.AddBool(f.b)
				case "string":
					enc.AddString(f.s)
				}
			}

			dec := Parse(enc.Bytes())
			for i, f := range tt.fields {
				switch f.kind {
				case "int":
					got, err := dec.TakeInt()
					if err != nil {
						t.Fatalf("field %d: TakeInt() error: %v", i, err)
					}
					if got != f.i {
						t.Errorf("field %d: TakeInt() = %d, want %d", i, got, f.i)
					}
				case "bool":
					got, err := dec.TakeBool()
					if err != nil {
						t.Fatalf("field %d: TakeBool() error: %v", i, err)
					}
					if got != f.b {
						t.Errorf("field %d: TakeBool() = %v, want %v", i, got, f.b)
					}
				case "string":
					got, err := dec.TakeString()
					if err != nil {
						t.Fatalf("field %d: TakeString() error: %v", i, err)
					}
					if got != f.s {
						t.Errorf("field %d: TakeString() = %q, want %q", i, got, f.s)
					}
				}
			}

			if !dec.Empty() {
				t.Errorf("message not fully consumed after %d fields", len(tt.fields))
			}
		})
	}
}

func TestMessagePeekDoesNotConsume(t *testing.T) {
	m := New().AddInt(5).AddString("hello")

	dec := Parse(m.Bytes())

	// Peek repeatedly; the cursor must not move.
	for i := 0; i < 3; i++ {
		if !dec.NextIsInt() {
			t.Fatal("NextIsInt() = false, want true")
		}
		if dec.NextIsString() {
			t.Fatal("NextIsString() = true, want false")
		}
	}

	v, err := dec.TakeInt()
	if err != nil {
		t.Fatalf("TakeInt() error: %v", err)
	}
	if v != 5 {
		t.Errorf("TakeInt() = %d, want 5", v)
	}

	if !dec.NextIsString() {
		t.Fatal("NextIsString() = false after consuming integer")
	}
	s, err := dec.TakeString()
	if err != nil {
		t.Fatalf("TakeString() error: %v", err)
	}
	if s != "hello" {
		t.Errorf("TakeString() = %q, want %q", s, "hello")
	}
}

func TestMessageDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		take    string // which take to attempt first
	}{
		{
			name:    "int where string expected",
			payload: New().AddInt(3).Bytes(),
			take:    "string",
		},
		{
			name:    "string where int expected",
			payload: New().AddString("x").Bytes(),
			take:    "int",
		},
		{
			name:    "read past end",
			payload: nil,
			take:    "int",
		},
		{
			name:    "unterminated integer",
			payload: []byte("i42"),
			take:    "int",
		},
		{
			name:    "non-numeric integer token",
			payload: []byte("ixxs"),
			take:    "int",
		},
		{
			name:    "truncated string body",
			payload: []byte("10:short"),
			take:    "string",
		},
		{
			name:    "unterminated string length",
			payload: []byte("123"),
			take:    "string",
		},
		{
			name:    "boolean out of range",
			payload: New().AddInt(2).Bytes(),
			take:    "bool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Parse(tt.payload)

			var err error
			switch tt.take {
			case "int":
				_, err = dec.TakeInt()
			case "bool":
				_, err = dec.TakeBool()
			case "string":
				_, err = dec.TakeString()
			}

			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("error = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty payload", payload: nil},
		{name: "short payload", payload: New().AddString("getName").AddInt(3).Bytes()},
		{name: "binary payload", payload: []byte{0x00, 0x01, 0xFF, 0xFE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.payload); err != nil {
				t.Fatalf("WriteFrame() error: %v", err)
			}

			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame() error: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("ReadFrame() = %v, want %v", got, tt.payload)
			}
		})
	}
}

func TestFrameOversized(t *testing.T) {
	payload := make([]byte, MaxFrameSize+1)
	if _, err := Frame(payload); !errors.Is(err, ErrOversizedFrame) {
		t.Errorf("Frame() error = %v, want ErrOversizedFrame", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	// Declared length 10 but only 4 body bytes available.
	frame := []byte{0x00, 0x0A, 'a', 'b', 'c', 'd'}
	if _, err := ReadFrame(bytes.NewReader(frame)); err == nil {
		t.Error("ReadFrame() expected error for truncated body, got nil")
	}
}
