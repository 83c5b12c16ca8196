package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []Event{
		MessageEvent{Name: "alice", Message: "hello"},
		QuitEvent{Name: "alice"},
		WhisperEvent{Name: "alice", Target: "bob", Message: "hi"},
		ListEvent{Name: "alice"},
		SwitchEvent{Name: "alice", Channel: "core"},
		JoinEvent{Channel: "core"},
		ShutdownEvent{},
		KickEvent{Target: "alice"},
	}
	for _, want := range cases {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", want, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %#v, want %#v", got, want)
		}
	}
}

func TestEncodeNotSerialisable(t *testing.T) {
	for _, e := range []Event{MuteEvent{Target: "x"}, EmptyEvent{}, SendEvent{}} {
		if _, err := Encode(e); err == nil {
			t.Errorf("Encode(%#v) = nil error, want NotSerialisable", e)
		} else {
			var ns *NotSerialisable
			if !errors.As(err, &ns) {
				t.Errorf("Encode(%#v) error = %v, want *NotSerialisable", e, err)
			}
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], 999)
	_, err := Decode(buf[:])
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("Decode unknown type error = %v, want *ProtocolError", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	full, err := Encode(MessageEvent{Name: "alice", Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Decode(full[:6]) // type code + partial length prefix
	var tf *TruncatedFrame
	if !errors.As(err, &tf) {
		t.Fatalf("Decode truncated error = %v, want *TruncatedFrame", err)
	}
}

func TestFrameStreamDelimiting(t *testing.T) {
	e1, _ := Encode(MessageEvent{Name: "a", Message: "one"})
	e2, _ := Encode(MessageEvent{Name: "a", Message: "two"})

	var wire bytes.Buffer
	if err := WriteFrame(&wire, e1); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&wire, e2); err != nil {
		t.Fatal(err)
	}

	f1, err := ReadFrame(&wire)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := ReadFrame(&wire)
	if err != nil {
		t.Fatal(err)
	}

	got1, err := Decode(f1)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := Decode(f2)
	if err != nil {
		t.Fatal(err)
	}
	if got1 != (MessageEvent{Name: "a", Message: "one"}) {
		t.Errorf("first frame = %#v", got1)
	}
	if got2 != (MessageEvent{Name: "a", Message: "two"}) {
		t.Errorf("second frame = %#v", got2)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	_, err := ReadFrame(bytes.NewReader(hdr[:]))
	if err == nil {
		t.Fatal("expected error for oversize frame")
	}
}
