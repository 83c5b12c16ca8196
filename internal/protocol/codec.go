package protocol

import (
	"encoding/binary"
	"io"
)

// MaxFrameSize bounds a single frame's body so a malformed or hostile
// length prefix cannot force an unbounded allocation.
const MaxFrameSize = 16 * 1024 * 1024

// Encode serialises an event as type_code(4B BE) || body. MUTE and EMPTY
// are in-process-only and SEND is reserved; encoding any of them is a
// programmer error reported as NotSerialisable. KICK carries a wire form
// too: the dispatcher sends it to the removed connection as the signal to
// disconnect, even though it is otherwise only posted in-process.
func Encode(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case MessageEvent:
		return packType(TypeMessage, str(ev.Name), str(ev.Message)), nil
	case QuitEvent:
		return packType(TypeQuit, str(ev.Name)), nil
	case WhisperEvent:
		return packType(TypeWhisper, str(ev.Name), str(ev.Target), str(ev.Message)), nil
	case ListEvent:
		return packType(TypeList, str(ev.Name)), nil
	case SwitchEvent:
		return packType(TypeSwitch, str(ev.Name), str(ev.Channel)), nil
	case JoinEvent:
		return packType(TypeJoin, str(ev.Channel)), nil
	case ShutdownEvent:
		return packType(TypeShutdown), nil
	case KickEvent:
		return packType(TypeKick, str(ev.Target)), nil
	case MuteEvent:
		return nil, &NotSerialisable{Type: TypeMute}
	case EmptyEvent:
		return nil, &NotSerialisable{Type: TypeEmpty}
	case SendEvent:
		return nil, &NotSerialisable{Type: TypeSend}
	default:
		return nil, &NotSerialisable{Type: 0}
	}
}

// Decode parses a serialised event: type_code(4B BE) followed by its body.
func Decode(data []byte) (Event, error) {
	if len(data) < 4 {
		return nil, &TruncatedFrame{Reason: "missing type code"}
	}
	t := Type(binary.BigEndian.Uint32(data[:4]))
	body := data[4:]

	switch t {
	case TypeMessage:
		f := newFieldReader(t, body)
		name := f.str()
		msg := f.str()
		if f.err != nil {
			return nil, f.err
		}
		return MessageEvent{Name: name, Message: msg}, nil
	case TypeQuit:
		f := newFieldReader(t, body)
		name := f.str()
		if f.err != nil {
			return nil, f.err
		}
		return QuitEvent{Name: name}, nil
	case TypeWhisper:
		f := newFieldReader(t, body)
		name := f.str()
		target := f.str()
		msg := f.str()
		if f.err != nil {
			return nil, f.err
		}
		return WhisperEvent{Name: name, Target: target, Message: msg}, nil
	case TypeList:
		f := newFieldReader(t, body)
		name := f.str()
		if f.err != nil {
			return nil, f.err
		}
		return ListEvent{Name: name}, nil
	case TypeSwitch:
		f := newFieldReader(t, body)
		name := f.str()
		channel := f.str()
		if f.err != nil {
			return nil, f.err
		}
		return SwitchEvent{Name: name, Channel: channel}, nil
	case TypeJoin:
		f := newFieldReader(t, body)
		channel := f.str()
		if f.err != nil {
			return nil, f.err
		}
		return JoinEvent{Channel: channel}, nil
	case TypeShutdown:
		return ShutdownEvent{}, nil
	case TypeKick:
		f := newFieldReader(t, body)
		target := f.str()
		if f.err != nil {
			return nil, f.err
		}
		return KickEvent{Target: target}, nil
	case TypeMute:
		return nil, &NotSerialisable{Type: TypeMute}
	case TypeEmpty:
		return nil, &NotSerialisable{Type: TypeEmpty}
	case TypeSend:
		return nil, &NotSerialisable{Type: TypeSend}
	default:
		return nil, &ProtocolError{Code: uint32(t)}
	}
}

// packType concatenates a type code with zero or more pre-encoded string
// fields into a single body.
func packType(t Type, fields ...[]byte) []byte {
	size := 4
	for _, f := range fields {
		size += len(f)
	}
	out := make([]byte, 4, size)
	binary.BigEndian.PutUint32(out, uint32(t))
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

// str encodes one string field as a 4-byte big-endian length followed by
// its UTF-8 bytes.
func str(s string) []byte {
	out := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(out, uint32(len(s)))
	copy(out[4:], s)
	return out
}

// fieldReader sequentially decodes length-prefixed string fields out of a
// body, latching the first error encountered.
type fieldReader struct {
	t    Type
	data []byte
	pos  int
	err  error
}

func newFieldReader(t Type, data []byte) *fieldReader {
	return &fieldReader{t: t, data: data}
}

func (f *fieldReader) str() string {
	if f.err != nil {
		return ""
	}
	if len(f.data)-f.pos < 4 {
		f.err = &TruncatedFrame{Type: f.t, Reason: "missing string length"}
		return ""
	}
	n := binary.BigEndian.Uint32(f.data[f.pos : f.pos+4])
	f.pos += 4
	if uint64(len(f.data)-f.pos) < uint64(n) {
		f.err = &TruncatedFrame{Type: f.t, Reason: "string body shorter than declared length"}
		return ""
	}
	s := string(f.data[f.pos : f.pos+int(n)])
	f.pos += int(n)
	return s
}

// WriteFrame writes one length-prefixed frame: a 4-byte big-endian total
// length (exclusive of itself) followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r: 4 bytes of big-endian
// length, then exactly that many bytes of payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, &TruncatedFrame{Reason: "frame exceeds maximum size"}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
