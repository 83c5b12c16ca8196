// Package protocol implements the length-prefixed binary event codec that
// runs over every chat connection once the handshake completes.
package protocol

import "fmt"

// Type identifies the wire variant of an Event. Values match the original
// implementation's enumeration order so that a byte-level capture of that
// program decodes identically here.
type Type uint32

const (
	TypeQuit Type = iota + 1
	TypeKick
	TypeShutdown
	TypeMute
	TypeEmpty
	TypeSend
	TypeWhisper
	TypeList
	TypeSwitch
	TypeMessage
	TypeJoin
)

func (t Type) String() string {
	switch t {
	case TypeQuit:
		return "QUIT"
	case TypeKick:
		return "KICK"
	case TypeShutdown:
		return "SHUTDOWN"
	case TypeMute:
		return "MUTE"
	case TypeEmpty:
		return "EMPTY"
	case TypeSend:
		return "SEND"
	case TypeWhisper:
		return "WHISPER"
	case TypeList:
		return "LIST"
	case TypeSwitch:
		return "SWITCH"
	case TypeMessage:
		return "MESSAGE"
	case TypeJoin:
		return "JOIN"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// Event is the tagged sum type carried over the wire (or, for the
// in-process-only variants, between a channel's dispatcher and its
// handlers). Each concrete type below implements Event.
type Event interface {
	Type() Type
}

// MessageEvent carries a broadcast or whisper-confirmation chat line.
type MessageEvent struct {
	Name    string
	Message string
}

func (MessageEvent) Type() Type { return TypeMessage }

// QuitEvent is sent client->server to leave a channel, and echoed back
// server->client so the client knows it is safe to exit.
type QuitEvent struct {
	Name string
}

func (QuitEvent) Type() Type { return TypeQuit }

// WhisperEvent is a private message routed through the server.
type WhisperEvent struct {
	Name    string
	Target  string
	Message string
}

func (WhisperEvent) Type() Type { return TypeWhisper }

// ListEvent requests a summary of every channel on the server.
type ListEvent struct {
	Name string
}

func (ListEvent) Type() Type { return TypeList }

// SwitchEvent carries either the destination channel name (client->server)
// or the destination port as a decimal string (server->client).
type SwitchEvent struct {
	Name    string
	Channel string
}

func (SwitchEvent) Type() Type { return TypeSwitch }

// JoinEvent is sent server->client on admission to a channel's membership.
type JoinEvent struct {
	Channel string
}

func (JoinEvent) Type() Type { return TypeJoin }

// KickEvent removes a user from a channel. It is posted to a channel's
// dispatcher in-process, and also serialised server->client to signal the
// targeted client that it has been removed.
type KickEvent struct {
	Target string
}

func (KickEvent) Type() Type { return TypeKick }

// ShutdownEvent carries no data. Sent to every member and waiter right
// before a channel closes their connections; its type code also names the
// in-process shutdown operation on a channel's dispatcher. Stopping the
// accept/dispatch loops is done separately by Channel.Stop.
type ShutdownEvent struct{}

func (ShutdownEvent) Type() Type { return TypeShutdown }

// MuteEvent has no wire form, unlike KickEvent; it toggles a handler's
// muted flag from the channel dispatcher. Mute duration and unmute
// notification are not specified (see DESIGN.md Open Questions).
type MuteEvent struct {
	Target string
}

func (MuteEvent) Type() Type { return TypeMute }

// EmptyEvent is in-process-only; it instructs a channel to remove every
// current member.
type EmptyEvent struct{}

func (EmptyEvent) Type() Type { return TypeEmpty }

// SendEvent is reserved for file transfer. Its wire layout is unspecified;
// encoding or decoding it always fails (see NotSerialisable).
type SendEvent struct {
	Message string
}

func (SendEvent) Type() Type { return TypeSend }
