package proto

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Command
// --------------------------------------------------------------------------

// Command is one decoded request frame: the verb followed by its arguments,
// each an uninterpreted byte string. A Command is immutable once decoded.
type Command [][]byte

// NewCommand builds a Command from string arguments. Intended for tests and
// client helpers; the decoder produces Commands directly from wire bytes.
func NewCommand(args ...string) Command {
	cmd := make(Command, len(args))
	for i, arg := range args {
		cmd[i] = []byte(arg)
	}
	return cmd
}

// Verb returns the upper-cased verb of the command, or "" for an empty one.
func (c Command) Verb() string {
	if len(c) == 0 {
		return ""
	}
	return strings.ToUpper(string(c[0]))
}

// Args returns the arguments following the verb.
func (c Command) Args() [][]byte {
	if len(c) == 0 {
		return nil
	}
	return c[1:]
}

// String renders the command for log output. Arguments are space-joined and
// truncated, never quoted byte-exactly.
func (c Command) String() string {
	parts := make([]string, len(c))
	for i, arg := range c {
		if len(arg) > 32 {
			parts[i] = fmt.Sprintf("%s...(%d bytes)", arg[:32], len(arg))
		} else {
			parts[i] = string(arg)
		}
	}
	return strings.Join(parts, " ")
}

// --------------------------------------------------------------------------
// Reply
// --------------------------------------------------------------------------

// ReplyType identifies the wire kind of a Reply.
type ReplyType uint8

const (
	// ReplySimple is a single-line status reply ("+OK").
	ReplySimple ReplyType = iota
	// ReplyError is a single-line error reply ("-ERR ...").
	ReplyError
	// ReplyInteger is a signed 64-bit integer reply (":1").
	ReplyInteger
	// ReplyBulk is a length-prefixed byte string ("$5\r\nhello"). A nil
	// payload encodes as the null bulk string ("$-1"), which is distinct
	// from an empty payload ("$0").
	ReplyBulk
	// ReplyArray is an ordered sequence of replies ("*2...").
	ReplyArray
)

// String returns the human-readable name of the reply type.
func (t ReplyType) String() string {
	switch t {
	case ReplySimple:
		return "simple"
	case ReplyError:
		return "error"
	case ReplyInteger:
		return "integer"
	case ReplyBulk:
		return "bulk"
	case ReplyArray:
		return "array"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Reply is one reply value, a tagged union over the wire protocol's reply
// kinds. Exactly the field selected by Type is meaningful.
type Reply struct {
	Type  ReplyType
	Str   string  // simple and error text
	Int   int64   // integer value
	Bulk  []byte  // bulk payload, nil for the null bulk string
	Elems []Reply // array elements, nil for the null array
}

// NewSimpleReply creates a status reply.
func NewSimpleReply(text string) Reply {
	return Reply{Type: ReplySimple, Str: text}
}

// NewErrorReply creates an error reply. The text should carry the
// conventional upper-case prefix ("ERR ...", "WRONGTYPE ...").
func NewErrorReply(text string) Reply {
	return Reply{Type: ReplyError, Str: text}
}

// NewIntegerReply creates an integer reply.
func NewIntegerReply(n int64) Reply {
	return Reply{Type: ReplyInteger, Int: n}
}

// NewBulkReply creates a bulk string reply. A nil value yields the null
// bulk string; use an empty non-nil slice for an empty bulk string.
func NewBulkReply(value []byte) Reply {
	return Reply{Type: ReplyBulk, Bulk: value}
}

// NewNullReply creates the null bulk string reply.
func NewNullReply() Reply {
	return Reply{Type: ReplyBulk, Bulk: nil}
}

// NewArrayReply creates an array reply from the given elements.
func NewArrayReply(elems ...Reply) Reply {
	if elems == nil {
		elems = []Reply{}
	}
	return Reply{Type: ReplyArray, Elems: elems}
}

// IsNull reports whether the reply is the null bulk string.
func (r Reply) IsNull() bool {
	return r.Type == ReplyBulk && r.Bulk == nil
}

// AsError converts an error reply into a Go error, or nil for any other
// reply type. Used by clients to surface server-side errors.
func (r Reply) AsError() error {
	if r.Type != ReplyError {
		return nil
	}
	return fmt.Errorf("%s", r.Str)
}

// String renders the reply for log output.
func (r Reply) String() string {
	switch r.Type {
	case ReplySimple:
		return "+" + r.Str
	case ReplyError:
		return "-" + r.Str
	case ReplyInteger:
		return fmt.Sprintf(":%d", r.Int)
	case ReplyBulk:
		if r.Bulk == nil {
			return "(nil)"
		}
		if len(r.Bulk) > 32 {
			return fmt.Sprintf("%s...(%d bytes)", r.Bulk[:32], len(r.Bulk))
		}
		return string(r.Bulk)
	case ReplyArray:
		parts := make([]string, len(r.Elems))
		for i, e := range r.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return r.Type.String()
	}
}
