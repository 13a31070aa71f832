package proto

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// --------------------------------------------------------------------------
// Constants and error types
// --------------------------------------------------------------------------

const (
	// DefaultMaxArrayLen is the default maximum number of elements per frame.
	DefaultMaxArrayLen = 1024

	// DefaultMaxBulkLen is the default maximum byte length of one bulk string.
	DefaultMaxBulkLen = 512 * 1024 * 1024

	// maxLineLen bounds a single protocol line (length prefixes, simple
	// replies, inline commands). Reached only by malformed or hostile input.
	maxLineLen = 64 * 1024

	// maxReplyDepth bounds nested array replies.
	maxReplyDepth = 32
)

// ErrIncomplete signals that the buffer does not yet hold a complete frame.
// No input is consumed; the caller appends more bytes and retries from the
// start of the unconsumed region.
var ErrIncomplete = errors.New("incomplete frame")

// ParseError describes a malformed frame. It is fatal to the connection
// that produced it: the session replies with an error if possible and then
// closes the connection.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Msg
}

func newParseError(format string, args ...interface{}) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// Decoder decodes frames from a byte buffer. The zero value is ready to use
// with the default limits. Decoding is stateless and resumable: a partial
// frame yields ErrIncomplete with zero bytes consumed, so the caller can
// accumulate input in arbitrary chunk sizes and retry.
//
// Thread-safety: a Decoder holds no state and may be shared freely.
type Decoder struct {
	MaxArrayLen int // maximum elements per frame (0 = DefaultMaxArrayLen)
	MaxBulkLen  int // maximum bytes per bulk string (0 = DefaultMaxBulkLen)
}

func (d Decoder) maxArrayLen() int {
	if d.MaxArrayLen > 0 {
		return d.MaxArrayLen
	}
	return DefaultMaxArrayLen
}

func (d Decoder) maxBulkLen() int {
	if d.MaxBulkLen > 0 {
		return d.MaxBulkLen
	}
	return DefaultMaxBulkLen
}

// DecodeCommand decodes one request frame from the start of buf. It returns
// the command and the number of bytes consumed. An array frame holds
// length-prefixed byte strings; any other first byte is parsed as an inline
// command (whitespace-separated words on one line). A blank inline line
// decodes to a nil Command with its bytes consumed.
//
// The returned command does not alias buf.
func (d Decoder) DecodeCommand(buf []byte) (Command, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] != '*' {
		return d.decodeInline(buf)
	}

	line, pos, err := readLine(buf, 0)
	if err != nil {
		return nil, 0, err
	}
	count, err := parseLen(line[1:])
	if err != nil {
		return nil, 0, newParseError("invalid element count %q", line[1:])
	}
	if count < 0 {
		return nil, 0, newParseError("negative element count %d", count)
	}
	if count == 0 {
		// An empty array carries no verb; consume and ignore it.
		return nil, pos, nil
	}
	if count > d.maxArrayLen() {
		return nil, 0, newParseError("element count %d exceeds maximum %d", count, d.maxArrayLen())
	}

	cmd := make(Command, 0, count)
	for i := 0; i < count; i++ {
		line, next, err := readLine(buf, pos)
		if err != nil {
			return nil, 0, err
		}
		if len(line) == 0 || line[0] != '$' {
			return nil, 0, newParseError("expected bulk length, got %q", line)
		}
		length, err := parseLen(line[1:])
		if err != nil {
			return nil, 0, newParseError("invalid bulk length %q", line[1:])
		}
		if length == -1 {
			// Null element, distinct from an empty string.
			cmd = append(cmd, nil)
			pos = next
			continue
		}
		if length < 0 {
			return nil, 0, newParseError("negative bulk length %d", length)
		}
		if length > d.maxBulkLen() {
			return nil, 0, newParseError("bulk length %d exceeds maximum %d", length, d.maxBulkLen())
		}
		if len(buf) < next+length+2 {
			return nil, 0, ErrIncomplete
		}
		if buf[next+length] != '\r' || buf[next+length+1] != '\n' {
			return nil, 0, newParseError("bulk string missing terminator")
		}
		value := make([]byte, length)
		copy(value, buf[next:next+length])
		cmd = append(cmd, value)
		pos = next + length + 2
	}
	return cmd, pos, nil
}

// decodeInline parses one whitespace-separated command line. Inline lines
// accept a bare "\n" terminator for interactive (telnet) use.
func (d Decoder) decodeInline(buf []byte) (Command, int, error) {
	end := bytes.IndexByte(buf, '\n')
	if end == -1 {
		if len(buf) > maxLineLen {
			return nil, 0, newParseError("inline command exceeds %d bytes", maxLineLen)
		}
		return nil, 0, ErrIncomplete
	}
	line := buf[:end]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, end + 1, nil
	}
	cmd := make(Command, len(fields))
	for i, f := range fields {
		word := make([]byte, len(f))
		copy(word, f)
		cmd[i] = word
	}
	return cmd, end + 1, nil
}

// --------------------------------------------------------------------------
// Reply decoding (client side)
// --------------------------------------------------------------------------

// DecodeReply decodes one reply frame from the start of buf, returning the
// reply and the number of bytes consumed. The returned reply does not alias
// buf.
func (d Decoder) DecodeReply(buf []byte) (Reply, int, error) {
	return d.decodeReplyAt(buf, 0, 0)
}

func (d Decoder) decodeReplyAt(buf []byte, pos, depth int) (Reply, int, error) {
	if depth > maxReplyDepth {
		return Reply{}, 0, newParseError("reply nesting exceeds depth %d", maxReplyDepth)
	}
	if pos >= len(buf) {
		return Reply{}, 0, ErrIncomplete
	}

	marker := buf[pos]
	line, next, err := readLine(buf, pos)
	if err != nil {
		return Reply{}, 0, err
	}

	switch marker {
	case '+':
		return NewSimpleReply(string(line[1:])), next, nil

	case '-':
		return NewErrorReply(string(line[1:])), next, nil

	case ':':
		n, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return Reply{}, 0, newParseError("invalid integer reply %q", line[1:])
		}
		return NewIntegerReply(n), next, nil

	case '$':
		length, err := parseLen(line[1:])
		if err != nil {
			return Reply{}, 0, newParseError("invalid bulk length %q", line[1:])
		}
		if length == -1 {
			return NewNullReply(), next, nil
		}
		if length < 0 {
			return Reply{}, 0, newParseError("negative bulk length %d", length)
		}
		if length > d.maxBulkLen() {
			return Reply{}, 0, newParseError("bulk length %d exceeds maximum %d", length, d.maxBulkLen())
		}
		if len(buf) < next+length+2 {
			return Reply{}, 0, ErrIncomplete
		}
		if buf[next+length] != '\r' || buf[next+length+1] != '\n' {
			return Reply{}, 0, newParseError("bulk string missing terminator")
		}
		value := make([]byte, length)
		copy(value, buf[next:next+length])
		return NewBulkReply(value), next + length + 2, nil

	case '*':
		count, err := parseLen(line[1:])
		if err != nil {
			return Reply{}, 0, newParseError("invalid element count %q", line[1:])
		}
		if count == -1 {
			return Reply{Type: ReplyArray, Elems: nil}, next, nil
		}
		if count < 0 {
			return Reply{}, 0, newParseError("negative element count %d", count)
		}
		if count > d.maxArrayLen() {
			return Reply{}, 0, newParseError("element count %d exceeds maximum %d", count, d.maxArrayLen())
		}
		elems := make([]Reply, 0, count)
		for i := 0; i < count; i++ {
			elem, elemEnd, err := d.decodeReplyAt(buf, next, depth+1)
			if err != nil {
				return Reply{}, 0, err
			}
			elems = append(elems, elem)
			next = elemEnd
		}
		return Reply{Type: ReplyArray, Elems: elems}, next, nil

	default:
		return Reply{}, 0, newParseError("unexpected reply marker %q", marker)
	}
}

// --------------------------------------------------------------------------
// Line helpers
// --------------------------------------------------------------------------

// readLine returns the line starting at pos without its "\r\n" terminator
// and the offset of the byte after the terminator.
func readLine(buf []byte, pos int) ([]byte, int, error) {
	idx := bytes.IndexByte(buf[pos:], '\n')
	if idx == -1 {
		if len(buf)-pos > maxLineLen {
			return nil, 0, newParseError("protocol line exceeds %d bytes", maxLineLen)
		}
		return nil, 0, ErrIncomplete
	}
	end := pos + idx
	if end == pos || buf[end-1] != '\r' {
		return nil, 0, newParseError("protocol line missing CR terminator")
	}
	return buf[pos : end-1], end + 1, nil
}

// parseLen parses a decimal length prefix. "-1" is the null sentinel and is
// returned as -1; all other negative values are rejected by the callers.
func parseLen(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("empty length")
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, err
	}
	return n, nil
}
