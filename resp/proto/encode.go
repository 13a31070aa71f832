package proto

import (
	"strconv"
)

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// AppendCommand appends the wire form of cmd to dst and returns the extended
// slice. Commands always encode as an array of bulk strings; a nil argument
// encodes as the null bulk string. Encoding is total and side-effect-free.
func AppendCommand(dst []byte, cmd Command) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(cmd)), 10)
	dst = append(dst, '\r', '\n')
	for _, arg := range cmd {
		dst = appendBulk(dst, arg)
	}
	return dst
}

// AppendReply appends the wire form of r to dst and returns the extended
// slice. Every reply variant has exactly one encoding; the null bulk string
// and the empty array are encoded distinctly.
func AppendReply(dst []byte, r Reply) []byte {
	switch r.Type {
	case ReplySimple:
		dst = append(dst, '+')
		dst = append(dst, r.Str...)
		dst = append(dst, '\r', '\n')

	case ReplyError:
		dst = append(dst, '-')
		dst = append(dst, r.Str...)
		dst = append(dst, '\r', '\n')

	case ReplyInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, r.Int, 10)
		dst = append(dst, '\r', '\n')

	case ReplyBulk:
		dst = appendBulk(dst, r.Bulk)

	case ReplyArray:
		if r.Elems == nil {
			dst = append(dst, "*-1\r\n"...)
			break
		}
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(r.Elems)), 10)
		dst = append(dst, '\r', '\n')
		for _, elem := range r.Elems {
			dst = AppendReply(dst, elem)
		}
	}
	return dst
}

// appendBulk appends one bulk string, using the -1 sentinel for nil.
func appendBulk(dst, value []byte) []byte {
	if value == nil {
		return append(dst, "$-1\r\n"...)
	}
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(value)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, value...)
	dst = append(dst, '\r', '\n')
	return dst
}
