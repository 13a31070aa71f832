// Package proto implements the wire protocol codec for the key-value
// server: stateless decoding of request frames into Commands, decoding of
// reply frames into Replies (for the client side), and encoding of both
// back into wire bytes.
//
// The package focuses on:
//   - Resumable decoding over a byte stream: a partial frame yields
//     ErrIncomplete without consuming input, so callers can accumulate
//     bytes in arbitrary chunk sizes and retry
//   - Strict framing with configurable limits that reject oversized
//     declared lengths before any allocation happens
//   - A total, side-effect-free encoding for every Reply variant, with
//     the null bulk string kept distinct from the empty string and the
//     empty array
//   - Inline commands (whitespace-separated words on one line) for
//     interactive use alongside the array-of-bulk-strings request form
//
// Key Components:
//
//   - Command: one decoded request, a sequence of byte strings with the
//     verb first. Commands are immutable once decoded and never alias the
//     input buffer.
//
//   - Reply: a tagged union over the protocol's reply kinds (simple,
//     error, integer, bulk, array) with factory functions for each.
//
//   - Decoder: carries the frame limits. The zero value uses the
//     defaults. Malformed input yields a *ParseError, which is fatal to
//     the connection that produced it; incomplete input yields the
//     ErrIncomplete sentinel.
package proto
