// Package ndjson provides incremental parsing of newline-delimited JSON
// as it arrives from a chunked HTTP response.
//
// Chunks arrive at arbitrary byte boundaries: a record may span several
// chunks, and one chunk may carry several records. The scanner owns an
// accumulation buffer, yields complete records from the front, and keeps
// trailing incomplete bytes for the next chunk. It never discards
// unconsumed bytes.
package ndjson

import "bytes"

// Scanner splits a chunked byte stream into newline-delimited records.
// A Scanner is owned by exactly one connection and must not be used
// concurrently.
type Scanner struct {
	buf []byte
}

// Append adds a chunk of raw bytes to the accumulation buffer.
func (s *Scanner) Append(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next complete record, with the trailing newline and
// any surrounding whitespace removed. Blank records are skipped.
// Returns ok=false when no complete record is buffered; call Append
// with more bytes and try again.
//
// The returned slice stays valid across subsequent Append and Next
// calls until the scanner is reused from scratch.
func (s *Scanner) Next() ([]byte, bool) {
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			return nil, false
		}
		line := trimRecord(s.buf[:i])
		s.buf = s.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		return line, true
	}
}

// Flush returns the final unterminated record after the stream ends.
// Servers may omit the trailing newline on the last record; a bounded
// response that ends mid-record is surfaced here too, for the caller to
// reject. Returns ok=false if only whitespace remains.
func (s *Scanner) Flush() ([]byte, bool) {
	line := trimRecord(s.buf)
	s.buf = nil
	if len(line) == 0 {
		return nil, false
	}
	return line, true
}

// Buffered returns the number of unconsumed bytes.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// trimRecord strips carriage returns and surrounding whitespace.
func trimRecord(line []byte) []byte {
	return bytes.TrimSpace(line)
}
