package sheet

// stream.go provides the readers CSV decoding runs through.
//
//   - sanitizingReader replaces invalid UTF-8 sequences on the fly
//   - bomReader removes the UTF-8 BOM (0xEF 0xBB 0xBF) Windows tools add
//
// WrapReader applies both in the required order (BOM first) with
// O(buffer) memory regardless of file size.

import (
	"io"
	"unicode/utf8"
)

// WrapReader prepares an arbitrary upload stream for CSV decoding.
func WrapReader(r io.Reader) io.Reader {
	return newSanitizingReader(newBOMReader(r))
}

// bomReader skips a leading UTF-8 BOM if present.
type bomReader struct {
	r       io.Reader
	checked bool
	rest    []byte // probe bytes still owed to the caller
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		var probe [3]byte
		n, err := io.ReadFull(b.r, probe[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if !(n == 3 && probe[0] == 0xEF && probe[1] == 0xBB && probe[2] == 0xBF) {
			b.rest = append(b.rest, probe[:n]...)
		}
		if len(b.rest) == 0 && err == io.EOF {
			return 0, io.EOF
		}
	}

	if len(b.rest) > 0 {
		n := copy(p, b.rest)
		b.rest = b.rest[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// sanitizingReader replaces invalid UTF-8 sequences with '?' in place.
// A multi-byte rune split across two reads is held back until the next
// read completes it.
type sanitizingReader struct {
	r       io.Reader
	pending []byte
}

func newSanitizingReader(r io.Reader) *sanitizingReader {
	return &sanitizingReader{
		r:       r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *sanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Serve held-back bytes before reading more
	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.r.Read(p[offset:])
	n += offset

	if n == 0 {
		return 0, err
	}

	// Fast path: pure ASCII needs no fixing
	if allASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// allASCII reports whether every byte is < 0x80.
func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place, replacing invalid sequences with '?'.
// Returns the number of valid bytes. When atEOF is false, an incomplete
// trailing sequence moves to pending instead of being replaced.
func (s *sanitizingReader) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			if trailing := trailingPartial(data); trailing > 0 {
				s.pending = append(s.pending, data[len(data)-trailing:]...)
				return len(data) - trailing
			}
		}
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		// A truncated rune at the tail waits for the next read
		if !atEOF && partialRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			// '?' keeps the output the same length; the replacement
			// character would grow it mid-stream
			data[write] = '?'
			write++
			read++
		} else {
			copy(data[write:], data[read:read+size])
			write += size
			read += size
		}
	}

	return write
}

// trailingPartial returns how many bytes at the end of data could be the
// start of an incomplete multi-byte sequence.
func trailingPartial(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < seqLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// seqLen returns the expected length of a UTF-8 sequence starting with b.
func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0 // continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// partialRune reports whether data could be a truncated multi-byte rune.
func partialRune(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return seqLen(data[0]) > len(data)
}
