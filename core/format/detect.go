package format

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/phyloconv/core/errors"
)

// sniffLen is the number of bytes examined for detection.
const sniffLen = 512

var (
	xzMagic     = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
	newXZReader = xz.NewReader
)

// trimPrefix drops a byte order mark and leading whitespace.
func trimPrefix(prefix []byte) []byte {
	prefix = bytes.TrimPrefix(prefix, utf8BOM)
	return bytes.TrimLeft(prefix, " \t\r\n")
}

// Detect returns the format whose magic prefix starts prefix. Formats with a
// Fallback are tried afterwards.
func Detect(prefix []byte) (*Format, error) {
	p := trimPrefix(prefix)
	formats := List()
	for _, f := range formats {
		for _, magic := range f.Magic {
			if len(p) >= len(magic) && bytes.EqualFold(p[:len(magic)], []byte(magic)) {
				return f, nil
			}
		}
	}
	for _, f := range formats {
		if f.Fallback != nil && f.Fallback(p) {
			return f, nil
		}
	}
	return nil, errors.NewUnsupported("input format", "no registered format matches the start of the input")
}

// Open detects the format of r. XZ-compressed input is decompressed
// transparently. The returned reader yields the (decompressed) input from
// its first byte.
func Open(r io.Reader) (*Format, io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen*8)
	prefix, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}
	if bytes.HasPrefix(prefix, xzMagic) {
		xr, err := newXZReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		return Open(xr)
	}
	f, err := Detect(prefix)
	if err != nil {
		return nil, nil, err
	}
	return f, br, nil
}

// OpenAs is Open with a forced format id. Compressed input is still
// decompressed.
func OpenAs(r io.Reader, id string) (*Format, io.Reader, error) {
	f := Get(id)
	if f == nil {
		return nil, nil, errors.NewUnsupported("format "+id, "not registered")
	}
	br := bufio.NewReaderSize(r, sniffLen*8)
	prefix, _ := br.Peek(len(xzMagic))
	if bytes.HasPrefix(prefix, xzMagic) {
		xr, err := newXZReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		return f, xr, nil
	}
	return f, br, nil
}
